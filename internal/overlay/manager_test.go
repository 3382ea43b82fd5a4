package overlay

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bryanchriswhite/taskdock/internal/model"
)

func testSnapshot() *model.Snapshot {
	snap := model.NewSnapshot()
	snap.AddDisplay(model.Display{ID: 1, Frame: model.Rect{Width: 1920, Height: 1080}})
	snap.AddDisplay(model.Display{ID: 2, Frame: model.Rect{X: 1920, Y: 100, Width: 1280, Height: 1024}})
	return snap
}

func TestBounds(t *testing.T) {
	tests := []struct {
		name     string
		settings Settings
		snap     *model.Snapshot
		want     model.Rect
		wantOK   bool
	}{
		{
			name:     "primary display",
			settings: Settings{Enabled: true, Height: 40},
			snap:     testSnapshot(),
			want:     model.Rect{X: 0, Y: 1040, Width: 1920, Height: 40},
			wantOK:   true,
		},
		{
			name:     "explicit display",
			settings: Settings{Enabled: true, Height: 40, Display: 2},
			snap:     testSnapshot(),
			want:     model.Rect{X: 1920, Y: 1084, Width: 1280, Height: 40},
			wantOK:   true,
		},
		{
			name:     "unknown display falls back to primary",
			settings: Settings{Enabled: true, Height: 40, Display: 9},
			snap:     testSnapshot(),
			want:     model.Rect{X: 0, Y: 1040, Width: 1920, Height: 40},
			wantOK:   true,
		},
		{
			name:     "height clamped to display",
			settings: Settings{Enabled: true, Height: 5000},
			snap:     testSnapshot(),
			want:     model.Rect{X: 0, Y: 0, Width: 1920, Height: 1080},
			wantOK:   true,
		},
		{
			name:     "disabled",
			settings: Settings{Enabled: false, Height: 40},
			snap:     testSnapshot(),
		},
		{
			name:     "zero height",
			settings: Settings{Enabled: true},
			snap:     testSnapshot(),
		},
		{
			name:     "no displays",
			settings: Settings{Enabled: true, Height: 40},
			snap:     model.NewSnapshot(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := NewManager(tt.settings).Bounds(tt.snap)
			require.Equal(t, tt.wantOK, ok)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestUpdate(t *testing.T) {
	m := NewManager(Settings{Enabled: true, Height: 40})

	require.Error(t, m.Update(Settings{Height: -1}))
	require.Equal(t, 40, m.Settings().Height)

	require.NoError(t, m.Update(Settings{Enabled: false, Height: 32, Display: 2}))
	require.Equal(t, Settings{Enabled: false, Height: 32, Display: 2}, m.Settings())

	m.SetEnabled(true)
	require.True(t, m.IsEnabled())
	require.Error(t, m.SetHeight(-5))
	require.NoError(t, m.SetHeight(48))
	require.Equal(t, 48, m.Settings().Height)
}
