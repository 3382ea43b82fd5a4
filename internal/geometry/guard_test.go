package geometry_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bryanchriswhite/taskdock/internal/geometry"
	"github.com/bryanchriswhite/taskdock/internal/model"
	"github.com/bryanchriswhite/taskdock/internal/window/windowtest"
)

// The overlay is a 40px strip at the bottom of a 1080px tall display.
const (
	overlayTop    = 1040
	overlayHeight = 40
)

func TestResolveOverlap(t *testing.T) {
	tests := []struct {
		name       string
		bounds     model.Rect
		setup      func(el *windowtest.Element)
		want       geometry.Outcome
		wantHeight int
	}{
		{
			name:       "clear of overlay",
			bounds:     model.Rect{X: 0, Y: 0, Width: 800, Height: 1000},
			want:       geometry.OutcomeClear,
			wantHeight: 1000,
		},
		{
			name:       "touching edge counts as overlap",
			bounds:     model.Rect{X: 0, Y: 40, Width: 800, Height: 1000},
			want:       geometry.OutcomeResized,
			wantHeight: 999,
		},
		{
			name:       "shrinks by exact overlap",
			bounds:     model.Rect{X: 10, Y: 100, Width: 800, Height: 1000},
			want:       geometry.OutcomeResized,
			wantHeight: 939,
		},
		{
			name:       "too small",
			bounds:     model.Rect{X: 0, Y: 1050, Width: 800, Height: 10},
			want:       geometry.OutcomeTooSmall,
			wantHeight: 10,
		},
		{
			name:   "not resizable",
			bounds: model.Rect{X: 0, Y: 100, Width: 800, Height: 1000},
			setup: func(el *windowtest.Element) {
				el.Caps = model.Activatable
			},
			want:       geometry.OutcomeUnsupported,
			wantHeight: 1000,
		},
		{
			name:   "resize rejected",
			bounds: model.Rect{X: 0, Y: 100, Width: 800, Height: 1000},
			setup: func(el *windowtest.Element) {
				el.SetSizeErr = errors.New("denied")
			},
			want:       geometry.OutcomeFailed,
			wantHeight: 1000,
		},
		{
			name:   "position unreadable",
			bounds: model.Rect{X: 0, Y: 100, Width: 800, Height: 1000},
			setup: func(el *windowtest.Element) {
				el.PositionErr = errors.New("ax timeout")
			},
			want:       geometry.OutcomeUnavailable,
			wantHeight: 1000,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := windowtest.New()
			w := model.Window{ID: 1, PID: 10, Bounds: tt.bounds}
			el := fake.Add(w)
			if tt.setup != nil {
				tt.setup(el)
			}

			got := geometry.NewGuard(fake).ResolveOverlap(w, overlayTop, overlayHeight)
			require.Equal(t, tt.want, got, got.String())

			_, h, err := el.Size()
			require.NoError(t, err)
			require.Equal(t, tt.wantHeight, h)
			require.Equal(t, tt.bounds.Width, el.W)
			require.Equal(t, tt.bounds.Origin(), el.Pos)
		})
	}
}

func TestResolveOverlapLeavesMovingWindowAlone(t *testing.T) {
	fake := windowtest.New()
	w := model.Window{ID: 1, Bounds: model.Rect{X: 0, Y: 500, Width: 800, Height: 1000}}
	el := fake.Add(w)
	el.Pos = model.Point{X: 30, Y: 520}

	got := geometry.NewGuard(fake).ResolveOverlap(w, overlayTop, overlayHeight)
	require.Equal(t, geometry.OutcomeMoving, got)
	require.Empty(t, el.Sizes())
}

func TestResolveOverlapMissingElement(t *testing.T) {
	fake := windowtest.New()
	w := model.Window{ID: 1, Bounds: model.Rect{Y: 500, Width: 800, Height: 1000}}

	got := geometry.NewGuard(fake).ResolveOverlap(w, overlayTop, overlayHeight)
	require.Equal(t, geometry.OutcomeUnavailable, got)
}

func TestResolveOverlapWithoutOverlay(t *testing.T) {
	fake := windowtest.New()
	w := model.Window{ID: 1, Bounds: model.Rect{Y: 500, Width: 800, Height: 1000}}
	el := fake.Add(w)

	require.Equal(t, geometry.OutcomeClear, geometry.NewGuard(fake).ResolveOverlap(w, overlayTop, 0))
	require.Empty(t, el.Sizes())
}

func TestApply(t *testing.T) {
	fake := windowtest.New()
	overlay := model.Rect{X: 0, Y: overlayTop, Width: 1920, Height: overlayHeight}

	under := model.Window{ID: 1, Bounds: model.Rect{X: 100, Y: 100, Width: 800, Height: 1000}}
	above := model.Window{ID: 2, Bounds: model.Rect{X: 100, Y: 0, Width: 800, Height: 500}}
	beside := model.Window{ID: 3, Bounds: model.Rect{X: 1920, Y: 100, Width: 800, Height: 1000}}
	for _, w := range []model.Window{under, above, beside} {
		fake.Add(w)
	}

	got := geometry.NewGuard(fake).Apply([]model.Window{under, above, beside}, overlay)
	require.Equal(t, map[model.WindowID]geometry.Outcome{
		1: geometry.OutcomeResized,
		2: geometry.OutcomeClear,
	}, got)
	require.Equal(t, [][2]int{{800, 939}}, fake.ElementFor(1).Sizes())
	require.Empty(t, fake.ElementFor(3).Sizes())
}
