package pins

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bryanchriswhite/taskdock/internal/model"
)

// memStore is a Store whose Save can be made to fail.
type memStore struct {
	state   State
	saves   int
	saveErr error
}

func (m *memStore) Load() (State, error) { return m.state, nil }

func (m *memStore) Save(st State) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saves++
	m.state = st
	return nil
}

func (m *memStore) Close() error { return nil }

func TestRegistryPinIdempotent(t *testing.T) {
	store := &memStore{}
	r, err := NewRegistry(store)
	require.NoError(t, err)

	require.NoError(t, r.Pin(7))
	first := store.state
	require.NoError(t, r.Pin(7))

	require.True(t, r.IsPinned(7))
	require.Equal(t, first, store.state)
	require.Equal(t, []model.WindowID{7}, store.state.Windows)
	require.Equal(t, 1, store.saves)
}

func TestRegistryToggle(t *testing.T) {
	store := &memStore{state: State{Windows: []model.WindowID{1}, Apps: []model.AppID{"term"}}}
	r, err := NewRegistry(store)
	require.NoError(t, err)
	before := store.state

	pinned, err := r.TogglePin(3)
	require.NoError(t, err)
	require.True(t, pinned)
	require.Equal(t, []model.WindowID{1, 3}, store.state.Windows)

	pinned, err = r.TogglePin(3)
	require.NoError(t, err)
	require.False(t, pinned)
	require.False(t, r.IsPinned(3))
	require.Equal(t, before, store.state)
	require.Equal(t, 2, store.saves)

	pinned, err = r.ToggleApp("firefox")
	require.NoError(t, err)
	require.True(t, pinned)
	require.True(t, r.IsAppPinned("firefox"))

	_, err = r.ToggleApp("")
	require.ErrorIs(t, err, ErrEmptyID)
	require.ErrorIs(t, r.PinApp(""), ErrEmptyID)
}

func TestRegistryRollsBackOnPersistFailure(t *testing.T) {
	store := &memStore{state: State{Windows: []model.WindowID{1}, Apps: []model.AppID{"term"}}}
	r, err := NewRegistry(store)
	require.NoError(t, err)

	store.saveErr = errors.New("disk full")

	require.Error(t, r.Pin(2))
	require.False(t, r.IsPinned(2))

	require.Error(t, r.Unpin(1))
	require.True(t, r.IsPinned(1))

	pinned, err := r.TogglePin(1)
	require.Error(t, err)
	require.True(t, pinned)

	require.Error(t, r.UnpinApp("term"))
	require.True(t, r.IsAppPinned("term"))
	require.Error(t, r.PinApp("editor"))
	require.False(t, r.IsAppPinned("editor"))

	require.Equal(t, []model.WindowID{1}, r.PinnedWindows())
	require.Equal(t, []model.AppID{"term"}, r.PinnedApps())
}

func TestRegistryListingsSorted(t *testing.T) {
	r, err := NewRegistry(&memStore{})
	require.NoError(t, err)

	for _, id := range []model.WindowID{30, 10, 20} {
		require.NoError(t, r.Pin(id))
	}
	for _, app := range []model.AppID{"zed", "alacritty", "mpv"} {
		require.NoError(t, r.PinApp(app))
	}

	require.Equal(t, []model.WindowID{10, 20, 30}, r.PinnedWindows())
	require.Equal(t, []model.AppID{"alacritty", "mpv", "zed"}, r.PinnedApps())
}

func TestStoresRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		backend string
		file    string
	}{
		{"yaml", "yaml", "pins.yaml"},
		{"sqlite", "sqlite", "pins.db"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "nested", tt.file)

			store, err := Open(tt.backend, path)
			require.NoError(t, err)

			empty, err := store.Load()
			require.NoError(t, err)
			require.Empty(t, empty.Windows)
			require.Empty(t, empty.Apps)

			r, err := NewRegistry(store)
			require.NoError(t, err)
			require.NoError(t, r.Pin(42))
			require.NoError(t, r.Pin(7))
			require.NoError(t, r.PinApp("firefox"))
			require.NoError(t, r.Unpin(42))
			require.NoError(t, store.Close())

			reopened, err := Open(tt.backend, path)
			require.NoError(t, err)
			defer reopened.Close()

			r2, err := NewRegistry(reopened)
			require.NoError(t, err)
			require.Equal(t, []model.WindowID{7}, r2.PinnedWindows())
			require.Equal(t, []model.AppID{"firefox"}, r2.PinnedApps())
		})
	}
}

func TestYAMLStoreSaveLeavesOnlyPinsFile(t *testing.T) {
	dir := t.TempDir()
	store := NewYAMLStore(filepath.Join(dir, "pins.yaml"))

	for _, st := range []State{
		{Windows: []model.WindowID{1}, Apps: []model.AppID{"mail"}},
		{Windows: []model.WindowID{1, 2}, Apps: []model.AppID{"term"}},
	} {
		require.NoError(t, store.Save(st))
		got, err := store.Load()
		require.NoError(t, err)
		require.Equal(t, st, got)
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "pins.yaml", entries[0].Name())
}

func TestOpenUnknownBackend(t *testing.T) {
	_, err := Open("etcd", filepath.Join(t.TempDir(), "pins"))
	require.Error(t, err)
}
