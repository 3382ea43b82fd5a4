package pins

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/bryanchriswhite/taskdock/internal/model"
)

// State is the durable pin set: pinned_windows and pinned_apps.
type State struct {
	Windows []model.WindowID `yaml:"pinned_windows" json:"pinned_windows"`
	Apps    []model.AppID    `yaml:"pinned_apps" json:"pinned_apps"`
}

// Store persists pin state.
type Store interface {
	Load() (State, error)
	Save(State) error
	Close() error
}

// Open returns the store for backend at path.
func Open(backend, path string) (Store, error) {
	switch backend {
	case "", "yaml":
		return NewYAMLStore(path), nil
	case "sqlite":
		return OpenSQLite(path)
	default:
		return nil, fmt.Errorf("unknown pins backend %q", backend)
	}
}

// YAMLStore keeps pins in a YAML file.
type YAMLStore struct {
	path string
}

// NewYAMLStore creates a store backed by path. The file is created on first Save.
func NewYAMLStore(path string) *YAMLStore {
	return &YAMLStore{path: path}
}

// Load reads the pin file. A missing file is an empty state.
func (s *YAMLStore) Load() (State, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return State{}, nil
	}
	if err != nil {
		return State{}, fmt.Errorf("failed to read pins file: %w", err)
	}

	var st State
	if err := yaml.Unmarshal(data, &st); err != nil {
		return State{}, fmt.Errorf("failed to parse pins file: %w", err)
	}
	return st, nil
}

// Save writes the state through a temp file and rename so a crash never
// leaves a truncated file.
func (s *YAMLStore) Save(st State) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create pins directory: %w", err)
	}

	data, err := yaml.Marshal(st)
	if err != nil {
		return fmt.Errorf("failed to marshal pins: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".pins-*.yaml")
	if err != nil {
		return fmt.Errorf("failed to create temp pins file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write pins: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync pins: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write pins: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to replace pins file: %w", err)
	}
	return nil
}

// Close is a no-op.
func (s *YAMLStore) Close() error { return nil }

func sortedWindows(set map[model.WindowID]struct{}) []model.WindowID {
	out := make([]model.WindowID, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func sortedApps(set map[model.AppID]struct{}) []model.AppID {
	out := make([]model.AppID, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
