package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sync"
)

var safeName = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

// File stores one JSON document per network in a directory. Writes go to
// a temporary file that is renamed into place.
type File struct {
	dir string
	mu  sync.Mutex
}

// NewFile creates dir if needed and returns a File store rooted there.
func NewFile(dir string) (*File, error) {
	if dir == "" {
		return nil, errors.New("file store: empty directory")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("file store: %w", err)
	}
	return &File{dir: dir}, nil
}

func (f *File) path(network string) string {
	return filepath.Join(f.dir, "milestones-"+safeName.ReplaceAllString(network, "_")+".json")
}

// Get reads the document for network.
func (f *File) Get(ctx context.Context, network string) (*MilestoneSet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path(network))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read milestones: %w", err)
	}

	var set MilestoneSet
	if err := json.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("decode milestones: %w", err)
	}
	return &set, nil
}

// Set writes the document for set.Network.
func (f *File) Set(ctx context.Context, set *MilestoneSet) error {
	if err := Validate(set); err != nil {
		return err
	}

	data, err := json.MarshalIndent(set, "", "  ")
	if err != nil {
		return fmt.Errorf("encode milestones: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	target := f.path(set.Network)
	tmp, err := os.CreateTemp(f.dir, ".milestones-*")
	if err != nil {
		return fmt.Errorf("write milestones: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write milestones: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write milestones: %w", err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write milestones: %w", err)
	}
	return nil
}

// Close is a no-op.
func (f *File) Close() error {
	return nil
}
