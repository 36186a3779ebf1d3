package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func sampleSet(network string) *MilestoneSet {
	return &MilestoneSet{
		Network: network,
		Indexes: []MilestoneRecord{
			{ID: "HASH10", MilestoneIndex: 10},
			{ID: "HASH9", MilestoneIndex: 9},
		},
	}
}

func testStore(t *testing.T, s MilestoneStore) {
	t.Helper()
	ctx := context.Background()

	if _, err := s.Get(ctx, "mainnet"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get on empty store = %v, want ErrNotFound", err)
	}

	if err := s.Set(ctx, sampleSet("mainnet")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	got, err := s.Get(ctx, "mainnet")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Network != "mainnet" || len(got.Indexes) != 2 || got.Indexes[0].MilestoneIndex != 10 {
		t.Errorf("Get = %+v", got)
	}

	// Overwrite replaces the whole set.
	next := sampleSet("mainnet")
	next.Indexes = append([]MilestoneRecord{{ID: "HASH11", MilestoneIndex: 11}}, next.Indexes...)
	if err := s.Set(ctx, next); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	got, _ = s.Get(ctx, "mainnet")
	if len(got.Indexes) != 3 || got.Indexes[0].ID != "HASH11" {
		t.Errorf("after overwrite Get = %+v", got)
	}

	// Networks are isolated.
	if _, err := s.Get(ctx, "devnet"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(devnet) = %v, want ErrNotFound", err)
	}

	if err := s.Set(ctx, nil); !errors.Is(err, ErrNilRecord) {
		t.Errorf("Set(nil) = %v, want ErrNilRecord", err)
	}
	if err := s.Set(ctx, &MilestoneSet{}); !errors.Is(err, ErrNoNetwork) {
		t.Errorf("Set(no network) = %v, want ErrNoNetwork", err)
	}
}

func TestMemory(t *testing.T) {
	m := NewMemory()
	testStore(t, m)

	// Returned sets are copies.
	got, _ := m.Get(context.Background(), "mainnet")
	got.Indexes[0].MilestoneIndex = 0
	again, _ := m.Get(context.Background(), "mainnet")
	if again.Indexes[0].MilestoneIndex == 0 {
		t.Error("Get should return a copy")
	}

	m.Close()
	if _, err := m.Get(context.Background(), "mainnet"); !errors.Is(err, ErrStoreClose) {
		t.Errorf("Get after Close = %v, want ErrStoreClose", err)
	}
}

func TestFile(t *testing.T) {
	dir := t.TempDir()
	f, err := NewFile(dir)
	if err != nil {
		t.Fatalf("NewFile failed: %v", err)
	}
	testStore(t, f)

	if _, err := os.Stat(filepath.Join(dir, "milestones-mainnet.json")); err != nil {
		t.Errorf("expected document on disk: %v", err)
	}
}

func TestFile_UnsafeNetworkName(t *testing.T) {
	dir := t.TempDir()
	f, _ := NewFile(dir)

	if err := f.Set(context.Background(), sampleSet("../escape")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	if got, err := f.Get(context.Background(), "../escape"); err != nil || got.Network != "../escape" {
		t.Errorf("Get = %+v, %v", got, err)
	}
}

func TestFile_Corrupt(t *testing.T) {
	dir := t.TempDir()
	f, _ := NewFile(dir)
	os.WriteFile(filepath.Join(dir, "milestones-mainnet.json"), []byte("{"), 0o644)

	if _, err := f.Get(context.Background(), "mainnet"); err == nil || errors.Is(err, ErrNotFound) {
		t.Errorf("Get on corrupt file = %v, want decode error", err)
	}
}

func TestNewFile_EmptyDir(t *testing.T) {
	if _, err := NewFile(""); err == nil {
		t.Error("expected error for empty directory")
	}
}
