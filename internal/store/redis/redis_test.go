package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/iotaledger/explorer-sub006/internal/store"
)

type fakeRedis struct {
	values map[string]string
	setErr error
	ttls   map[string]time.Duration
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{values: make(map[string]string), ttls: make(map[string]time.Duration)}
}

func (f *fakeRedis) Get(ctx context.Context, key string) *goredis.StringCmd {
	v, ok := f.values[key]
	if !ok {
		return goredis.NewStringResult("", goredis.Nil)
	}
	return goredis.NewStringResult(v, nil)
}

func (f *fakeRedis) Set(ctx context.Context, key string, value any, expiration time.Duration) *goredis.StatusCmd {
	if f.setErr != nil {
		return goredis.NewStatusResult("", f.setErr)
	}
	f.values[key] = string(value.([]byte))
	f.ttls[key] = expiration
	return goredis.NewStatusResult("OK", nil)
}

func TestStore_RoundTrip(t *testing.T) {
	rdb := newFakeRedis()
	s := New(rdb, "explorer:milestones:")
	ctx := context.Background()

	if _, err := s.Get(ctx, "mainnet"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("Get on empty = %v, want ErrNotFound", err)
	}

	set := &store.MilestoneSet{
		Network: "mainnet",
		Indexes: []store.MilestoneRecord{{ID: "M2", MilestoneIndex: 2}, {ID: "M1", MilestoneIndex: 1}},
	}
	if err := s.Set(ctx, set); err != nil {
		t.Fatalf("Set: %v", err)
	}

	raw, ok := rdb.values["explorer:milestones:mainnet"]
	if !ok {
		t.Fatalf("value not written under prefixed key; keys = %v", rdb.values)
	}
	if rdb.ttls["explorer:milestones:mainnet"] != 0 {
		t.Error("milestone sets should not expire")
	}

	var decoded store.MilestoneSet
	if err := msgpack.Unmarshal([]byte(raw), &decoded); err != nil {
		t.Fatalf("stored value is not msgpack: %v", err)
	}
	if decoded.Indexes[0].ID != "M2" {
		t.Errorf("decoded = %+v", decoded)
	}

	got, err := s.Get(ctx, "mainnet")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(got.Indexes) != 2 || got.Indexes[0].MilestoneIndex != 2 {
		t.Errorf("Get = %+v", got)
	}
}

func TestStore_Errors(t *testing.T) {
	rdb := newFakeRedis()
	s := New(rdb, "p:")
	ctx := context.Background()

	if err := s.Set(ctx, nil); !errors.Is(err, store.ErrNilRecord) {
		t.Errorf("Set(nil) = %v, want ErrNilRecord", err)
	}

	rdb.setErr = errors.New("READONLY")
	if err := s.Set(ctx, &store.MilestoneSet{Network: "x"}); err == nil {
		t.Error("Set should surface redis errors")
	}

	rdb.values["p:bad"] = "\xc1"
	if _, err := s.Get(ctx, "bad"); err == nil || errors.Is(err, store.ErrNotFound) {
		t.Errorf("Get of corrupt value = %v, want decode error", err)
	}

	if err := s.Close(); err != nil {
		t.Errorf("Close without owned client = %v", err)
	}
}
