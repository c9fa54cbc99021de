// Package achievements records which achievements an owner has already
// been shown.
package achievements

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/petrijr/stepwise/internal/persistence"
)

// ErrNotInitialized is returned when the tracker is used before Init.
var ErrNotInitialized = errors.New("achievements: tracker not initialized")

// record is the stored value for one owner.
type record struct {
	Seen map[string]time.Time
}

// Tracker stores seen achievements per owner in a KVStore. Init must be
// called before Seen or MarkSeen.
type Tracker struct {
	kv  persistence.KVStore
	now func() time.Time

	mu    sync.Mutex
	ready bool
}

// New creates a Tracker over kv.
func New(kv persistence.KVStore) *Tracker {
	return &Tracker{kv: kv, now: time.Now}
}

// Init checks that the store is reachable.
func (t *Tracker) Init(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.kv == nil {
		return errors.New("achievements: no store configured")
	}
	if _, err := t.kv.Get(ctx, key("")); err != nil && !errors.Is(err, persistence.ErrKeyNotFound) {
		return fmt.Errorf("achievements: init: %w", err)
	}
	t.ready = true
	return nil
}

func key(owner string) string { return "achievements/" + owner }

func (t *Tracker) load(ctx context.Context, owner string) (record, error) {
	if !t.ready {
		return record{}, ErrNotInitialized
	}
	data, err := t.kv.Get(ctx, key(owner))
	if errors.Is(err, persistence.ErrKeyNotFound) {
		return record{Seen: map[string]time.Time{}}, nil
	}
	if err != nil {
		return record{}, err
	}
	rec, err := persistence.DecodeValue[record](data)
	if err != nil {
		return record{}, fmt.Errorf("decode achievements for %s: %w", owner, err)
	}
	if rec.Seen == nil {
		rec.Seen = map[string]time.Time{}
	}
	return rec, nil
}

// Seen reports whether owner has already seen id.
func (t *Tracker) Seen(ctx context.Context, owner, id string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, err := t.load(ctx, owner)
	if err != nil {
		return false, err
	}
	_, ok := rec.Seen[id]
	return ok, nil
}

// MarkSeen records id for owner. Marking twice keeps the first timestamp.
func (t *Tracker) MarkSeen(ctx context.Context, owner, id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, err := t.load(ctx, owner)
	if err != nil {
		return err
	}
	if _, ok := rec.Seen[id]; ok {
		return nil
	}
	rec.Seen[id] = t.now().UTC()

	data, err := persistence.EncodeValue(rec)
	if err != nil {
		return err
	}
	return t.kv.Put(ctx, key(owner), data)
}

// List returns the achievements owner has seen, sorted.
func (t *Tracker) List(ctx context.Context, owner string) ([]string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, err := t.load(ctx, owner)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(rec.Seen))
	for id := range rec.Seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}
