// Package history keeps a durable, revisioned record of reconcile outcomes.
package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/btree"
	"go.etcd.io/bbolt"

	"github.com/yairfalse/converge/pkg/group"
)

// Bucket names in bbolt
var (
	bucketRuns = []byte("runs")
	bucketMeta = []byte("meta")

	keyCurrentRevision = []byte("current_revision")
)

// ErrNotFound is returned when no run was ever recorded for a group.
var ErrNotFound = errors.New("no history for group")

// Run is one recorded reconcile outcome.
type Run struct {
	Revision int64                   `json:"revision"`
	RunID    string                  `json:"run_id,omitempty"`
	Name     string                  `json:"name"`
	State    group.State             `json:"state"`
	Action   group.Action            `json:"action"`
	Changed  bool                    `json:"changed"`
	DryRun   bool                    `json:"dry_run,omitempty"`
	Changes  map[string]group.Change `json:"changes,omitempty"`
	Error    string                  `json:"error,omitempty"`
	At       time.Time               `json:"at"`
}

// GroupState summarizes every run recorded for one group.
type GroupState struct {
	Name           string       `json:"name"`
	FirstRev       int64        `json:"first_rev"`
	LastRev        int64        `json:"last_rev"`
	LastChangedRev int64        `json:"last_changed_rev"`
	LastAction     group.Action `json:"last_action"`
	LastError      string       `json:"last_error,omitempty"`
	Exists         bool         `json:"exists"`
	Runs           int          `json:"runs"`
}

// Store is a bbolt database of runs with an in-memory btree index per group.
type Store struct {
	mu sync.RWMutex

	index *btree.BTreeG[*GroupState]
	db    *bbolt.DB

	currentRev int64
}

// Open opens or creates the history database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create history directory: %w", err)
	}

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, bucket := range [][]byte{bucketRuns, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init history buckets: %w", err)
	}

	s := &Store{
		index: btree.NewG[*GroupState](32, func(a, b *GroupState) bool {
			return a.Name < b.Name
		}),
		db: db,
	}

	if err := s.load(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record stores a run under the next revision and returns that revision.
func (s *Store) Record(run Run) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rev := s.currentRev + 1
	run.Revision = rev
	if run.At.IsZero() {
		run.At = time.Now().UTC()
	}

	value, err := json.Marshal(run)
	if err != nil {
		return 0, fmt.Errorf("marshal run: %w", err)
	}

	err = s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(bucketRuns).Put(makeRunKey(rev, run.Name), value); err != nil {
			return err
		}
		return tx.Bucket(bucketMeta).Put(keyCurrentRevision, []byte(strconv.FormatInt(rev, 10)))
	})
	if err != nil {
		return 0, fmt.Errorf("record run: %w", err)
	}

	s.currentRev = rev
	s.updateIndex(run)

	return rev, nil
}

// Get returns the summary for one group.
func (s *Store) Get(name string) (GroupState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, found := s.index.Get(&GroupState{Name: name})
	if !found {
		return GroupState{}, fmt.Errorf("%w %q", ErrNotFound, name)
	}
	return *state, nil
}

// Groups returns the summary of every group, ordered by name.
func (s *Store) Groups() []GroupState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]GroupState, 0, s.index.Len())
	s.index.Ascend(func(state *GroupState) bool {
		out = append(out, *state)
		return true
	})
	return out
}

// Runs returns up to limit runs for name, newest first. An empty name
// matches every group; limit <= 0 means no limit.
func (s *Store) Runs(name string, limit int) ([]Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var runs []Run
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketRuns).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			_, key, err := parseRunKey(k)
			if err != nil {
				return err
			}
			if name != "" && key != name {
				continue
			}

			var run Run
			if err := json.Unmarshal(v, &run); err != nil {
				return fmt.Errorf("unmarshal run %s: %w", k, err)
			}
			runs = append(runs, run)

			if limit > 0 && len(runs) >= limit {
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return runs, nil
}

// CurrentRevision returns the latest recorded revision.
func (s *Store) CurrentRevision() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentRev
}

// Compact deletes runs older than the newest keep revisions. Index counters
// survive until the store is reopened.
func (s *Store) Compact(keep int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.currentRev - keep
	if cutoff <= 0 {
		return nil
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketRuns)
		c := bucket.Cursor()

		var toDelete [][]byte
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			rev, _, err := parseRunKey(k)
			if err != nil {
				return err
			}
			if rev > cutoff {
				break
			}
			toDelete = append(toDelete, append([]byte(nil), k...))
		}

		for _, key := range toDelete {
			if err := bucket.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) updateIndex(run Run) {
	state, found := s.index.Get(&GroupState{Name: run.Name})
	if !found {
		state = &GroupState{Name: run.Name, FirstRev: run.Revision}
	}

	state.LastRev = run.Revision
	state.LastAction = run.Action
	state.LastError = run.Error
	state.Runs++

	if run.Error == "" && !run.DryRun {
		state.Exists = run.State == group.StatePresent
		if run.Changed {
			state.LastChangedRev = run.Revision
		}
	}

	s.index.ReplaceOrInsert(state)
}

// load restores the current revision and rebuilds the index from disk.
func (s *Store) load() error {
	return s.db.View(func(tx *bbolt.Tx) error {
		if data := tx.Bucket(bucketMeta).Get(keyCurrentRevision); data != nil {
			rev, err := strconv.ParseInt(string(data), 10, 64)
			if err != nil {
				return fmt.Errorf("parse current revision: %w", err)
			}
			s.currentRev = rev
		}

		return tx.Bucket(bucketRuns).ForEach(func(k, v []byte) error {
			var run Run
			if err := json.Unmarshal(v, &run); err != nil {
				return fmt.Errorf("unmarshal run %s: %w", k, err)
			}
			s.updateIndex(run)
			return nil
		})
	})
}

func makeRunKey(rev int64, name string) []byte {
	return []byte(fmt.Sprintf("%016d:%s", rev, name))
}

func parseRunKey(key []byte) (int64, string, error) {
	revStr, name, ok := strings.Cut(string(key), ":")
	if !ok {
		return 0, "", fmt.Errorf("malformed run key %q", key)
	}
	rev, err := strconv.ParseInt(revStr, 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("malformed run key %q: %w", key, err)
	}
	return rev, name, nil
}
