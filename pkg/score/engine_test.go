package score

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"

	"github.com/crotchet/stave/pkg/object"
)

// removeStoredObject deletes one object file from a FileStore root,
// simulating store corruption.
func removeStoredObject(root string, h object.Hash) error {
	return os.Remove(filepath.Join(root, "objects", string(h[:2]), string(h[2:])))
}

func testEngines(t *testing.T) map[string]*Engine {
	t.Helper()
	return map[string]*Engine{
		"mem": NewEngine(object.NewMemStore(), NewMemState(), nil),
		"fs":  NewEngine(object.NewFileStore(t.TempDir()), NewFSState(t.TempDir()), nil),
	}
}

func mustCreate(t *testing.T, e *Engine, id ScoreID, title, description string) *Score {
	t.Helper()
	s, err := e.Create(context.Background(), id, title, description)
	if err != nil {
		t.Fatalf("Create(%s): %v", id, err)
	}
	return s
}

func mustCommit(t *testing.T, e *Engine, id ScoreID, parent object.Hash, ops ...Op) *CommitResult {
	t.Helper()
	res, err := e.Commit(context.Background(), id, parent, ops)
	if err != nil {
		t.Fatalf("Commit(%s): %v", id, err)
	}
	return res
}

func addOp(n string) AddPage {
	return AddPage{Image: "img-" + n, Thumb: "thumb-" + n, Number: n}
}

func pageNumbers(pages []Page) []string {
	out := make([]string, len(pages))
	for i, p := range pages {
		out[i] = p.Number
	}
	return out
}

func sameNumbers(got []Page, want ...string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range want {
		if got[i].Number != want[i] {
			return false
		}
	}
	return true
}

func TestCreateAndGet(t *testing.T) {
	ctx := context.Background()
	for name, e := range testEngines(t) {
		t.Run(name, func(t *testing.T) {
			id := ScoreID{Owner: "u1", Name: "s1"}
			created := mustCreate(t, e, id, "Sonata", "first movement")

			if created.Version != 0 {
				t.Errorf("new score version = %d, want 0", created.Version)
			}
			if len(created.Pages) != 0 {
				t.Errorf("new score has %d pages, want 0", len(created.Pages))
			}

			got, err := e.GetScore(ctx, id)
			if err != nil {
				t.Fatalf("GetScore: %v", err)
			}
			if got.Title != "Sonata" || got.Description != "first movement" {
				t.Errorf("property = %q/%q, want Sonata/first movement", got.Title, got.Description)
			}
			if got.Snapshot != created.Snapshot || got.Property != created.Property {
				t.Error("GetScore head differs from Create result")
			}
		})
	}
}

func TestCreateDuplicate(t *testing.T) {
	ctx := context.Background()
	for name, e := range testEngines(t) {
		t.Run(name, func(t *testing.T) {
			id := ScoreID{Owner: "u1", Name: "s1"}
			mustCreate(t, e, id, "", "")
			if _, err := e.Create(ctx, id, "", ""); !errors.Is(err, ErrScoreExists) {
				t.Errorf("duplicate Create: got %v, want ErrScoreExists", err)
			}
		})
	}
}

func TestCreateInvalidID(t *testing.T) {
	ctx := context.Background()
	e := NewEngine(object.NewMemStore(), NewMemState(), nil)

	bad := []ScoreID{
		{Owner: "", Name: "s1"},
		{Owner: "u1", Name: ""},
		{Owner: "u1", Name: "a/b"},
		{Owner: "u1", Name: ".."},
		{Owner: "u1", Name: ".hidden"},
		{Owner: "a\\b", Name: "s1"},
	}
	for _, id := range bad {
		if _, err := e.Create(ctx, id, "", ""); err == nil {
			t.Errorf("Create(%q/%q) accepted invalid id", id.Owner, id.Name)
		}
	}
}

func TestGetMissingScore(t *testing.T) {
	ctx := context.Background()
	for name, e := range testEngines(t) {
		t.Run(name, func(t *testing.T) {
			id := ScoreID{Owner: "u1", Name: "nope"}
			if _, err := e.GetScore(ctx, id); !errors.Is(err, ErrScoreNotFound) {
				t.Errorf("GetScore missing: got %v, want ErrScoreNotFound", err)
			}
			if _, err := e.Commit(ctx, id, "", []Op{addOp("1")}); !errors.Is(err, ErrScoreNotFound) {
				t.Errorf("Commit missing: got %v, want ErrScoreNotFound", err)
			}
		})
	}
}

func TestCommitAddPages(t *testing.T) {
	ctx := context.Background()
	for name, e := range testEngines(t) {
		t.Run(name, func(t *testing.T) {
			id := ScoreID{Owner: "u1", Name: "s1"}
			created := mustCreate(t, e, id, "", "")

			res := mustCommit(t, e, id, created.Snapshot, addOp("A"), addOp("B"), addOp("C"))
			if res.Version != 1 {
				t.Errorf("first commit version = %d, want 1", res.Version)
			}
			if !sameNumbers(res.Pages, "A", "B", "C") {
				t.Errorf("pages = %v, want [A B C]", pageNumbers(res.Pages))
			}

			got, err := e.GetScore(ctx, id)
			if err != nil {
				t.Fatalf("GetScore: %v", err)
			}
			if !sameNumbers(got.Pages, "A", "B", "C") {
				t.Errorf("GetScore pages = %v, want [A B C]", pageNumbers(got.Pages))
			}
			for i, p := range got.Pages {
				if p.ImageRef != "img-"+p.Number || p.ThumbRef != "thumb-"+p.Number {
					t.Errorf("page %d refs = %q/%q, want to match number %q", i, p.ImageRef, p.ThumbRef, p.Number)
				}
				if !p.Hash.Valid() {
					t.Errorf("page %d hash %q invalid", i, p.Hash)
				}
			}
		})
	}
}

func TestCommitInsertAndDelete(t *testing.T) {
	ctx := context.Background()
	for name, e := range testEngines(t) {
		t.Run(name, func(t *testing.T) {
			id := ScoreID{Owner: "u1", Name: "s1"}
			created := mustCreate(t, e, id, "", "")
			res := mustCommit(t, e, id, created.Snapshot, addOp("A"), addOp("B"), addOp("C"))

			// Insert D at index 1: [A B C] -> [A D B C].
			res = mustCommit(t, e, id, res.Snapshot, InsertPage{Index: 1, Image: "img-D", Thumb: "thumb-D", Number: "D"})
			if !sameNumbers(res.Pages, "A", "D", "B", "C") {
				t.Fatalf("after insert: %v, want [A D B C]", pageNumbers(res.Pages))
			}

			// Delete index 0: [A D B C] -> [D B C].
			res = mustCommit(t, e, id, res.Snapshot, DeletePage{Index: 0})
			if !sameNumbers(res.Pages, "D", "B", "C") {
				t.Fatalf("after delete: %v, want [D B C]", pageNumbers(res.Pages))
			}

			got, err := e.GetScore(ctx, id)
			if err != nil {
				t.Fatalf("GetScore: %v", err)
			}
			if !sameNumbers(got.Pages, "D", "B", "C") {
				t.Errorf("GetScore pages = %v, want [D B C]", pageNumbers(got.Pages))
			}
			if got.Version != 3 {
				t.Errorf("version = %d, want 3", got.Version)
			}
		})
	}
}

func TestCommitInsertAtEnd(t *testing.T) {
	e := NewEngine(object.NewMemStore(), NewMemState(), nil)
	id := ScoreID{Owner: "u1", Name: "s1"}
	created := mustCreate(t, e, id, "", "")
	res := mustCommit(t, e, id, created.Snapshot, addOp("A"))

	// Index equal to the length appends.
	res = mustCommit(t, e, id, res.Snapshot, InsertPage{Index: 1, Image: "i", Thumb: "t", Number: "B"})
	if !sameNumbers(res.Pages, "A", "B") {
		t.Errorf("insert at len: %v, want [A B]", pageNumbers(res.Pages))
	}
}

func TestCommitBatchOrderIsSequential(t *testing.T) {
	// Each op applies to the state left by the previous one: indices refer
	// to intermediate sequences, not the starting one.
	e := NewEngine(object.NewMemStore(), NewMemState(), nil)
	id := ScoreID{Owner: "u1", Name: "s1"}
	created := mustCreate(t, e, id, "", "")
	res := mustCommit(t, e, id, created.Snapshot, addOp("A"), addOp("B"), addOp("C"))

	res = mustCommit(t, e, id, res.Snapshot,
		InsertPage{Index: 0, Image: "i", Thumb: "t", Number: "X"}, // [X A B C]
		DeletePage{Index: 3},                                     // [X A B]
		InsertPage{Index: 3, Image: "i", Thumb: "t", Number: "Y"}, // [X A B Y]
	)
	if !sameNumbers(res.Pages, "X", "A", "B", "Y") {
		t.Errorf("batch result = %v, want [X A B Y]", pageNumbers(res.Pages))
	}
}

func TestCommitIndexOutOfRange(t *testing.T) {
	ctx := context.Background()
	for name, e := range testEngines(t) {
		t.Run(name, func(t *testing.T) {
			id := ScoreID{Owner: "u1", Name: "s1"}
			created := mustCreate(t, e, id, "", "")
			res := mustCommit(t, e, id, created.Snapshot, addOp("A"), addOp("B"), addOp("C"))

			cases := []struct {
				name string
				op   Op
			}{
				{"insert past end", InsertPage{Index: 5, Image: "i", Thumb: "t", Number: "X"}},
				{"insert negative", InsertPage{Index: -1, Image: "i", Thumb: "t", Number: "X"}},
				{"delete at end", DeletePage{Index: 3}},
				{"delete far past end", DeletePage{Index: 10}},
				{"delete negative", DeletePage{Index: -1}},
			}
			for _, tc := range cases {
				t.Run(tc.name, func(t *testing.T) {
					_, err := e.Commit(ctx, id, res.Snapshot, []Op{tc.op})
					if !errors.Is(err, ErrInvalidOperation) {
						t.Errorf("got %v, want ErrInvalidOperation", err)
					}
				})
			}

			// Nothing moved.
			got, err := e.GetScore(ctx, id)
			if err != nil {
				t.Fatalf("GetScore: %v", err)
			}
			if got.Version != 1 || !sameNumbers(got.Pages, "A", "B", "C") {
				t.Errorf("state changed after rejected ops: v%d %v", got.Version, pageNumbers(got.Pages))
			}
		})
	}
}

func TestCommitEmptyBatch(t *testing.T) {
	ctx := context.Background()
	e := NewEngine(object.NewMemStore(), NewMemState(), nil)
	id := ScoreID{Owner: "u1", Name: "s1"}
	created := mustCreate(t, e, id, "", "")

	if _, err := e.Commit(ctx, id, created.Snapshot, nil); !errors.Is(err, ErrNoChange) {
		t.Errorf("empty batch: got %v, want ErrNoChange", err)
	}
}

func TestCommitRejectsPropertyOp(t *testing.T) {
	ctx := context.Background()
	e := NewEngine(object.NewMemStore(), NewMemState(), nil)
	id := ScoreID{Owner: "u1", Name: "s1"}
	created := mustCreate(t, e, id, "", "")

	title := "New Title"
	_, err := e.Commit(ctx, id, created.Snapshot, []Op{addOp("A"), UpdateProperty{Title: &title}})
	if !errors.Is(err, ErrInvalidOperation) {
		t.Errorf("property op in page batch: got %v, want ErrInvalidOperation", err)
	}

	// The batch failed whole: no version, no pages.
	got, err := e.GetScore(ctx, id)
	if err != nil {
		t.Fatalf("GetScore: %v", err)
	}
	if got.Version != 0 || len(got.Pages) != 0 {
		t.Errorf("partial application visible: v%d, %d pages", got.Version, len(got.Pages))
	}
}

func TestCommitStaleParent(t *testing.T) {
	ctx := context.Background()
	for name, e := range testEngines(t) {
		t.Run(name, func(t *testing.T) {
			id := ScoreID{Owner: "u1", Name: "s1"}
			created := mustCreate(t, e, id, "", "")

			first := mustCommit(t, e, id, created.Snapshot, addOp("A"))

			// Same parent again: the head moved, so this must fail.
			_, err := e.Commit(ctx, id, created.Snapshot, []Op{addOp("B")})
			if !errors.Is(err, ErrConcurrencyConflict) {
				t.Fatalf("stale commit: got %v, want ErrConcurrencyConflict", err)
			}
			var conflict *ConflictError
			if !errors.As(err, &conflict) {
				t.Fatalf("stale commit error type = %T, want *ConflictError", err)
			}
			if conflict.Declared != created.Snapshot || conflict.Current != first.Snapshot {
				t.Errorf("conflict hashes: declared %s current %s, want %s / %s",
					conflict.Declared.Short(), conflict.Current.Short(),
					created.Snapshot.Short(), first.Snapshot.Short())
			}

			// Loser mutated nothing.
			got, err := e.GetScore(ctx, id)
			if err != nil {
				t.Fatalf("GetScore: %v", err)
			}
			if got.Version != 1 || !sameNumbers(got.Pages, "A") {
				t.Errorf("state after lost race: v%d %v", got.Version, pageNumbers(got.Pages))
			}
		})
	}
}

func TestVersionNumbering(t *testing.T) {
	ctx := context.Background()
	for name, e := range testEngines(t) {
		t.Run(name, func(t *testing.T) {
			id := ScoreID{Owner: "u1", Name: "s1"}
			created := mustCreate(t, e, id, "", "")

			parent := created.Snapshot
			const commits = 5
			for i := 1; i <= commits; i++ {
				res := mustCommit(t, e, id, parent, addOp(strconv.Itoa(i)))
				if res.Version != uint64(i) {
					t.Fatalf("commit %d allocated version %d", i, res.Version)
				}
				parent = res.Snapshot
			}

			// Ascending, gapless, and the sequence restarts cleanly.
			for range 2 {
				var want uint64 = 1
				for entry, err := range e.ListVersions(ctx, id) {
					if err != nil {
						t.Fatalf("ListVersions: %v", err)
					}
					if entry.Number != want {
						t.Fatalf("version entry %d, want %d", entry.Number, want)
					}
					if !entry.Snapshot.Valid() {
						t.Fatalf("version %d snapshot %q invalid", entry.Number, entry.Snapshot)
					}
					want++
				}
				if want != commits+1 {
					t.Fatalf("listed %d versions, want %d", want-1, commits)
				}
			}
		})
	}
}

func TestListVersionsMissingScore(t *testing.T) {
	ctx := context.Background()
	e := NewEngine(object.NewMemStore(), NewMemState(), nil)

	var sawErr error
	for _, err := range e.ListVersions(ctx, ScoreID{Owner: "u1", Name: "nope"}) {
		sawErr = err
	}
	if !errors.Is(sawErr, ErrScoreNotFound) {
		t.Errorf("ListVersions on missing score yielded %v, want ErrScoreNotFound", sawErr)
	}
}

func TestGetVersion(t *testing.T) {
	ctx := context.Background()
	for name, e := range testEngines(t) {
		t.Run(name, func(t *testing.T) {
			id := ScoreID{Owner: "u1", Name: "s1"}
			created := mustCreate(t, e, id, "Etude", "")
			v1 := mustCommit(t, e, id, created.Snapshot, addOp("A"))
			v2 := mustCommit(t, e, id, v1.Snapshot, addOp("B"))

			got, err := e.GetVersion(ctx, id, "1")
			if err != nil {
				t.Fatalf("GetVersion(1): %v", err)
			}
			if got.Version != 1 || !sameNumbers(got.Pages, "A") {
				t.Errorf("version 1 = v%d %v, want v1 [A]", got.Version, pageNumbers(got.Pages))
			}
			if got.Snapshot != v1.Snapshot {
				t.Errorf("version 1 snapshot %s, want %s", got.Snapshot.Short(), v1.Snapshot.Short())
			}

			for _, label := range []string{"2", "latest", ""} {
				got, err := e.GetVersion(ctx, id, label)
				if err != nil {
					t.Fatalf("GetVersion(%q): %v", label, err)
				}
				if got.Version != 2 || !sameNumbers(got.Pages, "A", "B") {
					t.Errorf("GetVersion(%q) = v%d %v, want v2 [A B]", label, got.Version, pageNumbers(got.Pages))
				}
				if got.Snapshot != v2.Snapshot {
					t.Errorf("GetVersion(%q) snapshot %s, want %s", label, got.Snapshot.Short(), v2.Snapshot.Short())
				}
			}

			for _, label := range []string{"0", "3", "banana", "-1"} {
				if _, err := e.GetVersion(ctx, id, label); !errors.Is(err, ErrVersionNotFound) {
					t.Errorf("GetVersion(%q): got %v, want ErrVersionNotFound", label, err)
				}
			}
		})
	}
}

func TestUpdateProperty(t *testing.T) {
	ctx := context.Background()
	for name, e := range testEngines(t) {
		t.Run(name, func(t *testing.T) {
			id := ScoreID{Owner: "u1", Name: "s1"}
			created := mustCreate(t, e, id, "Sonata", "draft")

			// Change title only; description survives.
			title := "Sonata No. 2"
			res, err := e.UpdateProperty(ctx, id, created.Property, UpdateProperty{Title: &title})
			if err != nil {
				t.Fatalf("UpdateProperty(title): %v", err)
			}
			if res.Title != "Sonata No. 2" || res.Description != "draft" {
				t.Errorf("after title update: %q/%q, want Sonata No. 2/draft", res.Title, res.Description)
			}

			// Change description only; title survives.
			desc := "final"
			res, err = e.UpdateProperty(ctx, id, res.Property, UpdateProperty{Description: &desc})
			if err != nil {
				t.Fatalf("UpdateProperty(description): %v", err)
			}
			if res.Title != "Sonata No. 2" || res.Description != "final" {
				t.Errorf("after description update: %q/%q", res.Title, res.Description)
			}

			got, err := e.GetScore(ctx, id)
			if err != nil {
				t.Fatalf("GetScore: %v", err)
			}
			if got.Title != "Sonata No. 2" || got.Description != "final" {
				t.Errorf("GetScore property: %q/%q", got.Title, got.Description)
			}
			if got.Version != 0 {
				t.Errorf("property updates consumed version numbers: v%d", got.Version)
			}
		})
	}
}

func TestUpdatePropertyNoChange(t *testing.T) {
	ctx := context.Background()
	e := NewEngine(object.NewMemStore(), NewMemState(), nil)
	id := ScoreID{Owner: "u1", Name: "s1"}
	created := mustCreate(t, e, id, "Sonata", "draft")

	same := "Sonata"
	cases := []struct {
		name string
		op   UpdateProperty
	}{
		{"identical title", UpdateProperty{Title: &same}},
		{"all fields nil", UpdateProperty{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := e.UpdateProperty(ctx, id, created.Property, tc.op); !errors.Is(err, ErrNoChange) {
				t.Errorf("got %v, want ErrNoChange", err)
			}
		})
	}

	// No new chain entry: the head still points at the original property.
	got, err := e.GetScore(ctx, id)
	if err != nil {
		t.Fatalf("GetScore: %v", err)
	}
	if got.Property != created.Property {
		t.Errorf("no-op update moved the property head: %s -> %s",
			created.Property.Short(), got.Property.Short())
	}
}

func TestUpdatePropertyStaleParent(t *testing.T) {
	ctx := context.Background()
	e := NewEngine(object.NewMemStore(), NewMemState(), nil)
	id := ScoreID{Owner: "u1", Name: "s1"}
	created := mustCreate(t, e, id, "Sonata", "")

	title := "First"
	if _, err := e.UpdateProperty(ctx, id, created.Property, UpdateProperty{Title: &title}); err != nil {
		t.Fatalf("UpdateProperty: %v", err)
	}

	other := "Second"
	_, err := e.UpdateProperty(ctx, id, created.Property, UpdateProperty{Title: &other})
	if !errors.Is(err, ErrConcurrencyConflict) {
		t.Errorf("stale property update: got %v, want ErrConcurrencyConflict", err)
	}

	got, err := e.GetScore(ctx, id)
	if err != nil {
		t.Fatalf("GetScore: %v", err)
	}
	if got.Title != "First" {
		t.Errorf("title = %q, want First", got.Title)
	}
}

func TestPropertyChainIndependentOfVersions(t *testing.T) {
	ctx := context.Background()
	e := NewEngine(object.NewMemStore(), NewMemState(), nil)
	id := ScoreID{Owner: "u1", Name: "s1"}
	created := mustCreate(t, e, id, "Old", "")
	v1 := mustCommit(t, e, id, created.Snapshot, addOp("A"))

	title := "New"
	if _, err := e.UpdateProperty(ctx, id, created.Property, UpdateProperty{Title: &title}); err != nil {
		t.Fatalf("UpdateProperty: %v", err)
	}

	// Page commits still chain off the snapshot parent untouched by the
	// property update.
	v2 := mustCommit(t, e, id, v1.Snapshot, addOp("B"))
	if v2.Version != 2 {
		t.Errorf("commit after property update: version %d, want 2", v2.Version)
	}

	// Historical versions materialize with the current property record.
	got, err := e.GetVersion(ctx, id, "1")
	if err != nil {
		t.Fatalf("GetVersion(1): %v", err)
	}
	if got.Title != "New" {
		t.Errorf("version 1 title = %q, want current title New", got.Title)
	}

	count := 0
	for _, err := range e.ListVersions(ctx, id) {
		if err != nil {
			t.Fatalf("ListVersions: %v", err)
		}
		count++
	}
	if count != 2 {
		t.Errorf("versions = %d, want 2 (property updates excluded)", count)
	}
}

func TestConcurrentCommitsSingleWinner(t *testing.T) {
	ctx := context.Background()
	for name, e := range testEngines(t) {
		t.Run(name, func(t *testing.T) {
			id := ScoreID{Owner: "u1", Name: "s1"}
			created := mustCreate(t, e, id, "", "")

			const workers = 16
			var wg sync.WaitGroup
			wg.Add(workers)

			successCh := make(chan *CommitResult, workers)
			errCh := make(chan error, workers)

			for i := 0; i < workers; i++ {
				i := i
				go func() {
					defer wg.Done()
					res, err := e.Commit(ctx, id, created.Snapshot, []Op{addOp(strconv.Itoa(i))})
					if err != nil {
						errCh <- err
						return
					}
					successCh <- res
				}()
			}

			wg.Wait()
			close(successCh)
			close(errCh)

			var winner *CommitResult
			successes := 0
			for res := range successCh {
				successes++
				winner = res
			}
			if successes != 1 {
				t.Fatalf("successful commits = %d, want 1", successes)
			}

			conflicts := 0
			for err := range errCh {
				if errors.Is(err, ErrConcurrencyConflict) {
					conflicts++
					continue
				}
				t.Fatalf("unexpected error type: %v", err)
			}
			if conflicts != workers-1 {
				t.Fatalf("conflicts = %d, want %d", conflicts, workers-1)
			}

			got, err := e.GetScore(ctx, id)
			if err != nil {
				t.Fatalf("GetScore: %v", err)
			}
			if got.Snapshot != winner.Snapshot || got.Version != 1 {
				t.Fatalf("head = %s v%d, want winner %s v1", got.Snapshot.Short(), got.Version, winner.Snapshot.Short())
			}
		})
	}
}

func TestConcurrentCommitsWithRetry(t *testing.T) {
	ctx := context.Background()
	for name, e := range testEngines(t) {
		t.Run(name, func(t *testing.T) {
			id := ScoreID{Owner: "u1", Name: "s1"}
			mustCreate(t, e, id, "", "")

			const workers = 8
			var wg sync.WaitGroup
			wg.Add(workers)

			versionCh := make(chan uint64, workers)
			errCh := make(chan error, workers)

			for i := 0; i < workers; i++ {
				i := i
				go func() {
					defer wg.Done()
					for {
						head, err := e.Head(ctx, id)
						if err != nil {
							errCh <- err
							return
						}
						res, err := e.Commit(ctx, id, head.Snapshot, []Op{addOp(fmt.Sprintf("w%d", i))})
						if err != nil {
							if errors.Is(err, ErrConcurrencyConflict) {
								continue
							}
							errCh <- err
							return
						}
						versionCh <- res.Version
						return
					}
				}()
			}

			wg.Wait()
			close(versionCh)
			close(errCh)

			for err := range errCh {
				t.Fatalf("worker failed: %v", err)
			}

			// All workers landed, on distinct gapless versions.
			seen := make(map[uint64]bool)
			for v := range versionCh {
				if seen[v] {
					t.Fatalf("version %d allocated twice", v)
				}
				seen[v] = true
			}
			if len(seen) != workers {
				t.Fatalf("distinct versions = %d, want %d", len(seen), workers)
			}
			for v := uint64(1); v <= workers; v++ {
				if !seen[v] {
					t.Fatalf("version %d missing from allocation", v)
				}
			}

			got, err := e.GetScore(ctx, id)
			if err != nil {
				t.Fatalf("GetScore: %v", err)
			}
			if got.Version != workers || len(got.Pages) != workers {
				t.Fatalf("final state v%d with %d pages, want v%d with %d", got.Version, len(got.Pages), workers, workers)
			}
		})
	}
}

func TestListScores(t *testing.T) {
	ctx := context.Background()
	e := NewEngine(object.NewMemStore(), NewMemState(), nil)

	for _, id := range []ScoreID{
		{Owner: "u2", Name: "b"},
		{Owner: "u1", Name: "z"},
		{Owner: "u1", Name: "a"},
	} {
		mustCreate(t, e, id, "", "")
	}

	all, err := e.ListScores(ctx, "")
	if err != nil {
		t.Fatalf("ListScores: %v", err)
	}
	want := []ScoreID{{Owner: "u1", Name: "a"}, {Owner: "u1", Name: "z"}, {Owner: "u2", Name: "b"}}
	if len(all) != len(want) {
		t.Fatalf("ListScores returned %d ids, want %d", len(all), len(want))
	}
	for i := range want {
		if all[i] != want[i] {
			t.Errorf("ListScores[%d] = %s, want %s", i, all[i], want[i])
		}
	}

	u1, err := e.ListScores(ctx, "u1")
	if err != nil {
		t.Fatalf("ListScores(u1): %v", err)
	}
	if len(u1) != 2 {
		t.Errorf("ListScores(u1) returned %d ids, want 2", len(u1))
	}
}

func TestSonataScenario(t *testing.T) {
	// Create with {title: "Sonata"}, add two pages, confirm one version and
	// two pages, fail a stale insert, then retry against the fresh head.
	ctx := context.Background()
	for name, e := range testEngines(t) {
		t.Run(name, func(t *testing.T) {
			id := ScoreID{Owner: "u1", Name: "s1"}
			created := mustCreate(t, e, id, "Sonata", "")

			first := mustCommit(t, e, id, created.Snapshot, addOp("1"), addOp("2"))

			got, err := e.GetScore(ctx, id)
			if err != nil {
				t.Fatalf("GetScore: %v", err)
			}
			if got.Title != "Sonata" {
				t.Errorf("title = %q, want Sonata", got.Title)
			}
			if len(got.Pages) != 2 {
				t.Errorf("page count = %d, want 2", len(got.Pages))
			}
			versions := 0
			for _, err := range e.ListVersions(ctx, id) {
				if err != nil {
					t.Fatalf("ListVersions: %v", err)
				}
				versions++
			}
			if versions != 1 {
				t.Errorf("version count = %d, want 1", versions)
			}

			// Insert against the stale (pre-commit) parent.
			stale := InsertPage{Index: 1, Image: "img-X", Thumb: "thumb-X", Number: "X"}
			if _, err := e.Commit(ctx, id, created.Snapshot, []Op{stale}); !errors.Is(err, ErrConcurrencyConflict) {
				t.Fatalf("stale insert: got %v, want ErrConcurrencyConflict", err)
			}

			// Re-fetch and retry.
			head, err := e.Head(ctx, id)
			if err != nil {
				t.Fatalf("Head: %v", err)
			}
			if head.Snapshot != first.Snapshot {
				t.Fatalf("head snapshot %s, want %s", head.Snapshot.Short(), first.Snapshot.Short())
			}
			res := mustCommit(t, e, id, head.Snapshot, stale)
			if res.Version != 2 {
				t.Errorf("retry version = %d, want 2", res.Version)
			}
			if !sameNumbers(res.Pages, "1", "X", "2") {
				t.Errorf("retry pages = %v, want [1 X 2]", pageNumbers(res.Pages))
			}

			versions = 0
			for _, err := range e.ListVersions(ctx, id) {
				if err != nil {
					t.Fatalf("ListVersions: %v", err)
				}
				versions++
			}
			if versions != 2 {
				t.Errorf("final version count = %d, want 2", versions)
			}
		})
	}
}

func TestCommitDedupsIdenticalPages(t *testing.T) {
	ctx := context.Background()
	store := object.NewMemStore()
	e := NewEngine(store, NewMemState(), nil)
	id := ScoreID{Owner: "u1", Name: "s1"}
	created := mustCreate(t, e, id, "", "")

	// The same page content twice in one sequence: both positions share one
	// stored object.
	res := mustCommit(t, e, id, created.Snapshot, addOp("A"), addOp("A"))
	if len(res.Pages) != 2 {
		t.Fatalf("pages = %d, want 2", len(res.Pages))
	}
	if res.Pages[0].Hash != res.Pages[1].Hash {
		t.Errorf("identical pages hashed differently: %s vs %s",
			res.Pages[0].Hash.Short(), res.Pages[1].Hash.Short())
	}

	got, err := e.GetScore(ctx, id)
	if err != nil {
		t.Fatalf("GetScore: %v", err)
	}
	if !sameNumbers(got.Pages, "A", "A") {
		t.Errorf("pages = %v, want [A A]", pageNumbers(got.Pages))
	}
}

func TestCommitMissingReferencedObject(t *testing.T) {
	// Corrupt the store under a live score: the head snapshot's page file
	// disappears. The engine must surface NotFound loudly, not fabricate an
	// empty view.
	ctx := context.Background()
	dir := t.TempDir()
	store := object.NewFileStore(dir)
	e := NewEngine(store, NewFSState(t.TempDir()), nil)

	id := ScoreID{Owner: "u1", Name: "s1"}
	created := mustCreate(t, e, id, "", "")
	res := mustCommit(t, e, id, created.Snapshot, addOp("A"))

	pageHash := res.Pages[0].Hash
	if err := removeStoredObject(dir, pageHash); err != nil {
		t.Fatalf("remove object file: %v", err)
	}

	_, err := e.GetScore(ctx, id)
	if !errors.Is(err, object.ErrNotFound) {
		t.Errorf("GetScore over missing page: got %v, want ErrNotFound", err)
	}
	var missing *object.MissingObjectsError
	if !errors.As(err, &missing) {
		t.Fatalf("error type = %T, want *object.MissingObjectsError", err)
	}
	if len(missing.Missing) != 1 || missing.Missing[0] != pageHash {
		t.Errorf("missing set = %v, want [%s]", missing.Missing, pageHash.Short())
	}
}
