package score

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/crotchet/stave/pkg/object"
)

func TestVerifyClean(t *testing.T) {
	ctx := context.Background()
	e := NewEngine(object.NewMemStore(), NewMemState(), nil)

	id := ScoreID{Owner: "u1", Name: "s1"}
	created := mustCreate(t, e, id, "Sonata", "")
	res := mustCommit(t, e, id, created.Snapshot, addOp("A"), addOp("B"))
	mustCommit(t, e, id, res.Snapshot, DeletePage{Index: 0})

	report, err := e.Verify(ctx, "")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !report.Clean() {
		t.Fatalf("clean store reported dirty: missing=%v corrupt=%v", report.Missing, report.Corrupt)
	}
	if report.Scores != 1 {
		t.Errorf("scores walked = %d, want 1", report.Scores)
	}
	if len(report.Orphans) != 0 {
		t.Errorf("orphans = %v, want none", report.Orphans)
	}
	if report.Reachable == 0 {
		t.Error("no reachable objects counted")
	}
}

func TestVerifyMissingObject(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	e := NewEngine(object.NewFileStore(dir), NewFSState(t.TempDir()), nil)

	id := ScoreID{Owner: "u1", Name: "s1"}
	created := mustCreate(t, e, id, "", "")
	res := mustCommit(t, e, id, created.Snapshot, addOp("A"))

	pageHash := res.Pages[0].Hash
	if err := removeStoredObject(dir, pageHash); err != nil {
		t.Fatalf("remove object: %v", err)
	}

	report, err := e.Verify(ctx, "")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if report.Clean() {
		t.Fatal("missing object not detected")
	}
	if len(report.Missing) != 1 || report.Missing[0] != pageHash {
		t.Errorf("missing = %v, want [%s]", report.Missing, pageHash.Short())
	}
}

func TestVerifyCorruptObject(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	e := NewEngine(object.NewFileStore(dir), NewFSState(t.TempDir()), nil)

	id := ScoreID{Owner: "u1", Name: "s1"}
	created := mustCreate(t, e, id, "", "")
	res := mustCommit(t, e, id, created.Snapshot, addOp("A"))

	// Rewrite a page file with different content under the same key. The
	// envelope stays well-formed so only the hash check can catch it.
	pageHash := res.Pages[0].Hash
	forged := object.MarshalPage(&object.PageObj{ImageRef: "forged", ThumbRef: "forged", Number: "X"})
	data := append([]byte(fmt.Sprintf("page %d\x00", len(forged))), forged...)
	path := filepath.Join(dir, "objects", string(pageHash[:2]), string(pageHash[2:]))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("forge object: %v", err)
	}

	report, err := e.Verify(ctx, "")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if len(report.Corrupt) != 1 || report.Corrupt[0] != pageHash {
		t.Errorf("corrupt = %v, want [%s]", report.Corrupt, pageHash.Short())
	}
}

func TestVerifyReportsOrphans(t *testing.T) {
	ctx := context.Background()
	store := object.NewMemStore()
	e := NewEngine(store, NewMemState(), nil)

	id := ScoreID{Owner: "u1", Name: "s1"}
	created := mustCreate(t, e, id, "", "")
	mustCommit(t, e, id, created.Snapshot, addOp("A"))

	// A page written outside any snapshot, like the debris of a lost CAS
	// race.
	orphan, err := object.WritePage(ctx, store, &object.PageObj{Number: "stray"})
	if err != nil {
		t.Fatalf("WritePage: %v", err)
	}

	report, err := e.Verify(ctx, "")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !report.Clean() {
		t.Fatalf("orphan made the store dirty: missing=%v corrupt=%v", report.Missing, report.Corrupt)
	}
	if len(report.Orphans) != 1 || report.Orphans[0] != orphan {
		t.Errorf("orphans = %v, want [%s]", report.Orphans, orphan.Short())
	}

	// The orphan is reported, never removed.
	if ok, err := store.Has(ctx, orphan); err != nil || !ok {
		t.Errorf("orphan removed from store (has=%v, err=%v)", ok, err)
	}
}

func TestVerifyScopedToOwner(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	e := NewEngine(object.NewFileStore(dir), NewFSState(t.TempDir()), nil)

	a := ScoreID{Owner: "alice", Name: "s"}
	b := ScoreID{Owner: "bob", Name: "s"}
	ca := mustCreate(t, e, a, "", "")
	cb := mustCreate(t, e, b, "", "")
	mustCommit(t, e, a, ca.Snapshot, addOp("A"))
	res := mustCommit(t, e, b, cb.Snapshot, addOp("B"))

	// Damage bob's page; verifying alice alone stays clean.
	if err := removeStoredObject(dir, res.Pages[0].Hash); err != nil {
		t.Fatalf("remove object: %v", err)
	}

	report, err := e.Verify(ctx, "alice")
	if err != nil {
		t.Fatalf("Verify(alice): %v", err)
	}
	if report.Scores != 1 {
		t.Errorf("scores walked = %d, want 1", report.Scores)
	}
	if len(report.Missing) != 0 {
		t.Errorf("alice's walk found bob's damage: %v", report.Missing)
	}

	report, err = e.Verify(ctx, "bob")
	if err != nil {
		t.Fatalf("Verify(bob): %v", err)
	}
	if len(report.Missing) != 1 {
		t.Errorf("bob's missing page not found: %v", report.Missing)
	}
}
