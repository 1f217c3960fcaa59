package archive

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"

	"github.com/crotchet/stave/pkg/object"
	"github.com/crotchet/stave/pkg/score"
)

// ImportStatus reports how an import resolved against existing state.
type ImportStatus string

const (
	// ImportCreated means the score did not exist and was installed whole.
	ImportCreated ImportStatus = "created"
	// ImportFastForward means the score existed and the archive extended its
	// history; the head advanced.
	ImportFastForward ImportStatus = "fast-forward"
	// ImportUpToDate means local state already covers the archive; nothing
	// changed.
	ImportUpToDate ImportStatus = "up-to-date"
)

// ImportResult reports a successful import.
type ImportResult struct {
	Score   score.ScoreID
	Head    score.Head
	Objects int // objects newly stored
	Status  ImportStatus
}

// Import reads an archive and installs its score. Objects are verified
// against their recorded hashes as they stream in; content addressing makes
// re-importing the same archive a no-op. An archive whose history neither
// matches nor extends the existing score fails with ErrDiverged, leaving the
// head untouched.
func Import(ctx context.Context, objects object.Store, state score.State, r io.Reader) (*ImportResult, error) {
	if _, err := readHeader(r); err != nil {
		return nil, fmt.Errorf("import: %w", err)
	}
	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("import: zstd: %w", err)
	}
	defer dec.Close()

	var (
		id       score.ScoreID
		haveID   bool
		head     score.Head
		haveHead bool
		entries  []score.VersionEntry
		stored   int
	)

	for !haveHead {
		kind, payload, err := readRecord(dec)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("import: %w", err)
		}

		switch kind {
		case recScoreID:
			if haveID {
				return nil, fmt.Errorf("import: duplicate score record")
			}
			id, err = unmarshalScoreID(payload)
			if err != nil {
				return nil, fmt.Errorf("import: %w", err)
			}
			haveID = true

		case recObject:
			if !haveID {
				return nil, fmt.Errorf("import: object record before score record")
			}
			n, err := importObject(ctx, objects, payload)
			if err != nil {
				return nil, err
			}
			stored += n

		case recVersion:
			entry, err := unmarshalVersionEntry(payload)
			if err != nil {
				return nil, fmt.Errorf("import: %w", err)
			}
			entries = append(entries, entry)

		case recHead:
			head, err = score.UnmarshalHead(payload)
			if err != nil {
				return nil, fmt.Errorf("import: %w", err)
			}
			haveHead = true

		default:
			return nil, fmt.Errorf("import: unknown record kind %d", kind)
		}
	}
	if !haveID || !haveHead {
		return nil, fmt.Errorf("import: truncated archive")
	}

	if uint64(len(entries)) != head.Version {
		return nil, fmt.Errorf("import %s: version index has %d entries, head at v%d",
			id, len(entries), head.Version)
	}
	for i, e := range entries {
		if e.Number != uint64(i+1) {
			return nil, fmt.Errorf("import %s: version index gap at entry %d (number %d)", id, i, e.Number)
		}
	}

	// The imported head must materialize from what the store now holds.
	if _, err := object.Reachable(ctx, objects, []object.Hash{head.Snapshot, head.Property}); err != nil {
		return nil, fmt.Errorf("import %s: incomplete archive: %w", id, err)
	}

	res := &ImportResult{Score: id, Head: head, Objects: stored}

	cur, err := state.ReadHead(ctx, id)
	if errors.Is(err, score.ErrScoreNotFound) {
		if err := replayVersions(ctx, state, id, entries, 0); err != nil {
			return nil, fmt.Errorf("import %s: %w", id, err)
		}
		if err := state.CreateHead(ctx, id, head); err != nil {
			return nil, fmt.Errorf("import %s: %w", id, err)
		}
		res.Status = ImportCreated
		return res, nil
	}
	if err != nil {
		return nil, fmt.Errorf("import %s: %w", id, err)
	}

	if cur == head {
		res.Status = ImportUpToDate
		return res, nil
	}

	rel, err := headRelation(ctx, objects, cur, head)
	if err != nil {
		return nil, fmt.Errorf("import %s: %w", id, err)
	}
	switch rel {
	case relLocalAhead:
		res.Head = cur
		res.Status = ImportUpToDate
		return res, nil
	case relArchiveAhead:
		if err := replayVersions(ctx, state, id, entries, cur.Version); err != nil {
			return nil, fmt.Errorf("import %s: %w", id, err)
		}
		if err := state.CompareAndSwapHead(ctx, id, cur, head); err != nil {
			return nil, fmt.Errorf("import %s: %w", id, err)
		}
		res.Status = ImportFastForward
		return res, nil
	default:
		return nil, fmt.Errorf("import %s: %w", id, ErrDiverged)
	}
}

// importObject verifies one object record and stores it. Returns 1 when the
// object was not previously present.
func importObject(ctx context.Context, objects object.Store, payload []byte) (int, error) {
	if len(payload) < 64 {
		return 0, fmt.Errorf("import: short object record (%d bytes)", len(payload))
	}
	recorded := object.Hash(payload[:64])
	if !recorded.Valid() {
		return 0, fmt.Errorf("import: malformed object hash %q", payload[:64])
	}
	objType, data, err := object.ParseEnvelope(recorded, payload[64:])
	if err != nil {
		return 0, fmt.Errorf("import: %w", err)
	}
	if object.HashObject(objType, data) != recorded {
		return 0, fmt.Errorf("import: object %s fails hash check", recorded.Short())
	}

	exists, err := objects.Has(ctx, recorded)
	if err != nil {
		return 0, fmt.Errorf("import: %w", err)
	}
	if _, err := objects.Put(ctx, objType, data); err != nil {
		return 0, fmt.Errorf("import: %w", err)
	}
	if exists {
		return 0, nil
	}
	return 1, nil
}

// replayVersions appends entries above the given floor, skipping numbers the
// index already resolves so a re-run after a partial import converges.
func replayVersions(ctx context.Context, state score.State, id score.ScoreID, entries []score.VersionEntry, floor uint64) error {
	for _, entry := range entries {
		if entry.Number <= floor {
			continue
		}
		_, err := state.ResolveVersion(ctx, id, entry.Number)
		if err == nil {
			continue
		}
		if !errors.Is(err, score.ErrVersionNotFound) {
			return err
		}
		if err := state.AppendVersion(ctx, id, entry); err != nil {
			return err
		}
	}
	return nil
}

type relation int

const (
	relDiverged relation = iota
	relLocalAhead
	relArchiveAhead
)

type chainRel int

const (
	chainEqual chainRel = iota
	chainArchiveAhead
	chainLocalAhead
	chainDiverged
)

type parentFunc func(ctx context.Context, objects object.Store, h object.Hash) (object.Hash, error)

func snapshotParent(ctx context.Context, objects object.Store, h object.Hash) (object.Hash, error) {
	snap, err := object.ReadSnapshot(ctx, objects, h)
	if err != nil {
		return "", err
	}
	return snap.Parent, nil
}

func propertyParent(ctx context.Context, objects object.Store, h object.Hash) (object.Hash, error) {
	prop, err := object.ReadProperty(ctx, objects, h)
	if err != nil {
		return "", err
	}
	return prop.Parent, nil
}

// chainContains walks parent links from start and reports whether target
// appears. Chains are linear and content-addressed, so the walk terminates.
func chainContains(ctx context.Context, objects object.Store, start, target object.Hash, parent parentFunc) (bool, error) {
	for h := start; h != ""; {
		if h == target {
			return true, nil
		}
		p, err := parent(ctx, objects, h)
		if err != nil {
			return false, err
		}
		h = p
	}
	return false, nil
}

func chainRelation(ctx context.Context, objects object.Store, local, arch object.Hash, parent parentFunc) (chainRel, error) {
	if local == arch {
		return chainEqual, nil
	}
	ok, err := chainContains(ctx, objects, arch, local, parent)
	if err != nil {
		return chainDiverged, err
	}
	if ok {
		return chainArchiveAhead, nil
	}
	ok, err = chainContains(ctx, objects, local, arch, parent)
	if err != nil {
		return chainDiverged, err
	}
	if ok {
		return chainLocalAhead, nil
	}
	return chainDiverged, nil
}

// headRelation decides whether the archive head extends the local head, is
// covered by it, or diverges. Both the snapshot chain and the property chain
// must agree on the direction; the version counter must be consistent with
// the snapshot relation.
func headRelation(ctx context.Context, objects object.Store, cur, arch score.Head) (relation, error) {
	snapRel, err := chainRelation(ctx, objects, cur.Snapshot, arch.Snapshot, snapshotParent)
	if err != nil {
		return relDiverged, err
	}
	propRel, err := chainRelation(ctx, objects, cur.Property, arch.Property, propertyParent)
	if err != nil {
		return relDiverged, err
	}

	switch {
	case snapRel == chainDiverged || propRel == chainDiverged:
		return relDiverged, nil
	case snapRel == chainEqual && arch.Version != cur.Version:
		return relDiverged, nil
	case snapRel == chainArchiveAhead && arch.Version <= cur.Version:
		return relDiverged, nil
	case snapRel == chainLocalAhead && cur.Version <= arch.Version:
		return relDiverged, nil
	}

	archAhead := snapRel == chainArchiveAhead || propRel == chainArchiveAhead
	localAhead := snapRel == chainLocalAhead || propRel == chainLocalAhead
	switch {
	case archAhead && localAhead:
		return relDiverged, nil
	case archAhead:
		return relArchiveAhead, nil
	case localAhead:
		return relLocalAhead, nil
	default:
		// Both chains equal yet the heads differ: inconsistent counters.
		return relDiverged, nil
	}
}
