package archive

import (
	"context"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"

	"github.com/crotchet/stave/pkg/object"
	"github.com/crotchet/stave/pkg/score"
)

// Export writes one score's complete history to w: every object reachable
// from the head, the version index, and the head record itself, all behind a
// fixed header and zstd-compressed. The head record is written last so an
// importer only installs it once everything it references is present.
func Export(ctx context.Context, objects object.Store, state score.State, id score.ScoreID, w io.Writer) error {
	if err := id.Validate(); err != nil {
		return err
	}
	head, err := state.ReadHead(ctx, id)
	if err != nil {
		return err
	}

	var entries []score.VersionEntry
	for entry, err := range state.ListVersions(ctx, id) {
		if err != nil {
			return fmt.Errorf("export %s: %w", id, err)
		}
		entries = append(entries, entry)
	}

	// The chains are linear, so the two head hashes reach the full history.
	reach, err := object.Reachable(ctx, objects, []object.Hash{head.Snapshot, head.Property})
	if err != nil {
		return fmt.Errorf("export %s: %w", id, err)
	}
	hashes := make([]object.Hash, 0, len(reach))
	for h := range reach {
		hashes = append(hashes, h)
	}
	hashes = object.NormalizeHashes(hashes)

	if _, err := w.Write((Header{Version: supportedVersion}).Marshal()); err != nil {
		return fmt.Errorf("export %s: header: %w", id, err)
	}
	enc, err := zstd.NewWriter(w)
	if err != nil {
		return fmt.Errorf("export %s: zstd: %w", id, err)
	}
	if err := exportRecords(ctx, enc, objects, id, head, entries, hashes); err != nil {
		enc.Close()
		return err
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("export %s: flush: %w", id, err)
	}
	return nil
}

func exportRecords(ctx context.Context, w io.Writer, objects object.Store, id score.ScoreID, head score.Head, entries []score.VersionEntry, hashes []object.Hash) error {
	if err := writeRecord(w, recScoreID, marshalScoreID(id)); err != nil {
		return fmt.Errorf("export %s: score record: %w", id, err)
	}

	// Object payload: the 64-char hash followed by the envelope, so import
	// can verify every object against its recorded identity.
	for _, h := range hashes {
		objType, data, err := objects.Get(ctx, h)
		if err != nil {
			return fmt.Errorf("export %s: %w", id, err)
		}
		payload := append([]byte(h), object.EncodeEnvelope(objType, data)...)
		if err := writeRecord(w, recObject, payload); err != nil {
			return fmt.Errorf("export %s: object record: %w", id, err)
		}
	}

	for _, entry := range entries {
		if err := writeRecord(w, recVersion, marshalVersionEntry(entry)); err != nil {
			return fmt.Errorf("export %s: version record: %w", id, err)
		}
	}

	if err := writeRecord(w, recHead, score.MarshalHead(head)); err != nil {
		return fmt.Errorf("export %s: head record: %w", id, err)
	}
	return nil
}
