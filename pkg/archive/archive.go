package archive

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/crotchet/stave/pkg/object"
	"github.com/crotchet/stave/pkg/score"
)

const (
	headerSize       = 8
	supportedVersion = 1

	// maxRecordSize bounds a single record so a corrupt length field cannot
	// drive allocation.
	maxRecordSize = 1 << 30
)

var archiveMagic = [4]byte{'S', 'T', 'A', 'V'}

// Record kinds. A well-formed archive is one score record, the object
// records, the version records in ascending order, and finally the head.
const (
	recScoreID byte = 1
	recObject  byte = 2
	recVersion byte = 3
	recHead    byte = 4
)

// ErrDiverged reports an import whose history cannot be reconciled with the
// score already present: neither side is an ancestor of the other.
var ErrDiverged = errors.New("score exists with diverging history")

// Header is the fixed-size uncompressed archive header.
//
// Bytes:
//   - 0..3: "STAV"
//   - 4..7: format version (big-endian)
type Header struct {
	Version uint32
}

// Marshal serializes the header to its canonical 8 bytes.
func (h Header) Marshal() []byte {
	buf := make([]byte, headerSize)
	copy(buf[:4], archiveMagic[:])
	binary.BigEndian.PutUint32(buf[4:8], h.Version)
	return buf
}

func readHeader(r io.Reader) (Header, error) {
	buf := make([]byte, headerSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return Header{}, fmt.Errorf("archive header: %w", err)
	}
	if string(buf[:4]) != string(archiveMagic[:]) {
		return Header{}, fmt.Errorf("invalid archive magic %q", buf[:4])
	}
	version := binary.BigEndian.Uint32(buf[4:8])
	if version != supportedVersion {
		return Header{}, fmt.Errorf("unsupported archive version %d", version)
	}
	return Header{Version: version}, nil
}

// writeRecord frames one record: kind byte, big-endian payload length,
// payload.
func writeRecord(w io.Writer, kind byte, payload []byte) error {
	hdr := make([]byte, 5)
	hdr[0] = kind
	binary.BigEndian.PutUint32(hdr[1:5], uint32(len(payload)))
	if _, err := w.Write(hdr); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// readRecord reads one framed record. io.EOF is returned cleanly at a record
// boundary; a partial record is an error.
func readRecord(r io.Reader) (byte, []byte, error) {
	hdr := make([]byte, 5)
	if _, err := io.ReadFull(r, hdr); err != nil {
		if err == io.EOF {
			return 0, nil, io.EOF
		}
		return 0, nil, fmt.Errorf("record header: %w", err)
	}
	size := binary.BigEndian.Uint32(hdr[1:5])
	if size > maxRecordSize {
		return 0, nil, fmt.Errorf("record of %d bytes exceeds limit", size)
	}
	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return 0, nil, fmt.Errorf("record payload: %w", err)
	}
	return hdr[0], payload, nil
}

func marshalScoreID(id score.ScoreID) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "owner %s\n", strconv.Quote(id.Owner))
	fmt.Fprintf(&b, "name %s\n", strconv.Quote(id.Name))
	return b.Bytes()
}

func unmarshalScoreID(data []byte) (score.ScoreID, error) {
	var id score.ScoreID
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		key, rest, ok := strings.Cut(line, " ")
		if !ok {
			return score.ScoreID{}, fmt.Errorf("malformed score record line %q", line)
		}
		val, err := strconv.Unquote(rest)
		if err != nil {
			return score.ScoreID{}, fmt.Errorf("malformed score record line %q: %w", line, err)
		}
		switch key {
		case "owner":
			id.Owner = val
		case "name":
			id.Name = val
		default:
			return score.ScoreID{}, fmt.Errorf("unknown score record field %q", key)
		}
	}
	if err := id.Validate(); err != nil {
		return score.ScoreID{}, err
	}
	return id, nil
}

func marshalVersionEntry(e score.VersionEntry) []byte {
	return fmt.Appendf(nil, "%d %s", e.Number, e.Snapshot)
}

func unmarshalVersionEntry(data []byte) (score.VersionEntry, error) {
	fields := strings.Fields(string(data))
	if len(fields) != 2 {
		return score.VersionEntry{}, fmt.Errorf("malformed version record %q", data)
	}
	number, err := strconv.ParseUint(fields[0], 10, 64)
	if err != nil {
		return score.VersionEntry{}, fmt.Errorf("malformed version number %q: %w", fields[0], err)
	}
	snapshot := object.Hash(fields[1])
	if !snapshot.Valid() {
		return score.VersionEntry{}, fmt.Errorf("malformed version snapshot %q", fields[1])
	}
	return score.VersionEntry{Number: number, Snapshot: snapshot}, nil
}
