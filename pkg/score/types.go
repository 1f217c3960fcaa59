package score

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/crotchet/stave/pkg/object"
)

// ScoreID names a score: an owner plus a score name unique within that owner.
type ScoreID struct {
	Owner string
	Name  string
}

func (id ScoreID) String() string {
	return id.Owner + "/" + id.Name
}

// Validate checks that both components are usable as identifiers. Owner and
// name become path segments in the filesystem backends, so separators and
// dot-names are rejected outright.
func (id ScoreID) Validate() error {
	for _, part := range []struct{ label, val string }{
		{"owner", id.Owner},
		{"name", id.Name},
	} {
		v := part.val
		switch {
		case v == "":
			return fmt.Errorf("score id: empty %s", part.label)
		case len(v) > 255:
			return fmt.Errorf("score id: %s too long (%d bytes)", part.label, len(v))
		case v == "." || v == "..":
			return fmt.Errorf("score id: %s %q is reserved", part.label, v)
		case strings.ContainsAny(v, "/\\\x00"):
			return fmt.Errorf("score id: %s %q contains a path separator", part.label, v)
		case strings.HasPrefix(v, "."):
			return fmt.Errorf("score id: %s %q starts with a dot", part.label, v)
		}
	}
	return nil
}

// Head is the single mutable record per score. Everything else is immutable
// content; every write advances the head through one compare-and-swap.
// Version counts page-batch commits only; property updates reuse the number.
type Head struct {
	Snapshot object.Hash
	Property object.Hash
	Version  uint64
}

// MarshalHead encodes a head record as one "snapshot property version"
// line, with "-" standing in for an empty hash. Both state backends store
// heads in this form.
func MarshalHead(h Head) []byte {
	return fmt.Appendf(nil, "%s %s %d\n", hashOrDash(h.Snapshot), hashOrDash(h.Property), h.Version)
}

// UnmarshalHead parses MarshalHead's output.
func UnmarshalHead(data []byte) (Head, error) {
	fields := strings.Fields(strings.TrimSpace(string(data)))
	if len(fields) != 3 {
		return Head{}, fmt.Errorf("malformed head record %q", strings.TrimSpace(string(data)))
	}
	version, err := strconv.ParseUint(fields[2], 10, 64)
	if err != nil {
		return Head{}, fmt.Errorf("malformed head version %q: %w", fields[2], err)
	}
	return Head{
		Snapshot: dashOrHash(fields[0]),
		Property: dashOrHash(fields[1]),
		Version:  version,
	}, nil
}

// VersionEntry is one line of a score's append-only version index.
// Numbers start at 1 and increase without gaps.
type VersionEntry struct {
	Number   uint64
	Snapshot object.Hash
}

// Page is one materialized page of a score.
type Page struct {
	Hash     object.Hash
	ImageRef string
	ThumbRef string
	Number   string
}

// Score is the materialized view of a score at some version: the ordered
// pages of that version's snapshot plus the current property record.
type Score struct {
	ID          ScoreID
	Version     uint64
	Snapshot    object.Hash
	Property    object.Hash
	Title       string
	Description string
	Pages       []Page
}

// CommitResult reports a successful page-batch commit.
type CommitResult struct {
	Snapshot object.Hash
	Version  uint64
	Pages    []Page
}

// PropertyResult reports a successful property update.
type PropertyResult struct {
	Property    object.Hash
	Title       string
	Description string
}
