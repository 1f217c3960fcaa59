package object

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

// Canonical encodings are line-oriented "key value" headers. User-supplied
// strings (refs, page numbers, titles) are Go-quoted so embedded spaces and
// newlines cannot break the framing; parent hashes are bare, with "-"
// standing in for the empty root parent. Field order is fixed and absent
// optional fields are omitted, so two logically identical objects always
// produce identical bytes.

func hashOrDash(h Hash) string {
	if h == "" {
		return "-"
	}
	return string(h)
}

func dashOrHash(s string) Hash {
	if s == "-" {
		return Hash("")
	}
	return Hash(s)
}

// ---------------------------------------------------------------------------
// PageObj
// ---------------------------------------------------------------------------

// MarshalPage serializes a PageObj:
//
//	image "ref"
//	thumb "ref"
//	number "label"
func MarshalPage(p *PageObj) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "image %s\n", strconv.Quote(p.ImageRef))
	fmt.Fprintf(&buf, "thumb %s\n", strconv.Quote(p.ThumbRef))
	fmt.Fprintf(&buf, "number %s\n", strconv.Quote(p.Number))
	return buf.Bytes()
}

// UnmarshalPage parses a PageObj from its serialized form.
func UnmarshalPage(data []byte) (*PageObj, error) {
	p := &PageObj{}
	text := strings.TrimRight(string(data), "\n")
	for _, line := range strings.Split(text, "\n") {
		key, val, err := cutQuoted(line)
		if err != nil {
			return nil, fmt.Errorf("unmarshal page: %w", err)
		}
		switch key {
		case "image":
			p.ImageRef = val
		case "thumb":
			p.ThumbRef = val
		case "number":
			p.Number = val
		default:
			return nil, fmt.Errorf("unmarshal page: unknown header key %q", key)
		}
	}
	return p, nil
}

// ---------------------------------------------------------------------------
// SnapshotObj
// ---------------------------------------------------------------------------

// MarshalSnapshot serializes a SnapshotObj:
//
//	parent H (or "-")
//
//	pagehash1
//	pagehash2
//	...
//
// Page order is preserved exactly: the sequence is part of the identity.
func MarshalSnapshot(s *SnapshotObj) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "parent %s\n", hashOrDash(s.Parent))
	buf.WriteByte('\n')
	for _, h := range s.Pages {
		fmt.Fprintf(&buf, "%s\n", string(h))
	}
	return buf.Bytes()
}

// UnmarshalSnapshot parses a SnapshotObj from its serialized form.
func UnmarshalSnapshot(data []byte) (*SnapshotObj, error) {
	idx := bytes.Index(data, []byte("\n\n"))
	if idx < 0 {
		return nil, fmt.Errorf("unmarshal snapshot: missing header/body separator")
	}
	header := string(data[:idx])
	body := string(data[idx+2:])

	s := &SnapshotObj{}
	for _, line := range strings.Split(header, "\n") {
		key, val, ok := strings.Cut(line, " ")
		if !ok {
			return nil, fmt.Errorf("unmarshal snapshot: malformed header line %q", line)
		}
		switch key {
		case "parent":
			s.Parent = dashOrHash(val)
		default:
			return nil, fmt.Errorf("unmarshal snapshot: unknown header key %q", key)
		}
	}

	if strings.TrimSpace(body) != "" {
		for _, line := range strings.Split(strings.TrimRight(body, "\n"), "\n") {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			if !Hash(line).Valid() {
				return nil, fmt.Errorf("unmarshal snapshot: malformed page hash %q", line)
			}
			s.Pages = append(s.Pages, Hash(line))
		}
	}
	return s, nil
}

// ---------------------------------------------------------------------------
// PropertyObj
// ---------------------------------------------------------------------------

// MarshalProperty serializes a PropertyObj:
//
//	parent H (or "-")
//	title "T"        (omitted when empty)
//	description "D"  (omitted when empty)
func MarshalProperty(p *PropertyObj) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "parent %s\n", hashOrDash(p.Parent))
	if p.Title != "" {
		fmt.Fprintf(&buf, "title %s\n", strconv.Quote(p.Title))
	}
	if p.Description != "" {
		fmt.Fprintf(&buf, "description %s\n", strconv.Quote(p.Description))
	}
	return buf.Bytes()
}

// UnmarshalProperty parses a PropertyObj from its serialized form.
func UnmarshalProperty(data []byte) (*PropertyObj, error) {
	p := &PropertyObj{}
	text := strings.TrimRight(string(data), "\n")
	for _, line := range strings.Split(text, "\n") {
		key, rest, ok := strings.Cut(line, " ")
		if !ok {
			return nil, fmt.Errorf("unmarshal property: malformed header line %q", line)
		}
		switch key {
		case "parent":
			p.Parent = dashOrHash(rest)
		case "title":
			val, err := strconv.Unquote(rest)
			if err != nil {
				return nil, fmt.Errorf("unmarshal property: bad title %q: %w", rest, err)
			}
			p.Title = val
		case "description":
			val, err := strconv.Unquote(rest)
			if err != nil {
				return nil, fmt.Errorf("unmarshal property: bad description %q: %w", rest, err)
			}
			p.Description = val
		default:
			return nil, fmt.Errorf("unmarshal property: unknown header key %q", key)
		}
	}
	return p, nil
}

// cutQuoted splits a "key \"value\"" header line and unquotes the value.
func cutQuoted(line string) (key, val string, err error) {
	key, rest, ok := strings.Cut(line, " ")
	if !ok {
		return "", "", fmt.Errorf("malformed header line %q", line)
	}
	val, err = strconv.Unquote(rest)
	if err != nil {
		return "", "", fmt.Errorf("bad value for %q: %w", key, err)
	}
	return key, val, nil
}
