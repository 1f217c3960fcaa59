package score

import (
	"encoding/json"
	"fmt"
)

// Op is one operation in a page batch. The variant set is closed: AddPage,
// InsertPage, DeletePage, UpdateProperty. Anything else arriving on the wire
// is handled by DecodeOps according to its mode.
type Op interface {
	Kind() string
	isOp()
}

// AddPage appends a page to the end of the sequence.
type AddPage struct {
	Image  string
	Thumb  string
	Number string
}

func (AddPage) Kind() string { return "add_page" }
func (AddPage) isOp()        {}

// InsertPage inserts a page at the given index, shifting later pages right.
// Index may equal the current length, which is equivalent to AddPage.
type InsertPage struct {
	Index  int
	Image  string
	Thumb  string
	Number string
}

func (InsertPage) Kind() string { return "insert_page" }
func (InsertPage) isOp()        {}

// DeletePage removes the page at the given index, shifting later pages left.
type DeletePage struct {
	Index int
}

func (DeletePage) Kind() string { return "delete_page" }
func (DeletePage) isOp()        {}

// UpdateProperty replaces property fields. A nil field keeps the prior
// value; a pointer to the empty string clears it. UpdateProperty travels on
// its own chain and is rejected inside page batches.
type UpdateProperty struct {
	Title       *string
	Description *string
}

func (UpdateProperty) Kind() string { return "update_property" }
func (UpdateProperty) isOp()        {}

// DecodeMode controls how DecodeOps treats unknown operation kinds.
type DecodeMode int

const (
	// DecodeStrict fails the whole batch on the first unknown kind.
	DecodeStrict DecodeMode = iota
	// DecodePermissive silently drops unknown kinds and keeps the rest.
	DecodePermissive
)

type wireOp struct {
	Op          string  `json:"op"`
	Index       *int    `json:"index,omitempty"`
	Image       string  `json:"image,omitempty"`
	Thumb       string  `json:"thumb,omitempty"`
	Number      string  `json:"number,omitempty"`
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
}

// DecodeOps parses a JSON operation batch.
func DecodeOps(data []byte, mode DecodeMode) ([]Op, error) {
	var wire []wireOp
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("decode ops: %w", err)
	}

	ops := make([]Op, 0, len(wire))
	for i, w := range wire {
		switch w.Op {
		case "add_page":
			ops = append(ops, AddPage{Image: w.Image, Thumb: w.Thumb, Number: w.Number})
		case "insert_page":
			if w.Index == nil {
				return nil, fmt.Errorf("decode ops: op %d (insert_page): missing index: %w", i, ErrInvalidOperation)
			}
			ops = append(ops, InsertPage{Index: *w.Index, Image: w.Image, Thumb: w.Thumb, Number: w.Number})
		case "delete_page":
			if w.Index == nil {
				return nil, fmt.Errorf("decode ops: op %d (delete_page): missing index: %w", i, ErrInvalidOperation)
			}
			ops = append(ops, DeletePage{Index: *w.Index})
		case "update_property":
			ops = append(ops, UpdateProperty{Title: w.Title, Description: w.Description})
		case "":
			return nil, fmt.Errorf("decode ops: op %d: missing kind: %w", i, ErrUnsupportedOperation)
		default:
			if mode == DecodePermissive {
				continue
			}
			return nil, fmt.Errorf("decode ops: op %d: kind %q: %w", i, w.Op, ErrUnsupportedOperation)
		}
	}
	return ops, nil
}

// EncodeOps serializes an operation batch to the JSON form DecodeOps reads.
func EncodeOps(ops []Op) ([]byte, error) {
	wire := make([]wireOp, 0, len(ops))
	for _, op := range ops {
		switch v := op.(type) {
		case AddPage:
			wire = append(wire, wireOp{Op: v.Kind(), Image: v.Image, Thumb: v.Thumb, Number: v.Number})
		case InsertPage:
			idx := v.Index
			wire = append(wire, wireOp{Op: v.Kind(), Index: &idx, Image: v.Image, Thumb: v.Thumb, Number: v.Number})
		case DeletePage:
			idx := v.Index
			wire = append(wire, wireOp{Op: v.Kind(), Index: &idx})
		case UpdateProperty:
			wire = append(wire, wireOp{Op: v.Kind(), Title: v.Title, Description: v.Description})
		default:
			return nil, fmt.Errorf("encode ops: kind %q: %w", op.Kind(), ErrUnsupportedOperation)
		}
	}
	return json.Marshal(wire)
}
