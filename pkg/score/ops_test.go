package score

import (
	"errors"
	"reflect"
	"testing"
)

func TestDecodeOps(t *testing.T) {
	data := []byte(`[
		{"op": "add_page", "image": "i1", "thumb": "t1", "number": "1"},
		{"op": "insert_page", "index": 0, "image": "i2", "thumb": "t2", "number": "2"},
		{"op": "delete_page", "index": 1},
		{"op": "update_property", "title": "T"}
	]`)

	ops, err := DecodeOps(data, DecodeStrict)
	if err != nil {
		t.Fatalf("DecodeOps: %v", err)
	}
	if len(ops) != 4 {
		t.Fatalf("decoded %d ops, want 4", len(ops))
	}

	if op, ok := ops[0].(AddPage); !ok || op.Image != "i1" || op.Thumb != "t1" || op.Number != "1" {
		t.Errorf("ops[0] = %#v", ops[0])
	}
	if op, ok := ops[1].(InsertPage); !ok || op.Index != 0 || op.Number != "2" {
		t.Errorf("ops[1] = %#v", ops[1])
	}
	if op, ok := ops[2].(DeletePage); !ok || op.Index != 1 {
		t.Errorf("ops[2] = %#v", ops[2])
	}
	if op, ok := ops[3].(UpdateProperty); !ok || op.Title == nil || *op.Title != "T" || op.Description != nil {
		t.Errorf("ops[3] = %#v", ops[3])
	}
}

func TestDecodeOpsUnknownKind(t *testing.T) {
	data := []byte(`[
		{"op": "add_page", "image": "i", "thumb": "t", "number": "1"},
		{"op": "rotate_page", "index": 0},
		{"op": "add_page", "image": "i", "thumb": "t", "number": "2"}
	]`)

	if _, err := DecodeOps(data, DecodeStrict); !errors.Is(err, ErrUnsupportedOperation) {
		t.Errorf("strict decode: got %v, want ErrUnsupportedOperation", err)
	}

	ops, err := DecodeOps(data, DecodePermissive)
	if err != nil {
		t.Fatalf("permissive decode: %v", err)
	}
	if len(ops) != 2 {
		t.Fatalf("permissive decode kept %d ops, want 2", len(ops))
	}
	for _, op := range ops {
		if op.Kind() != "add_page" {
			t.Errorf("kept op kind %q, want add_page", op.Kind())
		}
	}
}

func TestDecodeOpsMissingFields(t *testing.T) {
	cases := []struct {
		name string
		data string
		want error
	}{
		{"insert without index", `[{"op": "insert_page", "image": "i"}]`, ErrInvalidOperation},
		{"delete without index", `[{"op": "delete_page"}]`, ErrInvalidOperation},
		{"missing kind", `[{"image": "i"}]`, ErrUnsupportedOperation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := DecodeOps([]byte(tc.data), DecodeStrict); !errors.Is(err, tc.want) {
				t.Errorf("got %v, want %v", err, tc.want)
			}
		})
	}
}

func TestDecodeOpsBadJSON(t *testing.T) {
	if _, err := DecodeOps([]byte(`{"op": "add_page"}`), DecodeStrict); err == nil {
		t.Error("non-array input accepted")
	}
	if _, err := DecodeOps([]byte(`[{`), DecodeStrict); err == nil {
		t.Error("truncated input accepted")
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	title := "T"
	empty := ""
	in := []Op{
		AddPage{Image: "i1", Thumb: "t1", Number: "1"},
		InsertPage{Index: 0, Image: "i2", Thumb: "t2", Number: "2"},
		DeletePage{Index: 0},
		UpdateProperty{Title: &title, Description: &empty},
	}

	data, err := EncodeOps(in)
	if err != nil {
		t.Fatalf("EncodeOps: %v", err)
	}
	out, err := DecodeOps(data, DecodeStrict)
	if err != nil {
		t.Fatalf("DecodeOps: %v", err)
	}
	if !reflect.DeepEqual(in, out) {
		t.Errorf("round trip mismatch:\n in %#v\nout %#v", in, out)
	}
}
