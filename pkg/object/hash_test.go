package object

import "testing"

func TestHashObjectDistinguishesTypes(t *testing.T) {
	data := []byte("same bytes")
	if HashObject(TypePage, data) == HashObject(TypeSnapshot, data) {
		t.Error("identical content under different types hashed identically")
	}
}

func TestHashValid(t *testing.T) {
	good := HashBytes([]byte("anything"))
	cases := []struct {
		name string
		h    Hash
		want bool
	}{
		{"real digest", good, true},
		{"empty", Hash(""), false},
		{"too short", good[:40], false},
		{"uppercase", Hash("ABCDEF0123456789abcdef0123456789abcdef0123456789abcdef0123456789"), false},
		{"non-hex", Hash("zzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzz"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.h.Valid(); got != tc.want {
				t.Errorf("Valid(%q) = %v, want %v", tc.h, got, tc.want)
			}
		})
	}
}

func TestHashShort(t *testing.T) {
	h := HashBytes([]byte("x"))
	if got := h.Short(); got != string(h[:8]) {
		t.Errorf("Short() = %q, want %q", got, h[:8])
	}
	if got := Hash("abc").Short(); got != "abc" {
		t.Errorf("Short() on short input = %q, want %q", got, "abc")
	}
}
