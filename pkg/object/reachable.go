package object

import (
	"context"
	"fmt"
)

// References parses an object's canonical content and returns the hashes it
// points at. Snapshots reference their pages and parent snapshot, properties
// their parent property, pages nothing.
func References(objType ObjectType, data []byte) ([]Hash, error) {
	switch objType {
	case TypePage:
		return nil, nil
	case TypeSnapshot:
		snap, err := UnmarshalSnapshot(data)
		if err != nil {
			return nil, err
		}
		refs := make([]Hash, 0, len(snap.Pages)+1)
		refs = append(refs, snap.Pages...)
		if snap.Parent != "" {
			refs = append(refs, snap.Parent)
		}
		return refs, nil
	case TypeProperty:
		prop, err := UnmarshalProperty(data)
		if err != nil {
			return nil, err
		}
		if prop.Parent != "" {
			return []Hash{prop.Parent}, nil
		}
		return nil, nil
	default:
		return nil, fmt.Errorf("references: unknown object type %q", objType)
	}
}

// Reachable walks the object graph from the given roots and returns the set
// of every hash reached. The walk is iterative; graphs deeper than the stack
// allows are fine.
func Reachable(ctx context.Context, store Store, roots []Hash) (map[Hash]bool, error) {
	seen := make(map[Hash]bool)
	stack := make([]Hash, 0, len(roots))
	for _, r := range roots {
		if r != "" {
			stack = append(stack, r)
		}
	}

	for len(stack) > 0 {
		h := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[h] {
			continue
		}
		seen[h] = true

		objType, data, err := store.Get(ctx, h)
		if err != nil {
			return nil, fmt.Errorf("reachability walk at %s: %w", h.Short(), err)
		}
		refs, err := References(objType, data)
		if err != nil {
			return nil, fmt.Errorf("reachability walk at %s: %w", h.Short(), err)
		}
		for _, ref := range refs {
			if !seen[ref] {
				stack = append(stack, ref)
			}
		}
	}
	return seen, nil
}
