package patch

import (
	"strings"

	"github.com/beevik/etree"
)

// MergeFragments folds an ordered sequence of annotation fragments sharing a
// root tag into a single tree. The first fragment seeds the accumulator (a
// deep copy; inputs are never mutated); each subsequent fragment's children
// are folded in: a child with an equivalent counterpart merges recursively,
// anything else is appended.
//
// Equivalence is deliberately strict: same tag, same attribute set
// (order-insensitive), same trimmed text. Children differing by any
// attribute value are distinct siblings and are never merged or overwritten.
func MergeFragments(fragments []*etree.Element) *etree.Element {
	if len(fragments) == 0 {
		return nil
	}
	merged := fragments[0].Copy()
	for _, frag := range fragments[1:] {
		mergeInto(merged, frag)
	}
	return merged
}

func mergeInto(acc, incoming *etree.Element) {
	for _, child := range incoming.ChildElements() {
		counterpart := findEquivalent(acc, child)
		if counterpart == nil {
			acc.AddChild(child.Copy())
			continue
		}
		if len(counterpart.ChildElements()) > 0 || len(child.ChildElements()) > 0 {
			mergeInto(counterpart, child)
		}
		// Equivalent leaves need no action.
	}
}

func findEquivalent(parent, candidate *etree.Element) *etree.Element {
	for _, existing := range parent.ChildElements() {
		if equivalent(existing, candidate) {
			return existing
		}
	}
	return nil
}

func equivalent(a, b *etree.Element) bool {
	if a.Tag != b.Tag {
		return false
	}
	if !sameAttrSet(a, b) {
		return false
	}
	return strings.TrimSpace(a.Text()) == strings.TrimSpace(b.Text())
}

func sameAttrSet(a, b *etree.Element) bool {
	if len(a.Attr) != len(b.Attr) {
		return false
	}
	for _, attr := range a.Attr {
		other := b.SelectAttr(attr.Key)
		if other == nil || other.Value != attr.Value {
			return false
		}
	}
	return true
}
