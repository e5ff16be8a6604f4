// Package patch implements the annotation-driven mutation engine for MJCF
// trees: structural pattern matching, fragment merging, the embedded
// operation language (inject / replace / conditional replace / child
// injection) and the recursive dispatcher that routes annotation fragments
// onto a live document.
package patch

import (
	"context"

	"github.com/beevik/etree"

	"github.com/martinhoang/urdf2mjcf/internal/ctxlog"
	"github.com/martinhoang/urdf2mjcf/internal/mjcf"
)

// routeKind is the explicit outcome of classifying one fragment during the
// walk. Keeping the classification separate from the mutation keeps the
// state machine testable on its own.
type routeKind int

const (
	// routeConsumed: the fragment carries operations of its own; it mutates
	// matched targets and is never copied into the tree.
	routeConsumed routeKind = iota
	// routeRecurse: the fragment is plain but a direct child carries
	// operations; the fragment locates the parent context for its children.
	routeRecurse
	// routeFallback: no operations anywhere in the subtree; standard
	// injection applies.
	routeFallback
)

func (r routeKind) String() string {
	switch r {
	case routeConsumed:
		return "consumed"
	case routeRecurse:
		return "recurse"
	case routeFallback:
		return "fallback"
	}
	return "unknown"
}

// classify decides which of the three dispatch paths handles a fragment:
// routeConsumed when the fragment declares operations itself, routeRecurse
// when only its direct children do, routeFallback otherwise. ops must be the
// fragment's own parsed operations.
func classify(ctx context.Context, frag *etree.Element, ops []Operation) routeKind {
	if len(ops) > 0 {
		return routeConsumed
	}
	for _, child := range frag.ChildElements() {
		if len(ParseOperations(ctx, child)) > 0 {
			return routeRecurse
		}
	}
	return routeFallback
}

// Dispatcher walks a forest of annotation fragments and applies them to a
// document. Fragments are consumed in order against the current tree state,
// so later fragments see the mutations of earlier ones.
type Dispatcher struct {
	doc *mjcf.Document
}

// NewDispatcher returns a dispatcher bound to doc.
func NewDispatcher(doc *mjcf.Document) *Dispatcher {
	return &Dispatcher{doc: doc}
}

// Process applies each fragment in order. Processing is single-pass by
// contract: re-running the same forest appends injected children again
// (there is no duplicate-detection guard), so callers invoke this exactly
// once per conversion.
func (d *Dispatcher) Process(ctx context.Context, fragments []*etree.Element) {
	log := ctxlog.FromContext(ctx)
	if len(fragments) == 0 {
		log.Debug("no annotation fragments to apply")
		return
	}
	for _, frag := range fragments {
		d.process(ctx, frag, nil)
	}
}

// process handles one fragment. parent is the scoping context established by
// an enclosing fragment, or nil for a global search.
func (d *Dispatcher) process(ctx context.Context, frag *etree.Element, parent *etree.Element) {
	ops := ParseOperations(ctx, frag)
	switch classify(ctx, frag, ops) {
	case routeConsumed:
		d.applyOwnOps(ctx, frag, parent, ops)
	case routeRecurse:
		d.recurseChildren(ctx, frag)
	case routeFallback:
		d.standardInject(ctx, frag)
	}
}

// applyOwnOps runs the fragment's own operations against matched targets,
// then recurses into its children under the same parent context so nested
// operation declarations keep working.
func (d *Dispatcher) applyOwnOps(ctx context.Context, frag *etree.Element, parent *etree.Element, ops []Operation) {
	log := ctxlog.FromContext(ctx)

	// inject_children reinterprets the whole element as a template and
	// consumes it outright; any other operations on the element are moot.
	for _, op := range ops {
		if op.Kind == OpInjectChildren {
			d.injectChildren(ctx, frag, op, parent)
			return
		}
	}

	scope := parent
	if scope == nil {
		scope = d.doc.Root()
	}
	constraints := ConstraintsFrom(frag)
	matches := FindMatches(ctx, scope, frag.Tag, constraints)

	switch {
	case len(matches) > 0:
		for _, target := range matches {
			ApplyOperations(ctx, target, ops)
		}
	case len(constraints) == 0 && parent == nil:
		// Tag-only pattern with no live instance: create the section at its
		// canonical spot and apply the operations there.
		target := d.doc.EnsureBeforeWorldbody(frag.Tag)
		log.Debug("created element for annotation operations", "tag", frag.Tag)
		ApplyOperations(ctx, target, ops)
	default:
		log.Warn("no matching elements for annotation operations",
			"tag", frag.Tag, "scope", scopeName(parent))
	}

	// Nested operation declarations resolve against the same parent context.
	for _, child := range frag.ChildElements() {
		d.process(ctx, child, parent)
	}
}

// injectChildren copies every child of the annotation element into each
// element matching the operation's match attributes. The annotation element
// is consumed entirely; its children never reach the standard path.
func (d *Dispatcher) injectChildren(ctx context.Context, frag *etree.Element, op Operation, parent *etree.Element) {
	log := ctxlog.FromContext(ctx)
	scope := parent
	if scope == nil {
		scope = d.doc.Root()
	}
	targets := FindMatches(ctx, scope, frag.Tag, ConstraintsFromPairs(op.MatchAttrs))
	if len(targets) == 0 {
		log.Warn("no matching targets for child injection",
			"tag", frag.Tag, "scope", scopeName(parent))
		return
	}
	children := frag.ChildElements()
	for _, target := range targets {
		for _, child := range children {
			target.AddChild(child.Copy())
		}
		log.Debug("injected children", "count", len(children), "tag", target.Tag)
	}
}

// recurseChildren serves fragments that are plain themselves but whose
// direct children carry operations: the fragment's tag and attributes locate
// the parent context, operation-bearing children run against it, and plain
// children are copied in as-is.
func (d *Dispatcher) recurseChildren(ctx context.Context, frag *etree.Element) {
	log := ctxlog.FromContext(ctx)
	parents := FindMatches(ctx, d.doc.Root(), frag.Tag, ConstraintsFrom(frag))
	if len(parents) == 0 {
		log.Warn("no matching parent element, cannot apply child operations",
			"tag", frag.Tag)
		return
	}
	for _, parentNode := range parents {
		for _, child := range frag.ChildElements() {
			if len(ParseOperations(ctx, child)) > 0 {
				d.process(ctx, child, parentNode)
			} else {
				parentNode.AddChild(child.Copy())
				log.Debug("injected plain child into matched parent",
					"child", child.Tag, "parent", parentNode.Tag)
			}
		}
	}
}

// standardInject handles operation-free fragments: matched elements receive
// the fragment's attributes and deep copies of its children; with no match
// the fragment materializes at the canonical insertion point.
func (d *Dispatcher) standardInject(ctx context.Context, frag *etree.Element) {
	log := ctxlog.FromContext(ctx)
	matches := FindMatches(ctx, d.doc.Root(), frag.Tag, ConstraintsFrom(frag))

	if len(matches) > 0 {
		for _, target := range matches {
			copyAttrs(frag, target)
			for _, child := range frag.ChildElements() {
				target.AddChild(child.Copy())
			}
			log.Debug("merged fragment into existing element", "tag", target.Tag)
		}
		return
	}

	target := d.doc.EnsureBeforeWorldbody(frag.Tag)
	copyAttrs(frag, target)
	for _, child := range frag.ChildElements() {
		target.AddChild(child.Copy())
	}
	log.Debug("created element from fragment", "tag", frag.Tag)
}

// copyAttrs sets every non-reserved attribute of src on dst.
func copyAttrs(src, dst *etree.Element) {
	for _, a := range src.Attr {
		if IsReserved(a.Key) {
			continue
		}
		dst.CreateAttr(a.Key, a.Value)
	}
}

func scopeName(parent *etree.Element) string {
	if parent == nil {
		return "global"
	}
	return parent.Tag
}
