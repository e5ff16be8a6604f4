package patch

import (
	"context"
	"strings"

	"github.com/beevik/etree"
	"github.com/gobwas/glob"

	"github.com/martinhoang/urdf2mjcf/internal/ctxlog"
)

// Constraint is one attribute requirement of a structural pattern. A Pattern
// containing '*' is matched with glob semantics (case-sensitive), anything
// else requires exact equality.
type Constraint struct {
	Key     string
	Pattern string
}

// ConstraintsFrom derives the ordered constraint list from an element's
// attributes, skipping the reserved operation attributes.
func ConstraintsFrom(el *etree.Element) []Constraint {
	constraints := make([]Constraint, 0, len(el.Attr))
	for _, a := range el.Attr {
		if IsReserved(a.Key) {
			continue
		}
		constraints = append(constraints, Constraint{Key: a.Key, Pattern: a.Value})
	}
	return constraints
}

// ConstraintsFromPairs converts decoded key=value pairs into constraints,
// used by inject_children match attributes.
func ConstraintsFromPairs(pairs []Pair) []Constraint {
	constraints := make([]Constraint, 0, len(pairs))
	for _, p := range pairs {
		constraints = append(constraints, Constraint{Key: p.Key, Pattern: p.Value})
	}
	return constraints
}

// FindMatches returns every descendant of scope (scope itself excluded)
// whose tag equals tag and which satisfies all constraints, in document
// order. With zero constraints every element of the tag matches. Zero
// matches is a legitimate, loggable outcome, never an error.
func FindMatches(ctx context.Context, scope *etree.Element, tag string, constraints []Constraint) []*etree.Element {
	log := ctxlog.FromContext(ctx)

	matchers := make([]attrMatcher, 0, len(constraints))
	for _, c := range constraints {
		matchers = append(matchers, compileConstraint(ctx, c))
	}

	var out []*etree.Element
	var walk func(el *etree.Element)
	walk = func(el *etree.Element) {
		for _, child := range el.ChildElements() {
			if child.Tag == tag && matchesAll(child, matchers) {
				out = append(out, child)
			}
			walk(child)
		}
	}
	walk(scope)

	log.Debug("pattern match", "tag", tag, "constraints", len(constraints), "matches", len(out))
	return out
}

func matchesAll(el *etree.Element, matchers []attrMatcher) bool {
	for _, m := range matchers {
		if !m.matches(el) {
			return false
		}
	}
	return true
}

// attrMatcher is one compiled constraint: a glob for wildcard patterns, an
// exact string otherwise.
type attrMatcher struct {
	key   string
	exact string
	g     glob.Glob
}

func compileConstraint(ctx context.Context, c Constraint) attrMatcher {
	if strings.Contains(c.Pattern, "*") {
		g, err := glob.Compile(c.Pattern)
		if err == nil {
			return attrMatcher{key: c.Key, g: g}
		}
		ctxlog.FromContext(ctx).Warn("invalid wildcard pattern, using exact match",
			"key", c.Key, "pattern", c.Pattern, "error", err)
	}
	return attrMatcher{key: c.Key, exact: c.Pattern}
}

func (m attrMatcher) matches(el *etree.Element) bool {
	attr := el.SelectAttr(m.key)
	if attr == nil {
		return false
	}
	if m.g != nil {
		return m.g.Match(attr.Value)
	}
	return attr.Value == m.exact
}
