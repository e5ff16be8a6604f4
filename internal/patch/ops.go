package patch

import (
	"context"
	"strings"

	"github.com/beevik/etree"

	"github.com/martinhoang/urdf2mjcf/internal/ctxlog"
)

// Reserved attribute names that carry operations instead of structure.
const (
	attrInject         = "inject_attr"     // space-separated pairs
	attrInjectMulti    = "inject_attrs"    // semicolon-separated pairs
	attrReplace        = "replace_attrs"   // comma-separated pairs, ':' splits conditions from replacements
	attrInjectChildren = "inject_children" // match attributes for child injection
)

var reservedAttrs = map[string]bool{
	attrInject:         true,
	attrInjectMulti:    true,
	attrReplace:        true,
	attrInjectChildren: true,
}

// IsReserved reports whether an attribute name is an operation carrier
// rather than part of the structural pattern.
func IsReserved(name string) bool { return reservedAttrs[name] }

// OpKind enumerates the operation verbs of the annotation language.
type OpKind int

const (
	// OpInject sets every pair unconditionally, creating or overwriting.
	OpInject OpKind = iota
	// OpReplace sets only pairs whose key already exists on the target.
	OpReplace
	// OpConditionalReplace removes the condition attributes and sets the
	// replacements, but only when every condition matches exactly.
	OpConditionalReplace
	// OpInjectChildren copies the annotation element's children into every
	// element matching the match attributes.
	OpInjectChildren
)

func (k OpKind) String() string {
	switch k {
	case OpInject:
		return "inject"
	case OpReplace:
		return "replace"
	case OpConditionalReplace:
		return "conditional_replace"
	case OpInjectChildren:
		return "inject_children"
	}
	return "unknown"
}

// Pair is one key=value assignment decoded from an annotation attribute.
// Order matters: pairs are applied in declaration order.
type Pair struct {
	Key   string
	Value string
}

// Operation is a tagged variant. Kind selects which payload fields are
// meaningful: Attrs for OpInject/OpReplace, Conditions+Replacements for
// OpConditionalReplace, MatchAttrs for OpInjectChildren.
type Operation struct {
	Kind         OpKind
	Attrs        []Pair
	Conditions   []Pair
	Replacements []Pair
	MatchAttrs   []Pair
}

// ParseOperations decodes the reserved attributes of an annotation element
// into typed operations, in the fixed probe order inject_attr, inject_attrs,
// replace_attrs, inject_children. Unparseable attribute strings drop the
// operation with a warning; parsing never fails hard.
func ParseOperations(ctx context.Context, el *etree.Element) []Operation {
	log := ctxlog.FromContext(ctx)
	var ops []Operation

	if raw := el.SelectAttrValue(attrInject, ""); raw != "" {
		if pairs := ParsePairs(ctx, raw); len(pairs) > 0 {
			ops = append(ops, Operation{Kind: OpInject, Attrs: pairs})
		}
	}
	if raw := el.SelectAttrValue(attrInjectMulti, ""); raw != "" {
		if pairs := ParsePairs(ctx, raw); len(pairs) > 0 {
			ops = append(ops, Operation{Kind: OpInject, Attrs: pairs})
		}
	}
	if raw := el.SelectAttrValue(attrReplace, ""); raw != "" {
		if idx := topLevelColon(raw); idx >= 0 {
			conditions := ParsePairs(ctx, raw[:idx])
			replacements := ParsePairs(ctx, raw[idx+1:])
			if len(conditions) == 0 || len(replacements) == 0 {
				log.Warn("invalid conditional replacement, operation dropped",
					"tag", el.Tag, "input", raw)
			} else {
				ops = append(ops, Operation{
					Kind:         OpConditionalReplace,
					Conditions:   conditions,
					Replacements: replacements,
				})
			}
		} else if pairs := ParsePairs(ctx, raw); len(pairs) > 0 {
			ops = append(ops, Operation{Kind: OpReplace, Attrs: pairs})
		}
	}
	if raw := el.SelectAttrValue(attrInjectChildren, ""); raw != "" {
		if pairs := ParsePairs(ctx, raw); len(pairs) > 0 {
			ops = append(ops, Operation{Kind: OpInjectChildren, MatchAttrs: pairs})
		}
	}
	return ops
}

// ParsePairs scans s for identifier=(quoted value) groups. The assignment
// glyph may be = or :=, the quote character ' or ". Extraction is
// quote-delimited, so values may contain spaces, commas, semicolons and
// colons. Text between groups is skipped. A duplicate key keeps its first
// position but takes the last value, with a warning. A non-empty string
// yielding zero pairs is reported as unparseable.
func ParsePairs(ctx context.Context, s string) []Pair {
	log := ctxlog.FromContext(ctx)
	var pairs []Pair
	seen := map[string]int{}

	i := 0
	for i < len(s) {
		if !isIdentChar(s[i]) {
			i++
			continue
		}
		start := i
		for i < len(s) && isIdentChar(s[i]) {
			i++
		}
		key := s[start:i]

		j := i
		if j < len(s) && s[j] == ':' {
			j++
		}
		if j >= len(s) || s[j] != '=' {
			continue // identifier without assignment, resume scanning
		}
		j++
		if j >= len(s) || (s[j] != '\'' && s[j] != '"') {
			continue // unquoted value, not part of the grammar
		}
		quote := s[j]
		j++
		vstart := j
		for j < len(s) && s[j] != quote {
			j++
		}
		if j >= len(s) {
			break // unterminated quote, discard the rest
		}
		value := s[vstart:j]
		i = j + 1

		if at, ok := seen[key]; ok {
			log.Warn("duplicate key in annotation attribute, last value wins",
				"key", key, "value", value, "input", s)
			pairs[at].Value = value
			continue
		}
		seen[key] = len(pairs)
		pairs = append(pairs, Pair{Key: key, Value: value})
	}

	if len(pairs) == 0 && strings.TrimSpace(s) != "" {
		log.Warn("could not parse annotation attribute string",
			"input", s, "hint", "expected key1='value1' key2='value2' or key:='value'")
	}
	return pairs
}

func isIdentChar(c byte) bool {
	return c == '_' ||
		(c >= 'a' && c <= 'z') ||
		(c >= 'A' && c <= 'Z') ||
		(c >= '0' && c <= '9')
}

// topLevelColon returns the index of the first ':' that sits outside quoted
// values and is not the ':' of a ':=' assignment, or -1. This is the split
// point between the conditions and replacements clauses of replace_attrs.
func topLevelColon(s string) int {
	var quote byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
		case c == ':':
			if i+1 < len(s) && s[i+1] == '=' {
				i++
				continue
			}
			return i
		}
	}
	return -1
}
