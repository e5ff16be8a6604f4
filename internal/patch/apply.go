package patch

import (
	"context"
	"log/slog"

	"github.com/beevik/etree"

	"github.com/martinhoang/urdf2mjcf/internal/ctxlog"
)

// ApplyOperations mutates target according to ops, in order. Only
// attribute-scoped operations are handled here; OpInjectChildren needs the
// annotation element as a template and is applied by the dispatcher.
func ApplyOperations(ctx context.Context, target *etree.Element, ops []Operation) {
	log := ctxlog.FromContext(ctx)
	for _, op := range ops {
		switch op.Kind {
		case OpInject:
			applyInject(log, target, op.Attrs)
		case OpReplace:
			applyReplace(log, target, op.Attrs)
		case OpConditionalReplace:
			applyConditionalReplace(log, target, op.Conditions, op.Replacements)
		case OpInjectChildren:
			// Dispatcher-only operation; nothing to do per target.
		}
	}
}

// applyInject sets every pair, creating or overwriting. Always succeeds.
func applyInject(log *slog.Logger, target *etree.Element, attrs []Pair) {
	for _, p := range attrs {
		old := target.SelectAttr(p.Key)
		target.CreateAttr(p.Key, p.Value)
		if old != nil {
			log.Debug("injected attribute over existing value",
				"tag", target.Tag, "attr", p.Key, "value", p.Value)
		} else {
			log.Debug("injected attribute",
				"tag", target.Tag, "attr", p.Key, "value", p.Value)
		}
	}
}

// applyReplace sets only pairs whose key already exists. Replace never
// introduces new attribute names; that is the load-bearing difference from
// inject. Missing keys are skipped with a warning, the rest still apply.
func applyReplace(log *slog.Logger, target *etree.Element, attrs []Pair) {
	for _, p := range attrs {
		if target.SelectAttr(p.Key) == nil {
			log.Warn("cannot replace attribute that is not present, use inject to add it",
				"tag", target.Tag, "attr", p.Key)
			continue
		}
		target.CreateAttr(p.Key, p.Value)
		log.Debug("replaced attribute", "tag", target.Tag, "attr", p.Key, "value", p.Value)
	}
}

// applyConditionalReplace checks every condition against the target's
// current attributes with exact equality. Only a full match mutates: all
// condition attributes are removed, then all replacements set. A single
// failed condition leaves the target untouched.
func applyConditionalReplace(log *slog.Logger, target *etree.Element, conditions, replacements []Pair) {
	for _, c := range conditions {
		attr := target.SelectAttr(c.Key)
		if attr == nil || attr.Value != c.Value {
			log.Debug("conditional replacement conditions not met",
				"tag", target.Tag, "attr", c.Key)
			return
		}
	}
	for _, c := range conditions {
		target.RemoveAttr(c.Key)
	}
	for _, r := range replacements {
		target.CreateAttr(r.Key, r.Value)
	}
	log.Debug("conditional replacement applied",
		"tag", target.Tag, "conditions", len(conditions), "replacements", len(replacements))
}
