// Package urdf extracts the simulation-relevant views from a URDF robot
// description: the merged <mujoco> extension block, its compiler attributes,
// the annotation fragments and plugin declarations it carries, the mimic
// relations between joints, and the ros2_control command interface map.
// Extraction normalizes the tree in place (all extension blocks collapse into
// one), so the same Model can also save the pre-processed description.
package urdf

import (
	"context"
	"fmt"
	"strings"

	"github.com/beevik/etree"
	billy "github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"

	"github.com/martinhoang/urdf2mjcf/api"
	"github.com/martinhoang/urdf2mjcf/internal/ctxlog"
	"github.com/martinhoang/urdf2mjcf/internal/patch"
)

// DefaultMeshDir is where the converted model expects its mesh assets
// relative to the output file, unless the description says otherwise.
const DefaultMeshDir = "assets/"

// Joint is one top-level joint of the description, for inspection output.
type Joint struct {
	Name string
	Type string
}

// Model is the extracted view of one robot description.
type Model struct {
	doc *etree.Document

	// Extension is the merged <mujoco> block. After extraction it carries
	// only the <compiler> child; fragments and plugins are split out below.
	Extension *etree.Element
	// CompilerAttrs holds the effective compiler attributes in declaration
	// order: built-in defaults, overlaid by the description's own compiler
	// attributes, overlaid by KEY=VALUE overrides.
	CompilerAttrs []patch.Pair
	// Fragments are the annotation fragments to dispatch onto the MJCF
	// document, in declaration order. They are never mutated after
	// extraction.
	Fragments []*etree.Element
	// Plugins are the <plugin filename=.../> declarations, handled by a
	// separate transform rather than the fragment dispatcher.
	Plugins []*etree.Element
	// MimicJoints lists follower→leader couplings in declaration order.
	MimicJoints []api.MimicJoint
	// ControlInterfaces maps joint names to their ros2_control command
	// interfaces.
	ControlInterfaces api.JointInterfaceMap
	// Joints inventories the description's top-level joints.
	Joints []Joint
}

// Parse extracts a Model from serialized URDF. compilerOverrides are
// KEY=VALUE strings layered over the description's own compiler attributes;
// malformed entries are skipped with a warning.
func Parse(ctx context.Context, data []byte, compilerOverrides []string) (*Model, error) {
	log := ctxlog.FromContext(ctx)

	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, fmt.Errorf("parse urdf: %w", err)
	}
	root := doc.Root()
	if root == nil {
		return nil, fmt.Errorf("parse urdf: document has no root element")
	}

	m := &Model{doc: doc, ControlInterfaces: api.JointInterfaceMap{}}

	// Collapse every <mujoco> block into a single merged one at the top of
	// the description. A description without any block still gets an empty
	// one so the compiler defaults have a home.
	blocks := root.SelectElements("mujoco")
	if len(blocks) > 0 {
		m.Extension = patch.MergeFragments(blocks)
		for _, b := range blocks {
			root.RemoveChild(b)
		}
		log.Debug("merged extension blocks", "count", len(blocks))
	} else {
		log.Warn("no <mujoco> extension block found, creating an empty one")
		m.Extension = etree.NewElement("mujoco")
	}
	root.InsertChildAt(0, m.Extension)

	m.extractCompilerAttrs(ctx, compilerOverrides)
	m.extractFragments()
	m.extractMimicJoints(ctx)
	m.extractControlInterfaces(ctx)

	for _, j := range root.SelectElements("joint") {
		m.Joints = append(m.Joints, Joint{
			Name: j.SelectAttrValue("name", ""),
			Type: j.SelectAttrValue("type", ""),
		})
	}

	return m, nil
}

// ParseFile reads and extracts a Model from the given filesystem.
func ParseFile(ctx context.Context, fsys billy.Filesystem, path string, compilerOverrides []string) (*Model, error) {
	data, err := util.ReadFile(fsys, path)
	if err != nil {
		return nil, fmt.Errorf("read urdf %s: %w", path, err)
	}
	return Parse(ctx, data, compilerOverrides)
}

// extractCompilerAttrs resolves the effective compiler attributes and writes
// them back onto the merged block's <compiler> child.
func (m *Model) extractCompilerAttrs(ctx context.Context, overrides []string) {
	log := ctxlog.FromContext(ctx)

	compiler := m.Extension.SelectElement("compiler")
	if compiler == nil {
		compiler = m.Extension.CreateElement("compiler")
	}

	attrs := []patch.Pair{
		{Key: "meshdir", Value: DefaultMeshDir},
		{Key: "balanceinertia", Value: "false"},
		{Key: "discardvisual", Value: "false"},
		{Key: "fusestatic", Value: "false"},
		{Key: "inertiafromgeom", Value: "false"},
	}
	for _, a := range compiler.Attr {
		attrs = upsertPair(attrs, a.Key, a.Value)
	}
	for _, opt := range overrides {
		key, value, ok := strings.Cut(opt, "=")
		if !ok || key == "" {
			log.Warn("malformed compiler option, expected KEY=VALUE", "option", opt)
			continue
		}
		attrs = upsertPair(attrs, key, value)
	}

	for _, p := range attrs {
		compiler.CreateAttr(p.Key, p.Value)
	}
	m.CompilerAttrs = attrs
}

// extractFragments splits the merged block's non-compiler children into
// annotation fragments and plugin declarations, detaching them from the
// block.
func (m *Model) extractFragments() {
	var extracted []*etree.Element
	for _, child := range m.Extension.ChildElements() {
		if child.Tag == "compiler" {
			continue
		}
		extracted = append(extracted, child)
	}
	for _, el := range extracted {
		m.Extension.RemoveChild(el)
		if el.Tag == "plugin" {
			m.Plugins = append(m.Plugins, el)
		} else {
			m.Fragments = append(m.Fragments, el)
		}
	}
}

// extractMimicJoints scans every joint for a <mimic> child. Multiplier and
// offset default to "1.0" and "0.0" and pass through as strings.
func (m *Model) extractMimicJoints(ctx context.Context) {
	for _, joint := range patch.FindMatches(ctx, m.doc.Root(), "joint", nil) {
		mimic := joint.SelectElement("mimic")
		if mimic == nil {
			continue
		}
		name := joint.SelectAttrValue("name", "")
		leader := mimic.SelectAttrValue("joint", "")
		if name == "" || leader == "" {
			continue
		}
		entry := api.MimicJoint{
			Name:       name,
			Joint:      leader,
			Multiplier: mimic.SelectAttrValue("multiplier", "1.0"),
			Offset:     mimic.SelectAttrValue("offset", "0.0"),
		}
		replaced := false
		for i := range m.MimicJoints {
			if m.MimicJoints[i].Name == name {
				m.MimicJoints[i] = entry
				replaced = true
				break
			}
		}
		if !replaced {
			m.MimicJoints = append(m.MimicJoints, entry)
		}
	}
}

// extractControlInterfaces reads the ros2_control joint declarations. The
// interface kind comes from the command_interface's name attribute, or its
// trimmed text when the attribute is absent.
func (m *Model) extractControlInterfaces(ctx context.Context) {
	for _, rc := range patch.FindMatches(ctx, m.doc.Root(), "ros2_control", nil) {
		for _, joint := range rc.SelectElements("joint") {
			name := joint.SelectAttrValue("name", "")
			if name == "" {
				continue
			}
			set := api.InterfaceSet{}
			for _, ci := range joint.SelectElements("command_interface") {
				kind := ci.SelectAttrValue("name", "")
				if kind == "" {
					kind = strings.TrimSpace(ci.Text())
				}
				if kind != "" {
					set.Add(kind)
				}
			}
			if len(set) > 0 {
				m.ControlInterfaces[name] = set
			}
		}
	}
}

// SaveNormalized writes the normalized description (a single merged <mujoco>
// block holding only the effective compiler attributes) to path on fsys.
func (m *Model) SaveNormalized(fsys billy.Filesystem, path string) error {
	out := etree.NewDocument()
	out.SetRoot(m.doc.Root().Copy())
	out.IndentTabs()
	data, err := out.WriteToBytes()
	if err != nil {
		return fmt.Errorf("serialize urdf: %w", err)
	}
	if err := util.WriteFile(fsys, path, data, 0o644); err != nil {
		return fmt.Errorf("write urdf %s: %w", path, err)
	}
	return nil
}

// upsertPair updates the value in place when key exists, else appends.
func upsertPair(pairs []patch.Pair, key, value string) []patch.Pair {
	for i := range pairs {
		if pairs[i].Key == key {
			pairs[i].Value = value
			return pairs
		}
	}
	return append(pairs, patch.Pair{Key: key, Value: value})
}
