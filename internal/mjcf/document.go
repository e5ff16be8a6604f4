// Package mjcf wraps an MJCF document tree and the placement rules for its
// canonical top-level sections. All mutation helpers operate in place; the
// document is parsed once per conversion run and serialized once at the end.
package mjcf

import (
	"fmt"

	"github.com/beevik/etree"
	billy "github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
)

// Document is an MJCF tree plus lookup helpers for the anchor sections that
// insertion policies are defined against (compiler, worldbody, extension,
// actuator). It owns the tree exclusively for the duration of a run.
type Document struct {
	doc  *etree.Document
	root *etree.Element
}

// Parse builds a Document from serialized MJCF.
func Parse(data []byte) (*Document, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, fmt.Errorf("parse mjcf: %w", err)
	}
	root := doc.Root()
	if root == nil {
		return nil, fmt.Errorf("parse mjcf: document has no root element")
	}
	return &Document{doc: doc, root: root}, nil
}

// ParseFile reads and parses an MJCF file from the given filesystem.
func ParseFile(fsys billy.Filesystem, path string) (*Document, error) {
	data, err := util.ReadFile(fsys, path)
	if err != nil {
		return nil, fmt.Errorf("read mjcf %s: %w", path, err)
	}
	return Parse(data)
}

// FromRoot wraps an existing element tree. The element is adopted as the
// document root; callers must not keep it attached elsewhere.
func FromRoot(root *etree.Element) *Document {
	doc := etree.NewDocument()
	doc.SetRoot(root)
	return &Document{doc: doc, root: root}
}

// Root returns the tree root (the <mujoco> element).
func (d *Document) Root() *etree.Element { return d.root }

// Compiler returns the <compiler> section, or nil.
func (d *Document) Compiler() *etree.Element { return d.root.SelectElement("compiler") }

// Worldbody returns the <worldbody> section, or nil.
func (d *Document) Worldbody() *etree.Element { return d.root.SelectElement("worldbody") }

// Extension returns the <extension> section, or nil.
func (d *Document) Extension() *etree.Element { return d.root.SelectElement("extension") }

// Actuator returns the <actuator> section, or nil.
func (d *Document) Actuator() *etree.Element { return d.root.SelectElement("actuator") }

// Option returns the <option> section, or nil.
func (d *Document) Option() *etree.Element { return d.root.SelectElement("option") }

// Asset returns the <asset> section, or nil.
func (d *Document) Asset() *etree.Element { return d.root.SelectElement("asset") }

// EnsureCompiler returns the <compiler> section, creating it as the first
// child when absent.
func (d *Document) EnsureCompiler() *etree.Element {
	if el := d.Compiler(); el != nil {
		return el
	}
	el := etree.NewElement("compiler")
	d.root.InsertChildAt(0, el)
	return el
}

// EnsureExtension returns the <extension> section. When absent it is placed
// after <compiler>, else before <worldbody>, else appended.
func (d *Document) EnsureExtension() *etree.Element {
	if el := d.Extension(); el != nil {
		return el
	}
	el := etree.NewElement("extension")
	if c := d.Compiler(); c != nil {
		d.root.InsertChildAt(c.Index()+1, el)
		return el
	}
	if wb := d.Worldbody(); wb != nil {
		d.root.InsertChildAt(wb.Index(), el)
		return el
	}
	d.root.AddChild(el)
	return el
}

// EnsureOption returns the <option> section. When absent it is placed after
// <compiler> if present, else first.
func (d *Document) EnsureOption() *etree.Element {
	if el := d.Option(); el != nil {
		return el
	}
	el := etree.NewElement("option")
	if c := d.Compiler(); c != nil {
		d.root.InsertChildAt(c.Index()+1, el)
	} else {
		d.root.InsertChildAt(0, el)
	}
	return el
}

// EnsureActuator returns the <actuator> section. When absent it is placed
// immediately after <worldbody>, else appended.
func (d *Document) EnsureActuator() *etree.Element {
	if el := d.Actuator(); el != nil {
		return el
	}
	el := etree.NewElement("actuator")
	if wb := d.Worldbody(); wb != nil {
		d.root.InsertChildAt(wb.Index()+1, el)
	} else {
		d.root.AddChild(el)
	}
	return el
}

// EnsureBeforeWorldbody is the canonical insertion point for new top-level
// sections: return the existing direct child with the tag, else create one
// before <worldbody>, else append.
func (d *Document) EnsureBeforeWorldbody(tag string) *etree.Element {
	if el := d.root.SelectElement(tag); el != nil {
		return el
	}
	el := etree.NewElement(tag)
	if wb := d.Worldbody(); wb != nil {
		d.root.InsertChildAt(wb.Index(), el)
	} else {
		d.root.AddChild(el)
	}
	return el
}

// Serialize renders the document with an XML declaration and tab indentation.
// The live tree is copied, so the Document stays usable afterwards.
func (d *Document) Serialize() ([]byte, error) {
	out := etree.NewDocument()
	out.CreateProcInst("xml", `version="1.0" encoding="utf-8"`)
	out.SetRoot(d.root.Copy())
	out.IndentTabs()
	data, err := out.WriteToBytes()
	if err != nil {
		return nil, fmt.Errorf("serialize mjcf: %w", err)
	}
	return data, nil
}

// WriteFile serializes the document and writes it to path on fsys.
func (d *Document) WriteFile(fsys billy.Filesystem, path string) error {
	data, err := d.Serialize()
	if err != nil {
		return err
	}
	if err := util.WriteFile(fsys, path, data, 0o644); err != nil {
		return fmt.Errorf("write mjcf %s: %w", path, err)
	}
	return nil
}
