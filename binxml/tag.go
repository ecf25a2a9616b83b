package binxml

import (
	"github.com/pkg/errors"
)

// TagKind tells elements apart from the other nodes of a document.
type TagKind uint8

const (
	ElementTag TagKind = iota
	AttributeTag
	CDATATag
	PITag
)

// Tag is a node of a materialized document. Every tag carries a value, even
// when it is empty.
type Tag struct {
	kind       TagKind
	name       string
	value      *Value
	attributes []*Tag
	elements   []*Tag
}

func newTag(kind TagKind, name string, value *Value) *Tag {
	return &Tag{kind: kind, name: name, value: value}
}

func (t *Tag) Kind() TagKind {
	return t.kind
}

func (t *Tag) Name() string {
	return t.name
}

// Value returns the content of the tag. It is never nil.
func (t *Tag) Value() *Value {
	return t.value
}

func (t *Tag) NumberOfElements() int {
	return len(t.elements)
}

func (t *Tag) NumberOfAttributes() int {
	return len(t.attributes)
}

// Elements returns the child tags in document order.
func (t *Tag) Elements() []*Tag {
	return t.elements
}

func (t *Tag) Attributes() []*Tag {
	return t.attributes
}

// ElementByIndex returns the child element at index.
func (t *Tag) ElementByIndex(index int) (*Tag, error) {
	if index < 0 || index >= len(t.elements) {
		return nil, errors.Wrapf(ErrIndexOutOfRange, "element %d of %d", index, len(t.elements))
	}
	return t.elements[index], nil
}

// ElementByName returns the first child element named name, or nil.
func (t *Tag) ElementByName(name string) *Tag {
	for _, e := range t.elements {
		if e.kind == ElementTag && e.name == name {
			return e
		}
	}
	return nil
}

// AttributeByName returns the attribute named name, or nil.
func (t *Tag) AttributeByName(name string) *Tag {
	for _, a := range t.attributes {
		if a.name == name {
			return a
		}
	}
	return nil
}

// Clone returns a deep copy of the tag and everything below it.
func (t *Tag) Clone() *Tag {
	if t == nil {
		return nil
	}
	c := &Tag{kind: t.kind, name: t.name, value: t.value.clone()}
	if t.attributes != nil {
		c.attributes = make([]*Tag, len(t.attributes))
		for i, a := range t.attributes {
			c.attributes[i] = a.Clone()
		}
	}
	if t.elements != nil {
		c.elements = make([]*Tag, len(t.elements))
		for i, e := range t.elements {
			c.elements[i] = e.Clone()
		}
	}
	return c
}
