package binxml

import (
	"github.com/pkg/errors"
)

// fillState reports what the substitutions of an element resolved to.
type fillState struct {
	optionalEmpty bool
	array         *templateValue
}

// buildFragment instantiates the top level of a fragment and returns its
// element tags.
func (p *parser) buildFragment(elements []Element) ([]*Tag, error) {
	root, err := rootNode(elements)
	if err != nil {
		return nil, err
	}
	holder := newTag(ElementTag, "", newValue(p.codepage))
	if _, err := p.fill(holder, root.Items, nil); err != nil {
		return nil, err
	}
	return holder.elements, nil
}

// grow accounts for n more tags.
func (p *parser) grow(n int) error {
	p.tags += n
	if p.tags > MaxTags {
		return errors.Wrapf(ErrTooLarge, "more than %d tags", MaxTags)
	}
	return nil
}

func treeSize(t *Tag) int {
	n := 1 + len(t.attributes)
	for _, e := range t.elements {
		n += treeSize(e)
	}
	return n
}

func (p *parser) buildTemplate(ti *TemplateInstance) ([]*Tag, error) {
	if err := p.grow(1); err != nil {
		return nil, err
	}
	holder := newTag(ElementTag, "", newValue(p.codepage))
	if _, err := p.fill(holder, ti.Definition.root.Items, ti.Values); err != nil {
		return nil, errors.Wrapf(err, "template 0x%08x", ti.TemplateID)
	}
	return holder.elements, nil
}

// buildNode instantiates one element. An element made only of an empty
// optional substitution yields no tag, an element holding only an array
// yields one tag per array item.
func (p *parser) buildNode(n *Node, values []*templateValue) ([]*Tag, error) {
	if err := p.grow(1 + len(n.Start.Attributes)); err != nil {
		return nil, err
	}
	tag := newTag(ElementTag, n.Start.Name, newValue(p.codepage))
	for _, attr := range n.Start.Attributes {
		value, drop, err := p.attributeValue(attr.Content, values)
		if err != nil {
			return nil, errors.Wrapf(err, "attribute %s of %s", attr.Name, n.Start.Name)
		}
		if drop {
			continue
		}
		tag.attributes = append(tag.attributes, newTag(AttributeTag, attr.Name, value))
	}

	state, err := p.fill(tag, n.Items, values)
	if err != nil {
		return nil, err
	}

	switch {
	case state.array != nil && len(tag.value.segments) == 1 && len(tag.elements) == 0:
		return p.expandArray(tag, state.array)
	case state.optionalEmpty && tag.value.IsEmpty() && len(tag.elements) == 0 && len(tag.attributes) == 0:
		return nil, nil
	}
	return []*Tag{tag}, nil
}

func (p *parser) expandArray(tag *Tag, v *templateValue) ([]*Tag, error) {
	items, err := splitArray(v.valueType, v.data)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		tag.value = newValue(p.codepage)
		return []*Tag{tag}, nil
	}
	if err := p.grow(len(items) * treeSize(tag)); err != nil {
		return nil, err
	}
	tags := make([]*Tag, 0, len(items))
	for _, item := range items {
		t := tag.Clone()
		t.value = newValue(p.codepage)
		t.value.appendTyped(v.valueType.BaseType(), item)
		tags = append(tags, t)
	}
	return tags, nil
}

// fill appends the content of items to tag: child elements, text and
// substituted values.
func (p *parser) fill(tag *Tag, items []Element, values []*templateValue) (fillState, error) {
	var state fillState
	for _, item := range items {
		switch e := item.(type) {
		case *Node:
			tags, err := p.buildNode(e, values)
			if err != nil {
				return state, err
			}
			tag.elements = append(tag.elements, tags...)
		case *TemplateInstance:
			tags, err := p.buildTemplate(e)
			if err != nil {
				return state, err
			}
			tag.elements = append(tag.elements, tags...)
		case *ValueText:
			tag.value.appendText(e.Value)
		case *CharEntityRef:
			tag.value.appendText(e.String())
		case *EntityReference:
			tag.value.appendText(e.String())
		case *CDATASection:
			value := newValue(p.codepage)
			value.appendText(e.Text)
			tag.elements = append(tag.elements, newTag(CDATATag, "", value))
		case *PITarget:
			tag.elements = append(tag.elements, newTag(PITag, e.Name, newValue(p.codepage)))
		case *PIData:
			if n := len(tag.elements); n > 0 && tag.elements[n-1].kind == PITag {
				tag.elements[n-1].value.appendText(e.Text)
			}
		case *Substitution:
			v, err := substitute(values, e.ID)
			if err != nil {
				return state, err
			}
			switch {
			case e.Optional && v.isEmpty():
				state.optionalEmpty = true
			case v.valueType == BinXmlType:
				for _, t := range v.tags {
					if err := p.grow(treeSize(t)); err != nil {
						return state, err
					}
					tag.elements = append(tag.elements, t.Clone())
				}
			case v.valueType == NullType:
			default:
				tag.value.appendTyped(v.valueType, v.data)
				if v.valueType.IsArray() {
					state.array = v
				}
			}
		}
	}
	return state, nil
}

// attributeValue resolves the content of an attribute. drop is set when an
// empty optional substitution left the attribute without a value.
func (p *parser) attributeValue(content []Element, values []*templateValue) (value *Value, drop bool, err error) {
	value = newValue(p.codepage)
	optionalEmpty := false
	for _, item := range content {
		switch e := item.(type) {
		case *ValueText:
			value.appendText(e.Value)
		case *CharEntityRef:
			value.appendText(e.String())
		case *EntityReference:
			value.appendText(e.String())
		case *Substitution:
			v, err := substitute(values, e.ID)
			if err != nil {
				return nil, false, err
			}
			switch {
			case e.Optional && v.isEmpty():
				optionalEmpty = true
			case v.valueType == NullType, v.valueType == BinXmlType:
			default:
				value.appendTyped(v.valueType, v.data)
			}
		}
	}
	return value, optionalEmpty && value.IsEmpty(), nil
}

func substitute(values []*templateValue, id uint16) (*templateValue, error) {
	if int(id) >= len(values) {
		return nil, errors.Wrapf(ErrSubstitution, "value %d of %d", id, len(values))
	}
	return values[id], nil
}
