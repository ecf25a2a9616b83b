package binxml

import (
	"fmt"

	"github.com/pkg/errors"
)

// Element is one token of a binary XML stream.
type Element interface{}

type FragmentHeader struct {
	Token      uint8
	MajVersion uint8
	MinVersion uint8
	Flags      uint8
}

type ElementStart struct {
	Offset       int64
	Token        uint8
	DependencyID uint16
	Size         uint32
	Name         string
	Attributes   []*Attribute
}

func (es *ElementStart) HasAttributes() bool {
	return es.Token == TokenOpenStartElementTag2
}

type Attribute struct {
	Token   uint8
	Name    string
	Content []Element
}

func (a *Attribute) IsLast() bool {
	return a.Token&TokenFlagHasMoreData == 0
}

type ValueText struct {
	Value string
}

type CharEntityRef struct {
	Value uint16
}

func (c *CharEntityRef) String() string {
	return string(rune(c.Value))
}

type EntityReference struct {
	Name string
}

func (e *EntityReference) String() string {
	switch e.Name {
	case "amp":
		return "&"
	case "lt":
		return "<"
	case "gt":
		return ">"
	case "quot":
		return "\""
	case "apos":
		return "'"
	}
	return fmt.Sprintf("&%s;", e.Name)
}

type CDATASection struct {
	Text string
}

type PITarget struct {
	Name string
}

type PIData struct {
	Text string
}

type Substitution struct {
	Optional  bool
	ID        uint16
	ValueType ValueType
}

type CloseStartElementTag struct{}

type CloseEmptyElementTag struct{}

type EndElementTag struct{}

// TemplateDefinition is the parsed body of a template, shared by every
// instance referring to its chunk offset.
type TemplateDefinition struct {
	Offset   int64
	ID       [16]byte
	Size     uint32
	Elements []Element
	root     Node
}

type ValueDescriptor struct {
	Size    uint16
	ValType ValueType
	Unknown uint8
}

func (v ValueDescriptor) String() string {
	return fmt.Sprintf("Size: %d ValType: 0x%02x Unk: 0x%02x", v.Size, v.ValType, v.Unknown)
}

// TemplateInstance pairs a definition with the values substituted into it.
type TemplateInstance struct {
	TemplateID uint32
	Definition *TemplateDefinition
	Values     []*templateValue
}

// templateValue is one substitution argument. BinXml values carry the tags
// of their nested fragment.
type templateValue struct {
	valueType ValueType
	data      []byte
	tags      []*Tag
}

func (v *templateValue) isEmpty() bool {
	return v.valueType == NullType || (len(v.data) == 0 && len(v.tags) == 0)
}

type ErrUnknownTokenAt struct {
	Token  uint8
	Offset int64
}

func (e ErrUnknownTokenAt) Error() string {
	return fmt.Sprintf("unknown token 0x%02x at offset 0x%x", e.Token, e.Offset)
}

func (e ErrUnknownTokenAt) Cause() error {
	return ErrUnknownToken
}

func unexpected(token uint8, offset int64, context string) error {
	return errors.Wrapf(ErrUnexpectedToken, "token 0x%02x at offset 0x%x %s", token, offset, context)
}
