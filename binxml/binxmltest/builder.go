// Package binxmltest writes binary XML fixtures with chunk relative offsets:
// names are interned and template definitions can be referenced again by
// offset the way they are in EVTX chunks.
package binxmltest

import (
	"encoding/binary"
	"unicode/utf16"
)

// Value types used by fixtures.
const (
	NullType     = 0x00
	StringType   = 0x01
	AnsiType     = 0x02
	UInt8Type    = 0x04
	UInt16Type   = 0x06
	UInt32Type   = 0x08
	UInt64Type   = 0x0a
	BinaryType   = 0x0e
	GuidType     = 0x0f
	FileTimeType = 0x11
	SidType      = 0x13
	HexInt64Type = 0x15
	BinXmlType   = 0x21
	ArrayFlag    = 0x80
)

var le = binary.LittleEndian

// Builder appends binary XML to a buffer whose offsets are the offsets the
// parser sees.
type Builder struct {
	buf   []byte
	names map[string]uint32
	// Inline writes names in place every time instead of interning them.
	Inline bool
}

// New returns a builder whose first byte is at offset prefix.
func New(prefix int) *Builder {
	return &Builder{buf: make([]byte, prefix), names: make(map[string]uint32)}
}

func (b *Builder) Bytes() []byte {
	return b.buf
}

func (b *Builder) Len() int {
	return len(b.buf)
}

func (b *Builder) U8(v uint8) *Builder {
	b.buf = append(b.buf, v)
	return b
}

func (b *Builder) U16(v uint16) *Builder {
	b.buf = le.AppendUint16(b.buf, v)
	return b
}

func (b *Builder) U32(v uint32) *Builder {
	b.buf = le.AppendUint32(b.buf, v)
	return b
}

func (b *Builder) U64(v uint64) *Builder {
	b.buf = le.AppendUint64(b.buf, v)
	return b
}

func (b *Builder) Raw(data []byte) *Builder {
	b.buf = append(b.buf, data...)
	return b
}

func (b *Builder) Patch16(offset int, v uint16) {
	le.PutUint16(b.buf[offset:], v)
}

func (b *Builder) Patch32(offset int, v uint32) {
	le.PutUint32(b.buf[offset:], v)
}

func (b *Builder) Patch64(offset int, v uint64) {
	le.PutUint64(b.buf[offset:], v)
}

func (b *Builder) utf16(s string) {
	for _, u := range utf16.Encode([]rune(s)) {
		b.U16(u)
	}
}

// Name writes a name reference, interning the name on first use.
func (b *Builder) Name(name string) *Builder {
	if offset, ok := b.names[name]; ok && !b.Inline {
		return b.U32(offset)
	}
	offset := uint32(b.Len() + 4)
	b.names[name] = offset
	b.U32(offset)
	// next name offset, hash
	b.U32(0).U16(0)
	b.U16(uint16(len(utf16.Encode([]rune(name)))))
	b.utf16(name)
	return b.U16(0)
}

func (b *Builder) FragmentHeader() *Builder {
	return b.U8(0x0f).U8(1).U8(1).U8(0)
}

// OpenElement writes an element start. Attributes written next must end
// with one whose more flag is false.
func (b *Builder) OpenElement(name string, hasAttributes bool) *Builder {
	token := uint8(0x01)
	if hasAttributes {
		token = 0x41
	}
	b.U8(token).U16(0xffff).U32(0).Name(name)
	if hasAttributes {
		b.U32(0)
	}
	return b
}

func (b *Builder) Attribute(name string, more bool) *Builder {
	token := uint8(0x06)
	if more {
		token = 0x46
	}
	return b.U8(token).Name(name)
}

func (b *Builder) Text(s string) *Builder {
	b.U8(0x05).U8(StringType).U16(uint16(len(utf16.Encode([]rune(s)))))
	b.utf16(s)
	return b
}

func (b *Builder) CDATA(s string) *Builder {
	b.U8(0x07).U16(uint16(len(utf16.Encode([]rune(s)))))
	b.utf16(s)
	return b
}

func (b *Builder) CharRef(r uint16) *Builder {
	return b.U8(0x08).U16(r)
}

func (b *Builder) EntityRef(name string) *Builder {
	return b.U8(0x09).Name(name)
}

func (b *Builder) Substitution(id uint16, valueType uint8) *Builder {
	return b.U8(0x0d).U16(id).U8(valueType)
}

func (b *Builder) OptionalSubstitution(id uint16, valueType uint8) *Builder {
	return b.U8(0x0e).U16(id).U8(valueType)
}

func (b *Builder) CloseStart() *Builder {
	return b.U8(0x02)
}

func (b *Builder) CloseEmpty() *Builder {
	return b.U8(0x03)
}

func (b *Builder) EndElement() *Builder {
	return b.U8(0x04)
}

func (b *Builder) EOF() *Builder {
	return b.U8(0x00)
}

// Element writes <name>text</name>, or <name/> for empty text.
func (b *Builder) Element(name, text string) *Builder {
	b.OpenElement(name, false)
	if text == "" {
		return b.CloseEmpty()
	}
	return b.CloseStart().Text(text).EndElement()
}

// SubstitutionElement writes <name>%id</name>.
func (b *Builder) SubstitutionElement(name string, id uint16, valueType uint8, optional bool) *Builder {
	b.OpenElement(name, false).CloseStart()
	if optional {
		b.OptionalSubstitution(id, valueType)
	} else {
		b.Substitution(id, valueType)
	}
	return b.EndElement()
}

// Value is a template substitution argument. Nested values are written in
// place by their build function.
type Value struct {
	Type   uint8
	Data   []byte
	nested func(b *Builder)
}

func String(s string) Value {
	data := make([]byte, 0, len(s)*2)
	for _, u := range utf16.Encode([]rune(s)) {
		data = le.AppendUint16(data, u)
	}
	return Value{Type: StringType, Data: data}
}

func Ansi(s string) Value {
	return Value{Type: AnsiType, Data: []byte(s)}
}

func Uint8(v uint8) Value {
	return Value{Type: UInt8Type, Data: []byte{v}}
}

func Uint16(v uint16) Value {
	return Value{Type: UInt16Type, Data: le.AppendUint16(nil, v)}
}

func Uint32(v uint32) Value {
	return Value{Type: UInt32Type, Data: le.AppendUint32(nil, v)}
}

func Uint64(v uint64) Value {
	return Value{Type: UInt64Type, Data: le.AppendUint64(nil, v)}
}

func HexInt64(v uint64) Value {
	return Value{Type: HexInt64Type, Data: le.AppendUint64(nil, v)}
}

func FileTime(v uint64) Value {
	return Value{Type: FileTimeType, Data: le.AppendUint64(nil, v)}
}

func Binary(data []byte) Value {
	return Value{Type: BinaryType, Data: data}
}

func Guid(data [16]byte) Value {
	return Value{Type: GuidType, Data: data[:]}
}

func Null() Value {
	return Value{Type: NullType}
}

// StringArray is a NUL separated list of strings.
func StringArray(items ...string) Value {
	var data []byte
	for _, item := range items {
		data = append(data, String(item).Data...)
		data = append(data, 0, 0)
	}
	return Value{Type: StringType | ArrayFlag, Data: data}
}

func Uint16Array(items ...uint16) Value {
	var data []byte
	for _, item := range items {
		data = le.AppendUint16(data, item)
	}
	return Value{Type: UInt16Type | ArrayFlag, Data: data}
}

// Nested is a BinXml value: a fragment written by build.
func Nested(build func(b *Builder)) Value {
	return Value{Type: BinXmlType, nested: build}
}

// TemplateInstance writes a template instance with its definition inline and
// returns the definition offset. body writes the definition content between
// the fragment header and EOF.
func (b *Builder) TemplateInstance(id uint32, body func(b *Builder), values ...Value) uint32 {
	b.U8(0x0c).U8(0x01).U32(id)
	defOffset := uint32(b.Len() + 4)
	b.U32(defOffset)
	// next template offset, GUID
	b.U32(0).Raw(make([]byte, 16))
	sizeOffset := b.Len()
	b.U32(0)
	start := b.Len()
	b.FragmentHeader()
	body(b)
	b.EOF()
	b.Patch32(sizeOffset, uint32(b.Len()-start))
	b.Values(values...)
	return defOffset
}

// TemplateReference writes a template instance using the definition at
// defOffset.
func (b *Builder) TemplateReference(id, defOffset uint32, values ...Value) {
	b.U8(0x0c).U8(0x01).U32(id).U32(defOffset)
	b.Values(values...)
}

// Values writes the value count, descriptors and data of a template
// instance.
func (b *Builder) Values(values ...Value) {
	b.U32(uint32(len(values)))
	descriptors := b.Len()
	for _, v := range values {
		b.U16(uint16(len(v.Data))).U8(v.Type).U8(0)
	}
	for i, v := range values {
		if v.nested == nil {
			b.Raw(v.Data)
			continue
		}
		start := b.Len()
		v.nested(b)
		b.Patch16(descriptors+i*4, uint16(b.Len()-start))
	}
}
