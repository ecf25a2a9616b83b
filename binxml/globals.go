package binxml

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

var (
	Endianness = binary.LittleEndian

	ErrAlreadyRead       = errors.New("document already read")
	ErrNoRoot            = errors.New("document has no root tag")
	ErrOutOfBounds       = errors.New("binary XML data out of bounds")
	ErrUnknownToken      = errors.New("unknown binary XML token")
	ErrUnexpectedToken   = errors.New("unexpected binary XML token")
	ErrBadFragmentHeader = errors.New("bad fragment header")
	ErrTooDeep           = errors.New("binary XML nesting too deep")
	ErrTooLarge          = errors.New("binary XML expands to too many tags")
	ErrSubstitution      = errors.New("substitution identifier out of range")
	ErrIndexOutOfRange   = errors.New("index out of range")
	ErrValueType         = errors.New("unsupported value type conversion")
	ErrValueOutOfRange   = errors.New("value exceeds the requested integer size")
	ErrInvalidValueSize  = errors.New("invalid value data size")
	ErrBufferTooSmall    = errors.New("buffer too small")
)

// Flags change how a document is read.
type Flags uint8

const (
	// FlagHasDataOffsets marks documents stored in an EVTX chunk: names and
	// template definitions are referenced by chunk relative offsets.
	FlagHasDataOffsets Flags = 1 << iota
)

const (
	// MaxDepth bounds template and nested BinXml recursion.
	MaxDepth = 32
	// MaxTags bounds the tags a document expands to, templates and arrays
	// included. A chunk holds 64 KiB.
	MaxTags = 0x10000

	TokenFlagHasMoreData = 0x40
)

const (
	TokenEOF                  = 0x00
	TokenOpenStartElementTag1 = 0x01
	TokenOpenStartElementTag2 = 0x41
	TokenCloseStartElementTag = 0x02
	TokenCloseEmptyElementTag = 0x03
	TokenEndElementTag        = 0x04
	TokenValue1               = 0x05
	TokenValue2               = 0x45
	TokenAttribute1           = 0x06
	TokenAttribute2           = 0x46
	TokenCDATASection1        = 0x07
	TokenCDATASection2        = 0x47
	TokenCharRef1             = 0x08
	TokenCharRef2             = 0x48
	TokenEntityRef1           = 0x09
	TokenEntityRef2           = 0x49
	TokenPITarget             = 0x0a
	TokenPIData               = 0x0b
	TokenTemplateInstance     = 0x0c
	TokenNormalSubstitution   = 0x0d
	TokenOptionalSubstitution = 0x0e
	FragmentHeaderToken       = 0x0f
)

// ValueType is the type of a template value.
type ValueType uint8

const (
	NullType       ValueType = 0x00
	StringType     ValueType = 0x01
	AnsiStringType ValueType = 0x02
	Int8Type       ValueType = 0x03
	UInt8Type      ValueType = 0x04
	Int16Type      ValueType = 0x05
	UInt16Type     ValueType = 0x06
	Int32Type      ValueType = 0x07
	UInt32Type     ValueType = 0x08
	Int64Type      ValueType = 0x09
	UInt64Type     ValueType = 0x0a
	Real32Type     ValueType = 0x0b
	Real64Type     ValueType = 0x0c
	BoolType       ValueType = 0x0d
	BinaryType     ValueType = 0x0e
	GuidType       ValueType = 0x0f
	SizeTType      ValueType = 0x10
	FileTimeType   ValueType = 0x11
	SysTimeType    ValueType = 0x12
	SidType        ValueType = 0x13
	HexInt32Type   ValueType = 0x14
	HexInt64Type   ValueType = 0x15
	EvtHandleType  ValueType = 0x20
	BinXmlType     ValueType = 0x21
	EvtXmlType     ValueType = 0x23
	ArrayType      ValueType = 0x80
)

func (t ValueType) IsArray() bool {
	return t&ArrayType != 0
}

// BaseType strips the array flag.
func (t ValueType) BaseType() ValueType {
	return t &^ ArrayType
}

// fixedSize returns the size of one item of t, or 0 for variable sized
// types.
func (t ValueType) fixedSize() int {
	switch t.BaseType() {
	case Int8Type, UInt8Type:
		return 1
	case Int16Type, UInt16Type:
		return 2
	case Int32Type, UInt32Type, Real32Type, BoolType, HexInt32Type:
		return 4
	case Int64Type, UInt64Type, Real64Type, FileTimeType, HexInt64Type:
		return 8
	case GuidType, SysTimeType:
		return 16
	}
	return 0
}
