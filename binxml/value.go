package binxml

import (
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf16"

	"github.com/pkg/errors"
	"github.com/rawsec/evtxrecord/codepage"
)

// segment is one piece of a value: literal text from the template body or a
// typed substitution argument.
type segment struct {
	valueType ValueType
	data      []byte
	text      string
	isText    bool
}

// Value is the content of an element or attribute. Mixed content is kept as
// a list of segments and rendered by concatenation.
type Value struct {
	segments []segment
	codepage codepage.Codepage
}

func newValue(cp codepage.Codepage) *Value {
	return &Value{codepage: cp}
}

func (v *Value) appendText(text string) {
	if text == "" {
		return
	}
	v.segments = append(v.segments, segment{valueType: StringType, text: text, isText: true})
}

func (v *Value) appendTyped(valueType ValueType, data []byte) {
	v.segments = append(v.segments, segment{valueType: valueType, data: data})
}

// IsEmpty reports whether the value has no content at all.
func (v *Value) IsEmpty() bool {
	return v == nil || len(v.segments) == 0
}

// Type returns the type of a single typed segment. Text and mixed content
// are strings, an empty value is NullType.
func (v *Value) Type() ValueType {
	switch {
	case v.IsEmpty():
		return NullType
	case len(v.segments) == 1:
		return v.segments[0].valueType
	}
	return StringType
}

func (v *Value) clone() *Value {
	if v == nil {
		return nil
	}
	result := &Value{codepage: v.codepage, segments: make([]segment, len(v.segments))}
	for i, s := range v.segments {
		result.segments[i] = s
		if s.data != nil {
			result.segments[i].data = append([]byte(nil), s.data...)
		}
	}
	return result
}

// UTF8String renders the value as text.
func (v *Value) UTF8String() (string, error) {
	if v.IsEmpty() {
		return "", nil
	}
	var b strings.Builder
	for _, s := range v.segments {
		str, err := s.format(v.codepage)
		if err != nil {
			return "", err
		}
		b.WriteString(str)
	}
	return b.String(), nil
}

// UTF8StringSize is the size of the UTF-8 rendering including the
// terminating NUL.
func (v *Value) UTF8StringSize() (int, error) {
	s, err := v.UTF8String()
	if err != nil {
		return 0, err
	}
	return len(s) + 1, nil
}

// CopyUTF8String writes the rendering and a terminating NUL into buf and
// returns the number of bytes written.
func (v *Value) CopyUTF8String(buf []byte) (int, error) {
	s, err := v.UTF8String()
	if err != nil {
		return 0, err
	}
	return CopyUTF8(s, buf)
}

func (v *Value) UTF16String() ([]uint16, error) {
	s, err := v.UTF8String()
	if err != nil {
		return nil, err
	}
	return utf16.Encode([]rune(s)), nil
}

func (v *Value) UTF16StringSize() (int, error) {
	s, err := v.UTF16String()
	if err != nil {
		return 0, err
	}
	return len(s) + 1, nil
}

func (v *Value) CopyUTF16String(buf []uint16) (int, error) {
	s, err := v.UTF8String()
	if err != nil {
		return 0, err
	}
	return CopyUTF16(s, buf)
}

// Data returns the raw bytes of a single typed value. Text is returned as
// UTF-16 little-endian, the way it is stored.
func (v *Value) Data() ([]byte, error) {
	switch {
	case v.IsEmpty():
		return nil, nil
	case len(v.segments) == 1 && !v.segments[0].isText:
		return append([]byte(nil), v.segments[0].data...), nil
	}
	s, err := v.UTF8String()
	if err != nil {
		return nil, err
	}
	units := utf16.Encode([]rune(s))
	data := make([]byte, len(units)*2)
	for i, u := range units {
		Endianness.PutUint16(data[i*2:], u)
	}
	return data, nil
}

func (v *Value) DataSize() (int, error) {
	data, err := v.Data()
	return len(data), err
}

// Uint64 converts integer, boolean and time values directly and parses
// decimal or 0x prefixed hexadecimal text.
func (v *Value) Uint64() (uint64, error) {
	if v.IsEmpty() {
		return 0, errors.Wrap(ErrValueType, "empty value")
	}
	if len(v.segments) == 1 && !v.segments[0].isText {
		s := v.segments[0]
		switch s.valueType {
		case StringType, AnsiStringType:
		default:
			return s.integer()
		}
	}
	text, err := v.UTF8String()
	if err != nil {
		return 0, err
	}
	return parseInteger(text)
}

func (v *Value) Uint32() (uint32, error) {
	value, err := v.Uint64()
	if err != nil {
		return 0, err
	}
	if value > math.MaxUint32 {
		return 0, errors.Wrapf(ErrValueOutOfRange, "%d", value)
	}
	return uint32(value), nil
}

func (v *Value) Uint16() (uint16, error) {
	value, err := v.Uint64()
	if err != nil {
		return 0, err
	}
	if value > math.MaxUint16 {
		return 0, errors.Wrapf(ErrValueOutOfRange, "%d", value)
	}
	return uint16(value), nil
}

func (v *Value) Uint8() (uint8, error) {
	value, err := v.Uint64()
	if err != nil {
		return 0, err
	}
	if value > math.MaxUint8 {
		return 0, errors.Wrapf(ErrValueOutOfRange, "%d", value)
	}
	return uint8(value), nil
}

func parseInteger(text string) (uint64, error) {
	text = strings.TrimSpace(text)
	base := 10
	if strings.HasPrefix(text, "0x") || strings.HasPrefix(text, "0X") {
		text, base = text[2:], 16
	}
	value, err := strconv.ParseUint(text, base, 64)
	if err != nil {
		return 0, errors.Wrapf(ErrValueType, "%q is not an integer", text)
	}
	return value, nil
}

func (s segment) checkSize() error {
	if size := s.valueType.fixedSize(); size > 0 && len(s.data) < size {
		return errors.Wrapf(ErrInvalidValueSize, "type 0x%02x needs %d bytes, got %d",
			uint8(s.valueType), size, len(s.data))
	}
	return nil
}

func (s segment) integer() (uint64, error) {
	if err := s.checkSize(); err != nil {
		return 0, err
	}
	switch s.valueType {
	case Int8Type:
		return uint64(int64(int8(s.data[0]))), nil
	case UInt8Type:
		return uint64(s.data[0]), nil
	case Int16Type:
		return uint64(int64(int16(Endianness.Uint16(s.data)))), nil
	case UInt16Type:
		return uint64(Endianness.Uint16(s.data)), nil
	case Int32Type:
		return uint64(int64(int32(Endianness.Uint32(s.data)))), nil
	case UInt32Type, HexInt32Type, BoolType:
		return uint64(Endianness.Uint32(s.data)), nil
	case Int64Type, UInt64Type, HexInt64Type, FileTimeType:
		return Endianness.Uint64(s.data), nil
	case SizeTType:
		switch len(s.data) {
		case 4:
			return uint64(Endianness.Uint32(s.data)), nil
		case 8:
			return Endianness.Uint64(s.data), nil
		}
		return 0, errors.Wrapf(ErrInvalidValueSize, "size_t of %d bytes", len(s.data))
	}
	return 0, errors.Wrapf(ErrValueType, "type 0x%02x to integer", uint8(s.valueType))
}

func (s segment) format(cp codepage.Codepage) (string, error) {
	if s.isText {
		return s.text, nil
	}
	if s.valueType.IsArray() {
		items, err := splitArray(s.valueType, s.data)
		if err != nil {
			return "", err
		}
		parts := make([]string, 0, len(items))
		for _, item := range items {
			str, err := segment{valueType: s.valueType.BaseType(), data: item}.format(cp)
			if err != nil {
				return "", err
			}
			parts = append(parts, str)
		}
		return strings.Join(parts, ","), nil
	}
	if err := s.checkSize(); err != nil {
		return "", err
	}

	data := s.data
	switch s.valueType {
	case NullType, EvtHandleType, BinXmlType:
		return "", nil
	case StringType, EvtXmlType:
		return DecodeUTF16(data)
	case AnsiStringType:
		return cp.Decode(data)
	case Int8Type, Int16Type, Int32Type, Int64Type:
		value, err := s.integer()
		if err != nil {
			return "", err
		}
		return strconv.FormatInt(signExtend(value, s.valueType.fixedSize()), 10), nil
	case UInt8Type, UInt16Type, UInt32Type, UInt64Type:
		value, err := s.integer()
		if err != nil {
			return "", err
		}
		return strconv.FormatUint(value, 10), nil
	case Real32Type:
		return strconv.FormatFloat(float64(math.Float32frombits(Endianness.Uint32(data))), 'g', -1, 32), nil
	case Real64Type:
		return strconv.FormatFloat(math.Float64frombits(Endianness.Uint64(data)), 'g', -1, 64), nil
	case BoolType:
		if Endianness.Uint32(data) != 0 {
			return "true", nil
		}
		return "false", nil
	case BinaryType:
		return strings.ToUpper(hex.EncodeToString(data)), nil
	case GuidType:
		return FormatGUID(data), nil
	case SizeTType, HexInt32Type, HexInt64Type:
		value, err := s.integer()
		if err != nil {
			return "", err
		}
		if len(data) == 4 || s.valueType == HexInt32Type {
			return fmt.Sprintf("0x%08x", value), nil
		}
		return fmt.Sprintf("0x%016x", value), nil
	case FileTimeType:
		return FileTime(Endianness.Uint64(data)).String(), nil
	case SysTimeType:
		return formatSystemTime(data), nil
	case SidType:
		return FormatSID(data)
	}
	return "", errors.Wrapf(ErrValueType, "type 0x%02x to string", uint8(s.valueType))
}

func signExtend(value uint64, size int) int64 {
	shift := uint(64 - size*8)
	return int64(value<<shift) >> shift
}

// splitArray cuts array data into items: NUL separated strings or fixed
// size entries.
func splitArray(valueType ValueType, data []byte) ([][]byte, error) {
	var items [][]byte
	base := valueType.BaseType()
	switch base {
	case StringType:
		start := 0
		for i := 0; i+1 < len(data); i += 2 {
			if data[i] == 0 && data[i+1] == 0 {
				items = append(items, data[start:i])
				start = i + 2
			}
		}
		if start < len(data) {
			items = append(items, data[start:])
		}
		return items, nil
	case AnsiStringType:
		for _, item := range strings.Split(strings.TrimRight(string(data), "\x00"), "\x00") {
			items = append(items, []byte(item))
		}
		return items, nil
	}

	size := base.fixedSize()
	if size == 0 {
		return nil, errors.Wrapf(ErrValueType, "array of type 0x%02x", uint8(base))
	}
	if len(data)%size != 0 {
		return nil, errors.Wrapf(ErrInvalidValueSize, "array of %d bytes with items of %d", len(data), size)
	}
	for i := 0; i < len(data); i += size {
		items = append(items, data[i:i+size])
	}
	return items, nil
}

// FormatGUID renders a 16 byte GUID in registry format.
func FormatGUID(data []byte) string {
	if len(data) < 16 {
		return ""
	}
	return fmt.Sprintf("{%08X-%04X-%04X-%02X%02X-%02X%02X%02X%02X%02X%02X}",
		Endianness.Uint32(data), Endianness.Uint16(data[4:]), Endianness.Uint16(data[6:]),
		data[8], data[9], data[10], data[11], data[12], data[13], data[14], data[15])
}

// FormatSID renders a binary security identifier as S-R-A-S1-S2...
func FormatSID(data []byte) (string, error) {
	if len(data) < 8 {
		return "", errors.Wrapf(ErrInvalidValueSize, "SID of %d bytes", len(data))
	}
	count := int(data[1])
	if len(data) < 8+count*4 {
		return "", errors.Wrapf(ErrInvalidValueSize, "SID with %d sub authorities in %d bytes", count, len(data))
	}
	authority := uint64(0)
	for _, b := range data[2:8] {
		authority = authority<<8 | uint64(b)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "S-%d-%d", data[0], authority)
	for i := 0; i < count; i++ {
		fmt.Fprintf(&b, "-%d", Endianness.Uint32(data[8+i*4:]))
	}
	return b.String(), nil
}

func formatSystemTime(data []byte) string {
	field := func(i int) uint16 { return Endianness.Uint16(data[i*2:]) }
	return fmt.Sprintf("%04d-%02d-%02dT%02d:%02d:%02d.%03dZ",
		field(0), field(1), field(3), field(4), field(5), field(6), field(7))
}

// CopyUTF8 writes s and a terminating NUL to buf.
func CopyUTF8(s string, buf []byte) (int, error) {
	if len(buf) < len(s)+1 {
		return 0, errors.Wrapf(ErrBufferTooSmall, "need %d bytes, have %d", len(s)+1, len(buf))
	}
	n := copy(buf, s)
	buf[n] = 0
	return n + 1, nil
}

// CopyUTF16 writes s as UTF-16 and a terminating NUL to buf.
func CopyUTF16(s string, buf []uint16) (int, error) {
	units := utf16.Encode([]rune(s))
	if len(buf) < len(units)+1 {
		return 0, errors.Wrapf(ErrBufferTooSmall, "need %d units, have %d", len(units)+1, len(buf))
	}
	n := copy(buf, units)
	buf[n] = 0
	return n + 1, nil
}
