package binxml

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/pkg/errors"
	"github.com/rawsec/evtxrecord/codepage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func typedValue(valueType ValueType, data []byte) *Value {
	v := newValue(codepage.Windows1251)
	v.appendTyped(valueType, data)
	return v
}

func TestValueFormatting(t *testing.T) {
	u64 := func(v uint64) []byte { return binary.LittleEndian.AppendUint64(nil, v) }
	u32 := func(v uint32) []byte { return binary.LittleEndian.AppendUint32(nil, v) }

	for _, tc := range []struct {
		name      string
		valueType ValueType
		data      []byte
		expected  string
	}{
		{"string", StringType, []byte{'h', 0, 'i', 0, 0, 0}, "hi"},
		{"ansi codepage", AnsiStringType, []byte{0xcf, 0xf0, 0xe8, 0x00}, "При"},
		{"int8", Int8Type, []byte{0xff}, "-1"},
		{"int16", Int16Type, []byte{0x00, 0x80}, "-32768"},
		{"int32", Int32Type, u32(math.MaxUint32), "-1"},
		{"uint32", UInt32Type, u32(4624), "4624"},
		{"uint64", UInt64Type, u64(math.MaxUint64), "18446744073709551615"},
		{"real64", Real64Type, u64(math.Float64bits(1.5)), "1.5"},
		{"bool", BoolType, u32(1), "true"},
		{"false", BoolType, u32(0), "false"},
		{"binary", BinaryType, []byte{0xde, 0xad, 0x01}, "DEAD01"},
		{"guid", GuidType, []byte{0x78, 0x56, 0x34, 0x12, 0x34, 0x12, 0x78, 0x56, 1, 2, 3, 4, 5, 6, 7, 8},
			"{12345678-1234-5678-0102-030405060708}"},
		{"hex32", HexInt32Type, u32(0x1f), "0x0000001f"},
		{"hex64", HexInt64Type, u64(0x8020000000000000), "0x8020000000000000"},
		{"size_t", SizeTType, u64(0x10), "0x0000000000000010"},
		{"filetime", FileTimeType, u64(132223104000000000 + 1234567), "2020-01-01T00:00:00.1234567Z"},
		{"systemtime", SysTimeType, []byte{0xe4, 0x07, 3, 0, 0, 0, 15, 0, 13, 0, 45, 0, 30, 0, 0x7b, 0}, "2020-03-15T13:45:30.123Z"},
		{"sid", SidType, []byte{1, 4, 0, 0, 0, 0, 0, 5, 21, 0, 0, 0, 1, 0, 0, 0, 2, 0, 0, 0, 3, 0, 0, 0}, "S-1-5-21-1-2-3"},
		{"uint16 array", UInt16Type | ArrayType, []byte{1, 0, 2, 0}, "1,2"},
		{"null", NullType, nil, ""},
	} {
		t.Run(tc.name, func(t *testing.T) {
			s, err := typedValue(tc.valueType, tc.data).UTF8String()
			assert.NoError(t, err)
			assert.Equal(t, tc.expected, s)
		})
	}
}

func TestValueInvalidSize(t *testing.T) {
	_, err := typedValue(UInt32Type, []byte{1, 2}).UTF8String()
	assert.Equal(t, ErrInvalidValueSize, errors.Cause(err))

	_, err = typedValue(SidType, []byte{1, 4, 0, 0, 0, 0, 0, 5}).UTF8String()
	assert.Equal(t, ErrInvalidValueSize, errors.Cause(err))
}

func TestValueMixedContent(t *testing.T) {
	v := newValue(codepage.DefaultASCII)
	v.appendText("id=")
	v.appendTyped(UInt16Type, []byte{0x10, 0x12})
	s, err := v.UTF8String()
	assert.NoError(t, err)
	assert.Equal(t, "id=4624", s)
	assert.Equal(t, StringType, v.Type())
}

func TestValueIntegers(t *testing.T) {
	n, err := typedValue(UInt16Type, []byte{0x10, 0x12}).Uint16()
	assert.NoError(t, err)
	assert.Equal(t, uint16(4624), n)

	text := newValue(codepage.DefaultASCII)
	text.appendText("0x10")
	n32, err := text.Uint32()
	assert.NoError(t, err)
	assert.Equal(t, uint32(16), n32)

	decimal := newValue(codepage.DefaultASCII)
	decimal.appendText("300")
	_, err = decimal.Uint8()
	assert.Equal(t, ErrValueOutOfRange, errors.Cause(err))

	big := typedValue(UInt64Type, binary.LittleEndian.AppendUint64(nil, 1<<32))
	_, err = big.Uint32()
	assert.Equal(t, ErrValueOutOfRange, errors.Cause(err))

	_, err = typedValue(BinaryType, []byte{1}).Uint64()
	assert.Equal(t, ErrValueType, errors.Cause(err))

	_, err = newValue(codepage.DefaultASCII).Uint64()
	assert.Equal(t, ErrValueType, errors.Cause(err))

	words := newValue(codepage.DefaultASCII)
	words.appendText("not a number")
	_, err = words.Uint64()
	assert.Equal(t, ErrValueType, errors.Cause(err))
}

func TestValueStrings(t *testing.T) {
	v := newValue(codepage.DefaultASCII)
	v.appendText("Ünïcode")

	size, err := v.UTF8StringSize()
	assert.NoError(t, err)
	assert.Equal(t, len("Ünïcode")+1, size)

	size16, err := v.UTF16StringSize()
	assert.NoError(t, err)
	assert.Equal(t, 8, size16)

	buf := make([]byte, size)
	n, err := v.CopyUTF8String(buf)
	assert.NoError(t, err)
	assert.Equal(t, size, n)
	assert.Equal(t, "Ünïcode\x00", string(buf))

	_, err = v.CopyUTF8String(make([]byte, size-1))
	assert.Equal(t, ErrBufferTooSmall, errors.Cause(err))

	buf16 := make([]uint16, size16)
	n, err = v.CopyUTF16String(buf16)
	assert.NoError(t, err)
	assert.Equal(t, 8, n)
	assert.Equal(t, uint16('Ü'), buf16[0])
	assert.Equal(t, uint16(0), buf16[7])

	_, err = v.CopyUTF16String(make([]uint16, 7))
	assert.Equal(t, ErrBufferTooSmall, errors.Cause(err))
}

func TestValueData(t *testing.T) {
	raw := []byte{0xde, 0xad}
	data, err := typedValue(BinaryType, raw).Data()
	require.NoError(t, err)
	assert.Equal(t, raw, data)

	text := newValue(codepage.DefaultASCII)
	text.appendText("AB")
	data, err = text.Data()
	require.NoError(t, err)
	assert.Equal(t, []byte{'A', 0, 'B', 0}, data)

	size, err := newValue(codepage.DefaultASCII).DataSize()
	assert.NoError(t, err)
	assert.Equal(t, 0, size)
}

func TestFileTime(t *testing.T) {
	ft := FileTime(132223104000000000)
	assert.Equal(t, int64(1577836800), ft.Time().Unix())
	assert.Equal(t, "2020-01-01T00:00:00.0000000Z", ft.String())
}
