package encoding

import (
	"bytes"
	"encoding/binary"
	"io"
	"reflect"

	"github.com/pkg/errors"
)

type Endianness binary.ByteOrder

var (
	ErrInvalidNilPointer  = errors.New("nil pointer is invalid")
	ErrNoPointerInterface = errors.New("interface expect to be a pointer")
	ErrOutOfBounds        = errors.New("data out of bounds")
	ErrVariableSize       = errors.New("structure has no fixed size")
)

// Size returns the number of bytes Unmarshal consumes for data, or -1 when
// data contains slices.
func Size(data interface{}) int {
	return binary.Size(data)
}

// UnmarshalAt decodes the fixed size structure data from buf at offset. It
// never reads past the end of buf.
func UnmarshalAt(buf []byte, offset int, data interface{}, endianness Endianness) error {
	size := Size(data)
	if size < 0 {
		return ErrVariableSize
	}
	if offset < 0 || offset > len(buf) || size > len(buf)-offset {
		return errors.Wrapf(ErrOutOfBounds, "%d bytes at offset %d of %d", size, offset, len(buf))
	}
	return Unmarshal(bytes.NewReader(buf[offset:offset+size]), data, endianness)
}

func marshalSequence(elem reflect.Value, endianness Endianness) ([]byte, error) {
	var out []byte
	for k := 0; k < elem.Len(); k++ {
		buff, err := Marshal(elem.Index(k).Addr().Interface(), endianness)
		if err != nil {
			return out, err
		}
		out = append(out, buff...)
	}
	return out, nil
}

// Marshal encodes data the way Unmarshal decodes it. Slices are prefixed with
// their int64 length.
func Marshal(data interface{}, endianness Endianness) ([]byte, error) {
	var out []byte
	val := reflect.ValueOf(data)
	if val.Kind() != reflect.Ptr {
		return out, ErrNoPointerInterface
	}
	if val.IsNil() {
		return out, ErrInvalidNilPointer
	}
	elem := val.Elem()
	if binary.Size(data) > 0 && elem.Kind() != reflect.Slice {
		writer := new(bytes.Buffer)
		err := binary.Write(writer, endianness, data)
		return writer.Bytes(), err
	}

	switch elem.Kind() {
	case reflect.Struct:
		for i := 0; i < elem.NumField(); i++ {
			buff, err := Marshal(elem.Field(i).Addr().Interface(), endianness)
			if err != nil {
				return out, errors.Wrapf(err, "field %s", elem.Type().Field(i).Name)
			}
			out = append(out, buff...)
		}

	case reflect.Array:
		return marshalSequence(elem, endianness)

	case reflect.Slice:
		sliceLen := int64(elem.Len())
		buff, err := Marshal(&sliceLen, endianness)
		if err != nil {
			return out, err
		}
		out = append(out, buff...)
		buff, err = marshalSequence(elem, endianness)
		if err != nil {
			return out, err
		}
		out = append(out, buff...)

	default:
		writer := new(bytes.Buffer)
		if err := binary.Write(writer, endianness, elem.Interface()); err != nil {
			return out, err
		}
		out = append(out, writer.Bytes()...)
	}
	return out, nil
}

func unmarshalSequence(reader io.Reader, elem reflect.Value, endianness Endianness) error {
	for k := 0; k < elem.Len(); k++ {
		if err := Unmarshal(reader, elem.Index(k).Addr().Interface(), endianness); err != nil {
			return err
		}
	}
	return nil
}

// Unmarshal decodes data from reader. Structures are walked field by field,
// slices are expected to be prefixed with their int64 length.
func Unmarshal(reader io.Reader, data interface{}, endianness Endianness) error {
	val := reflect.ValueOf(data)
	if val.Kind() != reflect.Ptr {
		return ErrNoPointerInterface
	}
	if val.IsNil() {
		return ErrInvalidNilPointer
	}

	// Fixed size structures go through encoding/binary in one call.
	if binary.Size(data) > 0 && val.Elem().Kind() != reflect.Slice {
		return binary.Read(reader, endianness, data)
	}

	elem := val.Elem()
	switch elem.Kind() {
	case reflect.Struct:
		for i := 0; i < elem.NumField(); i++ {
			if err := Unmarshal(reader, elem.Field(i).Addr().Interface(), endianness); err != nil {
				return errors.Wrapf(err, "field %s", elem.Type().Field(i).Name)
			}
		}

	case reflect.Array:
		return unmarshalSequence(reader, elem, endianness)

	case reflect.Slice:
		var sliceLen int64
		if err := Unmarshal(reader, &sliceLen, endianness); err != nil {
			return err
		}
		if sliceLen < 0 {
			return errors.Errorf("negative slice length %d", sliceLen)
		}
		elem.Set(reflect.MakeSlice(elem.Type(), int(sliceLen), int(sliceLen)))
		return unmarshalSequence(reader, elem, endianness)

	default:
		return binary.Read(reader, endianness, data)
	}
	return nil
}
