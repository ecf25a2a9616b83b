package binxml

import (
	"bytes"
	"io"
	"strings"

	"github.com/pkg/errors"
	"github.com/rawsec/evtxrecord/encoding"
	"golang.org/x/text/encoding/unicode"
)

var utf16le = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

// DecodeUTF16 converts little-endian UTF-16 data to UTF-8, dropping trailing
// NUL characters.
func DecodeUTF16(data []byte) (string, error) {
	if len(data)%2 == 1 {
		data = data[:len(data)-1]
	}
	out, err := utf16le.NewDecoder().Bytes(data)
	if err != nil {
		return "", errors.Wrap(err, "UTF-16 string")
	}
	return strings.TrimRight(string(out), "\x00"), nil
}

// chunkReader reads binary XML from the whole chunk so that chunk relative
// offsets can be followed. Every read is bounds checked by bytes.Reader.
type chunkReader struct {
	*bytes.Reader
	size int64
}

func newChunkReader(data []byte) *chunkReader {
	return &chunkReader{Reader: bytes.NewReader(data), size: int64(len(data))}
}

func (r *chunkReader) offset() int64 {
	return r.size - int64(r.Len())
}

func (r *chunkReader) seek(offset int64) error {
	if offset < 0 || offset > r.size {
		return errors.Wrapf(ErrOutOfBounds, "seek to 0x%x (size 0x%x)", offset, r.size)
	}
	_, err := r.Seek(offset, io.SeekStart)
	return err
}

func (r *chunkReader) skip(count int64) error {
	return r.seek(r.offset() + count)
}

func (r *chunkReader) read(data interface{}) error {
	err := encoding.Unmarshal(r, data, Endianness)
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return errors.Wrapf(ErrOutOfBounds, "reading %T at 0x%x", data, r.offset())
	}
	return err
}

func (r *chunkReader) readUint8() (v uint8, err error) {
	err = r.read(&v)
	return
}

func (r *chunkReader) readUint16() (v uint16, err error) {
	err = r.read(&v)
	return
}

func (r *chunkReader) readUint32() (v uint32, err error) {
	err = r.read(&v)
	return
}

func (r *chunkReader) readBytes(size int) ([]byte, error) {
	if size < 0 || int64(size) > int64(r.Len()) {
		return nil, errors.Wrapf(ErrOutOfBounds, "%d bytes at 0x%x", size, r.offset())
	}
	buf := make([]byte, size)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, errors.Wrap(ErrOutOfBounds, err.Error())
	}
	return buf, nil
}

// readPrefixedUTF16 reads a character count followed by that many UTF-16
// characters.
func (r *chunkReader) readPrefixedUTF16() (string, error) {
	count, err := r.readUint16()
	if err != nil {
		return "", err
	}
	buf, err := r.readBytes(int(count) * 2)
	if err != nil {
		return "", err
	}
	return DecodeUTF16(buf)
}

func (r *chunkReader) peekToken() (uint8, error) {
	token, err := r.readUint8()
	if err != nil {
		return 0, err
	}
	return token, r.UnreadByte()
}
