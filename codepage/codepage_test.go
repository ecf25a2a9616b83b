package codepage

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	s, err := Windows1252.Decode([]byte("caf\xe9\x00junk"))
	require.NoError(t, err)
	assert.Equal(t, "café", s)

	s, err = Windows1251.Decode([]byte{0xcf, 0xf0, 0xe8})
	require.NoError(t, err)
	assert.Equal(t, "При", s)

	s, err = ASCII.Decode([]byte("ok\xff"))
	require.NoError(t, err)
	assert.Equal(t, "ok�", s)

	s, err = UTF8.Decode([]byte("héllo"))
	require.NoError(t, err)
	assert.Equal(t, "héllo", s)
}

func TestUnsupported(t *testing.T) {
	assert.False(t, Codepage(1).Valid())
	assert.True(t, DefaultASCII.Valid())
	assert.True(t, Windows932.Valid())

	_, err := Codepage(1).Decode([]byte("x"))
	assert.Equal(t, ErrUnsupportedCodepage, errors.Cause(err))
	assert.Equal(t, "codepage-1", Codepage(1).String())
}
