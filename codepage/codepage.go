// Package codepage converts strings stored in Windows ASCII codepages to
// UTF-8.
package codepage

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/pkg/errors"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/traditionalchinese"
)

type Codepage int

const (
	ASCII        Codepage = 20127
	Windows874   Codepage = 874
	Windows932   Codepage = 932
	Windows936   Codepage = 936
	Windows949   Codepage = 949
	Windows950   Codepage = 950
	Windows1250  Codepage = 1250
	Windows1251  Codepage = 1251
	Windows1252  Codepage = 1252
	Windows1253  Codepage = 1253
	Windows1254  Codepage = 1254
	Windows1255  Codepage = 1255
	Windows1256  Codepage = 1256
	Windows1257  Codepage = 1257
	Windows1258  Codepage = 1258
	KOI8R        Codepage = 20866
	KOI8U        Codepage = 21866
	ISO8859_1    Codepage = 28591
	ISO8859_2    Codepage = 28592
	ISO8859_3    Codepage = 28593
	ISO8859_4    Codepage = 28594
	ISO8859_5    Codepage = 28595
	ISO8859_6    Codepage = 28596
	ISO8859_7    Codepage = 28597
	ISO8859_8    Codepage = 28598
	ISO8859_9    Codepage = 28599
	ISO8859_10   Codepage = 28600
	ISO8859_13   Codepage = 28603
	ISO8859_14   Codepage = 28604
	ISO8859_15   Codepage = 28605
	ISO8859_16   Codepage = 28606
	UTF8         Codepage = 65001
	DefaultASCII          = Windows1252
)

var ErrUnsupportedCodepage = errors.New("unsupported codepage")

var encodings = map[Codepage]encoding.Encoding{
	Windows874:  charmap.Windows874,
	Windows932:  japanese.ShiftJIS,
	Windows936:  simplifiedchinese.GBK,
	Windows949:  korean.EUCKR,
	Windows950:  traditionalchinese.Big5,
	Windows1250: charmap.Windows1250,
	Windows1251: charmap.Windows1251,
	Windows1252: charmap.Windows1252,
	Windows1253: charmap.Windows1253,
	Windows1254: charmap.Windows1254,
	Windows1255: charmap.Windows1255,
	Windows1256: charmap.Windows1256,
	Windows1257: charmap.Windows1257,
	Windows1258: charmap.Windows1258,
	KOI8R:       charmap.KOI8R,
	KOI8U:       charmap.KOI8U,
	ISO8859_1:   charmap.ISO8859_1,
	ISO8859_2:   charmap.ISO8859_2,
	ISO8859_3:   charmap.ISO8859_3,
	ISO8859_4:   charmap.ISO8859_4,
	ISO8859_5:   charmap.ISO8859_5,
	ISO8859_6:   charmap.ISO8859_6,
	ISO8859_7:   charmap.ISO8859_7,
	ISO8859_8:   charmap.ISO8859_8,
	ISO8859_9:   charmap.ISO8859_9,
	ISO8859_10:  charmap.ISO8859_10,
	ISO8859_13:  charmap.ISO8859_13,
	ISO8859_14:  charmap.ISO8859_14,
	ISO8859_15:  charmap.ISO8859_15,
	ISO8859_16:  charmap.ISO8859_16,
}

// Valid reports whether strings in codepage c can be converted.
func (c Codepage) Valid() bool {
	switch c {
	case ASCII, UTF8:
		return true
	}
	_, ok := encodings[c]
	return ok
}

func (c Codepage) String() string {
	switch c {
	case ASCII:
		return "ascii"
	case UTF8:
		return "utf-8"
	}
	if enc, ok := encodings[c]; ok {
		if s, ok := enc.(fmt.Stringer); ok {
			return s.String()
		}
	}
	return fmt.Sprintf("codepage-%d", int(c))
}

// Decode converts data to UTF-8. Conversion stops at the first NUL byte.
func (c Codepage) Decode(data []byte) (string, error) {
	if idx := strings.IndexByte(string(data), 0); idx >= 0 {
		data = data[:idx]
	}

	switch c {
	case ASCII:
		runes := make([]rune, len(data))
		for i, b := range data {
			if b < 0x80 {
				runes[i] = rune(b)
			} else {
				runes[i] = utf8.RuneError
			}
		}
		return string(runes), nil

	case UTF8:
		if !utf8.Valid(data) {
			return strings.ToValidUTF8(string(data), string(utf8.RuneError)), nil
		}
		return string(data), nil
	}

	enc, ok := encodings[c]
	if !ok {
		return "", errors.Wrapf(ErrUnsupportedCodepage, "%d", int(c))
	}
	out, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return "", errors.Wrapf(err, "decoding %s", c)
	}
	return string(out), nil
}
