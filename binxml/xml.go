package binxml

import (
	"strings"
	"unicode/utf16"
)

const indentation = "  "

var escaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	"\"", "&quot;",
	"'", "&apos;",
)

// UTF8XMLString renders the tag and its subtree as indented XML, one element
// per line.
func (t *Tag) UTF8XMLString() (string, error) {
	var b strings.Builder
	if err := t.writeXML(&b, 0); err != nil {
		return "", err
	}
	return b.String(), nil
}

// UTF8XMLStringSize is the size of the rendering including the terminating
// NUL.
func (t *Tag) UTF8XMLStringSize() (int, error) {
	s, err := t.UTF8XMLString()
	if err != nil {
		return 0, err
	}
	return len(s) + 1, nil
}

func (t *Tag) CopyUTF8XMLString(buf []byte) (int, error) {
	s, err := t.UTF8XMLString()
	if err != nil {
		return 0, err
	}
	return CopyUTF8(s, buf)
}

func (t *Tag) UTF16XMLString() ([]uint16, error) {
	s, err := t.UTF8XMLString()
	if err != nil {
		return nil, err
	}
	return utf16.Encode([]rune(s)), nil
}

func (t *Tag) UTF16XMLStringSize() (int, error) {
	s, err := t.UTF16XMLString()
	if err != nil {
		return 0, err
	}
	return len(s) + 1, nil
}

func (t *Tag) CopyUTF16XMLString(buf []uint16) (int, error) {
	s, err := t.UTF8XMLString()
	if err != nil {
		return 0, err
	}
	return CopyUTF16(s, buf)
}

func (t *Tag) writeXML(b *strings.Builder, depth int) error {
	indent := strings.Repeat(indentation, depth)
	value, err := t.value.UTF8String()
	if err != nil {
		return err
	}

	switch t.kind {
	case CDATATag:
		b.WriteString(indent + "<![CDATA[" + value + "]]>\n")
		return nil
	case PITag:
		b.WriteString(indent + "<?" + t.name)
		if value != "" {
			b.WriteString(" " + value)
		}
		b.WriteString("?>\n")
		return nil
	}

	b.WriteString(indent + "<" + t.name)
	for _, a := range t.attributes {
		av, err := a.value.UTF8String()
		if err != nil {
			return err
		}
		b.WriteString(" " + a.name + "=\"" + escaper.Replace(av) + "\"")
	}

	switch {
	case len(t.elements) == 0 && value == "":
		b.WriteString("/>\n")
	case len(t.elements) == 0:
		b.WriteString(">" + escaper.Replace(value) + "</" + t.name + ">\n")
	default:
		b.WriteString(">" + escaper.Replace(value) + "\n")
		for _, e := range t.elements {
			if err := e.writeXML(b, depth+1); err != nil {
				return err
			}
		}
		b.WriteString(indent + "</" + t.name + ">\n")
	}
	return nil
}
