package binxml

import (
	"testing"
	"unicode/utf16"

	"github.com/pkg/errors"
	"github.com/rawsec/evtxrecord/binxml/binxmltest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestXMLRendering(t *testing.T) {
	b := binxmltest.New(prefix)
	b.FragmentHeader()
	b.TemplateInstance(2, func(b *binxmltest.Builder) {
		b.OpenElement("Event", true).Attribute("xmlns", false).Text("urn:x").CloseStart()
		b.OpenElement("System", false).CloseStart()
		b.OpenElement("Provider", true).Attribute("Name", false).Substitution(0, binxmltest.StringType).CloseEmpty()
		b.SubstitutionElement("EventID", 1, binxmltest.UInt16Type, false)
		b.Element("Note", "a<b")
		b.OpenElement("Quote", false).CloseStart().Text("say ").EntityRef("quot").Text("hi").CharRef('!').EndElement()
		b.EndElement()
		b.EndElement()
	}, binxmltest.String("Prov"), binxmltest.Uint16(4624))
	b.EOF()

	expected := "<Event xmlns=\"urn:x\">\n" +
		"  <System>\n" +
		"    <Provider Name=\"Prov\"/>\n" +
		"    <EventID>4624</EventID>\n" +
		"    <Note>a&lt;b</Note>\n" +
		"    <Quote>say &quot;hi!</Quote>\n" +
		"  </System>\n" +
		"</Event>\n"

	root := readDocument(t, b, prefix).RootTag()
	s, err := root.UTF8XMLString()
	require.NoError(t, err)
	assert.Equal(t, expected, s)

	size, err := root.UTF8XMLStringSize()
	assert.NoError(t, err)
	assert.Equal(t, len(expected)+1, size)

	buf := make([]byte, size)
	n, err := root.CopyUTF8XMLString(buf)
	assert.NoError(t, err)
	assert.Equal(t, size, n)
	assert.Equal(t, byte(0), buf[size-1])

	_, err = root.CopyUTF8XMLString(make([]byte, size-1))
	assert.Equal(t, ErrBufferTooSmall, errors.Cause(err))

	size16, err := root.UTF16XMLStringSize()
	assert.NoError(t, err)
	assert.Equal(t, len(utf16.Encode([]rune(expected)))+1, size16)

	buf16 := make([]uint16, size16)
	n, err = root.CopyUTF16XMLString(buf16)
	assert.NoError(t, err)
	assert.Equal(t, size16, n)
	assert.Equal(t, expected, string(utf16.Decode(buf16[:n-1])))
}

func TestXMLCDATA(t *testing.T) {
	b := binxmltest.New(prefix)
	b.FragmentHeader()
	b.OpenElement("Script", false).CloseStart().CDATA("if (a < b) {}").EndElement()
	b.EOF()

	s, err := readDocument(t, b, prefix).RootTag().UTF8XMLString()
	require.NoError(t, err)
	assert.Equal(t, "<Script>\n  <![CDATA[if (a < b) {}]]>\n</Script>\n", s)
}
