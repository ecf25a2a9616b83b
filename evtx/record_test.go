package evtx

import (
	"strings"
	"testing"
	"time"
	"unicode/utf16"

	"github.com/rawsec/evtxrecord/binxml"
	"github.com/rawsec/evtxrecord/binxml/binxmltest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func logonEvent() binxmltest.Event {
	guid := [16]byte{0x54, 0x84, 0x9d, 0x54, 0x47, 0x8e, 0x99, 0x4c, 0xa3, 0x66, 0x4c, 0x6a, 0x7d, 0x82, 0x49, 0x05}
	return binxmltest.Event{
		Provider:     "Microsoft-Windows-Security-Auditing",
		ProviderGUID: &guid,
		EventID:      4624,
		Level:        u8(0),
		Created:      132223104000000000,
		RecordID:     42,
		Channel:      "Security",
		Computer:     "DC01.corp.local",
		DataNames:    []string{"TargetUserName", "TargetDomainName", "LogonType"},
		Data: []binxmltest.Value{
			binxmltest.String("Administrateur"),
			binxmltest.String("CORP"),
			binxmltest.Uint32(3),
		},
	}
}

func newTestRecord(t *testing.T, e binxmltest.Event) *Record {
	data, offsets := eventChunk(e)
	r, err := NewRecord(data, offsets[0], DefaultOptions())
	require.NoError(t, err)
	return r
}

func TestRecordHeader(t *testing.T) {
	data, offsets := eventChunk(logonEvent())
	r, err := NewRecord(data, offsets[0], DefaultOptions())
	require.NoError(t, err)

	assert.Equal(t, uint64(ChunkDataOffset), r.Offset())
	assert.Equal(t, uint64(1), r.Identifier())
	assert.Equal(t, uint64(testWrittenTime), r.WrittenTime())
	assert.Equal(t, time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), r.WrittenTimeAsTime())
	assert.True(t, r.Size() > RecordHeaderSize)

	_, err = NewRecord(data, offsets[0]+1, DefaultOptions())
	assert.True(t, IsKind(err, UnsupportedFormat))
}

func TestRecordProjections(t *testing.T) {
	r := newTestRecord(t, logonEvent())

	id, err := r.EventIdentifier()
	assert.NoError(t, err)
	assert.Equal(t, uint32(4624), id)

	level, err := r.EventLevel()
	assert.NoError(t, err)
	assert.Equal(t, uint8(0), level)

	source, ok, err := r.SourceName()
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Microsoft-Windows-Security-Auditing", source)

	computer, ok, err := r.ComputerName()
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "DC01.corp.local", computer)

	guid, ok, err := r.ProviderGUID()
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "{549D8454-8E47-4C99-A366-4C6A7D824905}", guid)

	channel, ok, err := r.Channel()
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Security", channel)

	created, ok, err := r.TimeCreated()
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), created)

	recordID, ok, err := r.EventRecordIdentifier()
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, uint64(42), recordID)

	strs, err := r.Strings()
	assert.NoError(t, err)
	assert.Equal(t, []string{"Administrateur", "CORP", "3"}, strs)

	_, ok, err = r.Data()
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestRecordNameSizes(t *testing.T) {
	r := newTestRecord(t, logonEvent())

	size, ok, err := r.UTF8ComputerNameSize()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, len("DC01.corp.local")+1, size)

	buf := make([]byte, size)
	n, ok, err := r.CopyUTF8ComputerName(buf)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, size, n)
	assert.Equal(t, "DC01.corp.local\x00", string(buf))

	_, _, err = r.CopyUTF8ComputerName(make([]byte, size-1))
	assert.True(t, IsKind(err, CopyFailed))

	size, ok, err = r.UTF16SourceNameSize()
	require.NoError(t, err)
	assert.True(t, ok)
	units := make([]uint16, size)
	n, ok, err = r.CopyUTF16SourceName(units)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, size, n)
	assert.Equal(t, "Microsoft-Windows-Security-Auditing", string(utf16.Decode(units[:n-1])))
	assert.Equal(t, uint16(0), units[n-1])

	size, ok, err = r.UTF8SourceNameSize()
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, len("Microsoft-Windows-Security-Auditing")+1, size)
}

func TestRecordMissingComputer(t *testing.T) {
	e := logonEvent()
	e.Computer = ""
	r := newTestRecord(t, e)

	_, ok, err := r.ComputerName()
	assert.NoError(t, err)
	assert.False(t, ok)

	size, ok, err := r.UTF16ComputerNameSize()
	assert.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 0, size)

	n, ok, err := r.CopyUTF16ComputerName(make([]uint16, 8))
	assert.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 0, n)
}

func TestRecordStrings(t *testing.T) {
	r := newTestRecord(t, logonEvent())

	count, err := r.NumberOfStrings()
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	s, err := r.StringAt(1)
	assert.NoError(t, err)
	assert.Equal(t, "CORP", s)

	size, err := r.UTF8StringSize(0)
	require.NoError(t, err)
	assert.Equal(t, len("Administrateur")+1, size)
	buf := make([]byte, size)
	n, err := r.CopyUTF8String(0, buf)
	assert.NoError(t, err)
	assert.Equal(t, size, n)
	assert.Equal(t, "Administrateur\x00", string(buf))

	size, err = r.UTF16StringSize(2)
	require.NoError(t, err)
	assert.Equal(t, 2, size)
	units := make([]uint16, size)
	n, err = r.CopyUTF16String(2, units)
	assert.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []uint16{'3', 0}, units)

	_, err = r.StringAt(3)
	assert.True(t, IsKind(err, GetFailed))
	_, err = r.UTF8StringSize(3)
	assert.True(t, IsKind(err, GetFailed))
	_, err = r.CopyUTF16String(0, make([]uint16, 2))
	assert.True(t, IsKind(err, CopyFailed))
}

func TestRecordData(t *testing.T) {
	data, offset := bodyChunk(func(b *binxmltest.Builder) {
		b.OpenElement("Event", false).CloseStart()
		b.OpenElement("EventData", false).CloseStart()
		b.SubstitutionElement("BinaryData", 0, binxmltest.BinaryType, false)
		b.EndElement()
		b.EndElement()
	}, binxmltest.Binary([]byte{1, 2, 3, 4, 5}))
	r, err := NewRecord(data, offset, DefaultOptions())
	require.NoError(t, err)

	size, ok, err := r.DataSize()
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 5, size)

	buf := make([]byte, size)
	n, ok, err := r.CopyData(buf)
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 5, n)
	assert.Equal(t, []byte{1, 2, 3, 4, 5}, buf)

	_, _, err = r.CopyData(make([]byte, 4))
	assert.True(t, IsKind(err, CopyFailed))
}

func TestRecordXMLString(t *testing.T) {
	r := newTestRecord(t, logonEvent())

	xml, err := r.XMLString()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(xml, `<Event xmlns="`+binxmltest.EventNamespace+`">`), xml)
	assert.Contains(t, xml, `<EventID>4624</EventID>`)
	assert.Contains(t, xml, `<Data Name="TargetUserName">Administrateur</Data>`)
	assert.Contains(t, xml, `<TimeCreated SystemTime="2020-01-01T00:00:00.0000000Z"/>`)
	assert.NotContains(t, xml, "EventSourceName")
	assert.NotContains(t, xml, "Qualifiers")

	size, err := r.UTF8XMLStringSize()
	require.NoError(t, err)
	assert.Equal(t, len(xml)+1, size)

	buf := make([]byte, size)
	n, err := r.CopyUTF8XMLString(buf)
	require.NoError(t, err)
	assert.Equal(t, size, n)
	assert.Equal(t, xml, string(buf[:n-1]))
	assert.Equal(t, byte(0), buf[n-1])

	_, err = r.CopyUTF8XMLString(buf[:size-1])
	assert.True(t, IsKind(err, CopyFailed))

	size, err = r.UTF16XMLStringSize()
	require.NoError(t, err)
	units := make([]uint16, size)
	n, err = r.CopyUTF16XMLString(units)
	require.NoError(t, err)
	assert.Equal(t, size, n)
	assert.Equal(t, xml, string(utf16.Decode(units[:n-1])))
}

func TestRecordReadXMLDocument(t *testing.T) {
	r := newTestRecord(t, logonEvent())
	require.NoError(t, r.ReadXMLDocument())
	assert.True(t, IsKind(r.ReadXMLDocument(), AlreadySet))

	root, err := r.RootTag()
	require.NoError(t, err)
	assert.Equal(t, "Event", root.Name())
	assert.Equal(t, binxml.ElementTag, root.Kind())
}

func TestRecordCorruptPayload(t *testing.T) {
	data, offsets := eventChunk(logonEvent())
	data[offsets[0]+RecordHeaderSize+4] = 0x1f
	r, err := NewRecord(data, offsets[0], DefaultOptions())
	require.NoError(t, err)

	_, err = r.EventIdentifier()
	assert.True(t, IsKind(err, IOError))
	_, err = r.XMLString()
	assert.True(t, IsKind(err, IOError))
	_, _, err = r.ComputerName()
	assert.True(t, IsKind(err, IOError))
}

func TestRecordCloneAfterClose(t *testing.T) {
	r := newTestRecord(t, logonEvent())
	xml, err := r.XMLString()
	require.NoError(t, err)

	c, err := r.Clone()
	require.NoError(t, err)
	require.NoError(t, r.Close())
	require.NoError(t, r.Close())

	assert.Equal(t, uint64(1), r.Identifier())
	assert.True(t, IsKind(r.ReadXMLDocument(), InvalidArgument))
	_, err = r.Clone()
	assert.True(t, IsKind(err, InvalidArgument))

	cloned, err := c.XMLString()
	assert.NoError(t, err)
	assert.Equal(t, xml, cloned)

	id, err := c.EventIdentifier()
	assert.NoError(t, err)
	assert.Equal(t, uint32(4624), id)
	assert.Equal(t, r.Identifier(), c.Identifier())
	assert.Equal(t, r.Offset(), c.Offset())
}

func TestRecordCloneBeforeRead(t *testing.T) {
	r := newTestRecord(t, logonEvent())
	c, err := r.Clone()
	require.NoError(t, err)
	assert.Nil(t, c.values.xmlDocument)

	computer, ok, err := c.ComputerName()
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "DC01.corp.local", computer)
	assert.Nil(t, r.values.xmlDocument)
}

func TestRecordTemplateReuse(t *testing.T) {
	first := logonEvent()
	second := logonEvent()
	second.EventID = 4634
	second.Computer = "WS02.corp.local"
	second.Data = []binxmltest.Value{
		binxmltest.String("jdoe"),
		binxmltest.String("CORP"),
		binxmltest.Uint32(10),
	}

	c := binxmltest.NewChunk()
	var definition uint32
	firstOffset := c.Record(1, testWrittenTime, func(b *binxmltest.Builder) { definition = first.Write(b) })
	secondOffset := c.Record(2, testWrittenTime, func(b *binxmltest.Builder) { second.Reference(b, definition) })
	data := c.Finish()

	r1, err := NewRecord(data, uint64(firstOffset), DefaultOptions())
	require.NoError(t, err)
	r2, err := NewRecord(data, uint64(secondOffset), DefaultOptions())
	require.NoError(t, err)

	id, err := r2.EventIdentifier()
	assert.NoError(t, err)
	assert.Equal(t, uint32(4634), id)
	computer, _, err := r2.ComputerName()
	assert.NoError(t, err)
	assert.Equal(t, "WS02.corp.local", computer)
	strs, err := r2.Strings()
	assert.NoError(t, err)
	assert.Equal(t, []string{"jdoe", "CORP", "10"}, strs)

	id, err = r1.EventIdentifier()
	assert.NoError(t, err)
	assert.Equal(t, uint32(4624), id)
}

func TestRecordCodepage(t *testing.T) {
	e := logonEvent()
	e.Data = []binxmltest.Value{binxmltest.Ansi("caf\xe9")}
	e.DataNames = []string{"Name"}
	r := newTestRecord(t, e)

	s, err := r.StringAt(0)
	assert.NoError(t, err)
	assert.Equal(t, "café", s)
}
