package evtx

import (
	"github.com/pkg/errors"
	"github.com/rawsec/evtxrecord/binxml"
	"github.com/rawsec/evtxrecord/codepage"
	"github.com/rawsec/evtxrecord/encoding"
)

// RecordHeader is the fixed part of an event record.
type RecordHeader struct {
	Magic       [4]byte
	Size        uint32
	Identifier  uint64
	WrittenTime uint64
}

type resolution uint8

const (
	unresolved resolution = iota
	resolved
	absent
)

type eventDataType uint8

const (
	eventDataNone eventDataType = iota
	eventDataEvent
	eventDataUser
)

// tagLookup memoizes a tag of the document. It never survives the document
// it points into.
type tagLookup struct {
	state resolution
	tag   *binxml.Tag
}

func (l *tagLookup) set(tag *binxml.Tag) {
	if tag == nil {
		l.state, l.tag = absent, nil
		return
	}
	l.state, l.tag = resolved, tag
}

// recordValues holds the header of one record and, once read, its XML
// document with the lookups made into it.
type recordValues struct {
	chunkDataOffset uint64
	dataSize        uint32
	identifier      uint64
	writtenTime     uint64
	copyOfSize      uint32

	xmlDocument *binxml.Document

	eventIdentifierValue tagLookup
	level                tagLookup
	providerName         tagLookup
	computer             tagLookup
	binaryData           tagLookup
	eventData            tagLookup
	eventDataType        eventDataType
}

func newRecordValues() *recordValues {
	return &recordValues{}
}

func (rv *recordValues) resetLookups() {
	rv.eventIdentifierValue = tagLookup{}
	rv.level = tagLookup{}
	rv.providerName = tagLookup{}
	rv.computer = tagLookup{}
	rv.binaryData = tagLookup{}
	rv.eventData = tagLookup{}
	rv.eventDataType = eventDataNone
}

// close drops the document and every lookup into it.
func (rv *recordValues) close() {
	if rv == nil {
		return
	}
	rv.resetLookups()
	rv.xmlDocument = nil
}

// clone copies the header and the document. Lookups are left unresolved so
// that they are made again in the copied document.
func (rv *recordValues) clone() *recordValues {
	if rv == nil {
		return nil
	}
	c := &recordValues{
		chunkDataOffset: rv.chunkDataOffset,
		dataSize:        rv.dataSize,
		identifier:      rv.identifier,
		writtenTime:     rv.writtenTime,
		copyOfSize:      rv.copyOfSize,
	}
	if rv.xmlDocument != nil {
		c.xmlDocument = rv.xmlDocument.Clone()
	}
	return c
}

// readHeader validates the record header at offset in the chunk data.
func (rv *recordValues) readHeader(data []byte, offset uint64, verifySizeCopy bool) error {
	const op = "readHeader"
	switch {
	case len(data) == 0:
		return errorf(InvalidArgument, op, "missing chunk data")
	case offset >= uint64(len(data)):
		return errorf(InvalidArgument, op, "offset 0x%x beyond chunk data of %d bytes", offset, len(data))
	}

	remaining := uint64(len(data)) - offset
	if remaining < RecordHeaderSize+4 {
		return errorf(OutOfBounds, op, "%d bytes left at offset 0x%x", remaining, offset)
	}

	var h RecordHeader
	if err := encoding.UnmarshalAt(data, int(offset), &h, Endianness); err != nil {
		return newError(OutOfBounds, op, err)
	}
	if string(h.Magic[:]) != RecordMagic {
		return errorf(UnsupportedFormat, op, "bad record signature %x at offset 0x%x", h.Magic, offset)
	}
	if h.Size < RecordHeaderSize || uint64(h.Size) > remaining-4 {
		return errorf(OutOfBounds, op, "record size %d at offset 0x%x (%d bytes left)", h.Size, offset, remaining)
	}

	var copyOfSize uint32
	if err := encoding.UnmarshalAt(data, int(offset)+int(h.Size)-4, &copyOfSize, Endianness); err != nil {
		return newError(OutOfBounds, op, err)
	}
	if verifySizeCopy && copyOfSize != h.Size {
		return errorf(UnsupportedFormat, op, "size copy %d does not match record size %d", copyOfSize, h.Size)
	}

	rv.chunkDataOffset = offset
	rv.dataSize = h.Size
	rv.identifier = h.Identifier
	rv.writtenTime = h.WrittenTime
	rv.copyOfSize = copyOfSize
	return nil
}

// readXMLDocument decodes the binary XML payload of the record. Names and
// templates are referenced by chunk offset so data is the whole chunk the
// header was read from.
func (rv *recordValues) readXMLDocument(data []byte, cp codepage.Codepage) error {
	const op = "readXMLDocument"
	switch {
	case rv.xmlDocument != nil:
		return errorf(AlreadySet, op, "XML document already read")
	case len(data) == 0:
		return errorf(InvalidArgument, op, "missing chunk data")
	case !cp.Valid():
		return errorf(InvalidArgument, op, "unsupported codepage %d", int(cp))
	case rv.dataSize < RecordHeaderSize+4:
		return errorf(OutOfBounds, op, "record size %d has no payload", rv.dataSize)
	}

	payloadOffset := rv.chunkDataOffset + RecordHeaderSize
	payloadEnd := payloadOffset + uint64(rv.dataSize) - (RecordHeaderSize + 4)
	if rv.chunkDataOffset >= uint64(len(data)) || payloadEnd > uint64(len(data)) {
		return errorf(OutOfBounds, op, "payload 0x%x-0x%x outside chunk data of %d bytes", payloadOffset, payloadEnd, len(data))
	}

	doc := binxml.NewDocument()
	if err := doc.Read(data, int(payloadOffset), cp, binxml.FlagHasDataOffsets); err != nil {
		return newError(IOError, op, err)
	}
	rv.xmlDocument = doc
	return nil
}

func (rv *recordValues) rootTag(op string) (*binxml.Tag, error) {
	if rv.xmlDocument == nil {
		return nil, errorf(InvalidArgument, op, "missing XML document")
	}
	root := rv.xmlDocument.RootTag()
	if root == nil {
		return nil, errorf(InvalidArgument, op, "missing root XML tag")
	}
	return root, nil
}

// elementByPath walks child elements from the root. A missing element is
// reported as nil without an error.
func (rv *recordValues) elementByPath(op string, path ...string) (*binxml.Tag, error) {
	tag, err := rv.rootTag(op)
	if err != nil {
		return nil, err
	}
	for _, name := range path {
		if tag = tag.ElementByName(name); tag == nil {
			return nil, nil
		}
	}
	return tag, nil
}

// systemChild resolves root/System/name into l.
func (rv *recordValues) systemChild(op string, l *tagLookup, name string) error {
	if l.state != unresolved {
		return nil
	}
	tag, err := rv.elementByPath(op, "System", name)
	if err != nil {
		return err
	}
	l.set(tag)
	return nil
}

// eventIdentifier returns the EventID with its qualifiers in the upper 16
// bits.
func (rv *recordValues) eventIdentifier() (uint32, error) {
	const op = "eventIdentifier"
	if err := rv.systemChild(op, &rv.eventIdentifierValue, "EventID"); err != nil {
		return 0, err
	}
	if rv.eventIdentifierValue.state == absent {
		return 0, errorf(ValueMissing, op, "missing System/EventID")
	}
	tag := rv.eventIdentifierValue.tag
	id, err := tag.Value().Uint32()
	if err != nil {
		return 0, newError(CopyFailed, op, err)
	}
	if qualifiers := tag.AttributeByName("Qualifiers"); qualifiers != nil {
		q, err := qualifiers.Value().Uint32()
		if err != nil {
			return 0, newError(CopyFailed, op, errors.Wrap(err, "qualifiers"))
		}
		id |= q << 16
	}
	return id, nil
}

// eventLevel fails when System/Level is missing, unlike the name lookups.
func (rv *recordValues) eventLevel() (uint8, error) {
	const op = "eventLevel"
	if err := rv.systemChild(op, &rv.level, "Level"); err != nil {
		return 0, err
	}
	if rv.level.state == absent {
		return 0, errorf(ValueMissing, op, "missing System/Level")
	}
	level, err := rv.level.tag.Value().Uint8()
	if err != nil {
		return 0, newError(CopyFailed, op, err)
	}
	return level, nil
}

// sourceNameValue resolves the EventSourceName attribute of the provider,
// falling back to its Name.
func (rv *recordValues) sourceNameValue(op string) (*binxml.Value, error) {
	if rv.providerName.state == unresolved {
		provider, err := rv.elementByPath(op, "System", "Provider")
		if err != nil {
			return nil, err
		}
		var attr *binxml.Tag
		if provider != nil {
			if attr = provider.AttributeByName("EventSourceName"); attr == nil {
				attr = provider.AttributeByName("Name")
			}
		}
		rv.providerName.set(attr)
	}
	if rv.providerName.state == absent {
		return nil, nil
	}
	return rv.providerName.tag.Value(), nil
}

func (rv *recordValues) computerNameValue(op string) (*binxml.Value, error) {
	if err := rv.systemChild(op, &rv.computer, "Computer"); err != nil {
		return nil, err
	}
	if rv.computer.state == absent {
		return nil, nil
	}
	return rv.computer.tag.Value(), nil
}

// eventDataTag selects EventData, or the only child of UserData. It returns
// nil when the record has neither.
func (rv *recordValues) eventDataTag(op string) (*binxml.Tag, eventDataType, error) {
	if rv.eventData.state == unresolved {
		root, err := rv.rootTag(op)
		if err != nil {
			return nil, eventDataNone, err
		}
		if tag := root.ElementByName("EventData"); tag != nil {
			rv.eventData.set(tag)
			rv.eventDataType = eventDataEvent
		} else if userData := root.ElementByName("UserData"); userData != nil {
			if n := userData.NumberOfElements(); n != 1 {
				return nil, eventDataNone, errorf(UnsupportedFormat, op, "UserData with %d elements", n)
			}
			child, err := userData.ElementByIndex(0)
			if err != nil {
				return nil, eventDataNone, newError(GetFailed, op, err)
			}
			rv.eventData.set(child)
			rv.eventDataType = eventDataUser
		} else {
			rv.eventData.set(nil)
			rv.eventDataType = eventDataNone
		}
	}
	return rv.eventData.tag, rv.eventDataType, nil
}

// numberOfStrings counts the Data elements of EventData, which have to come
// first, or every element of the UserData child.
func (rv *recordValues) numberOfStrings() (int, error) {
	const op = "numberOfStrings"
	tag, dataType, err := rv.eventDataTag(op)
	if err != nil || tag == nil {
		return 0, err
	}
	if dataType == eventDataUser {
		return tag.NumberOfElements(), nil
	}
	count := 0
	for index, element := range tag.Elements() {
		if element.Name() != "Data" {
			continue
		}
		if index != count {
			return 0, errorf(UnsupportedFormat, op, "Data element at index %d after %d strings", index, count)
		}
		count++
	}
	return count, nil
}

func (rv *recordValues) stringValue(op string, index int) (*binxml.Value, error) {
	tag, _, err := rv.eventDataTag(op)
	if err != nil {
		return nil, err
	}
	if tag == nil {
		return nil, errorf(GetFailed, op, "missing event data for string %d", index)
	}
	element, err := tag.ElementByIndex(index)
	if err != nil {
		return nil, newError(GetFailed, op, errors.Wrapf(err, "string %d", index))
	}
	return element.Value(), nil
}

func (rv *recordValues) binaryDataValue(op string) (*binxml.Value, error) {
	if rv.binaryData.state == unresolved {
		tag, err := rv.elementByPath(op, "EventData", "BinaryData")
		if err != nil {
			return nil, err
		}
		rv.binaryData.set(tag)
	}
	if rv.binaryData.state == absent {
		return nil, nil
	}
	return rv.binaryData.tag.Value(), nil
}

// binaryDataBytes returns the data of EventData/BinaryData as stored: the
// raw bytes of a binary value, UTF-16LE for text.
func (rv *recordValues) binaryDataBytes(op string) ([]byte, bool, error) {
	value, err := rv.binaryDataValue(op)
	if err != nil || value == nil {
		return nil, false, err
	}
	data, err := value.Data()
	if err != nil {
		return nil, false, newError(GetFailed, op, err)
	}
	return data, true, nil
}
