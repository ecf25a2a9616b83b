package evtx

import (
	"time"

	"github.com/rawsec/evtxrecord/binxml"
)

// Record is an event record of a chunk. Its XML document is read on first
// use and the lookups made into it are cached. A Record is not safe for
// concurrent use.
type Record struct {
	values  *recordValues
	chunk   []byte
	options Options
	closed  bool
}

// NewRecord parses the record header at offset in chunk. chunk is kept and
// used again when the XML document is read.
func NewRecord(chunk []byte, offset uint64, options Options) (*Record, error) {
	rv := newRecordValues()
	if err := rv.readHeader(chunk, offset, options.VerifySizeCopy); err != nil {
		return nil, err
	}
	return &Record{values: rv, chunk: chunk, options: options}, nil
}

func (r *Record) Offset() uint64 {
	return r.values.chunkDataOffset
}

// Size is the record size including the trailing size copy.
func (r *Record) Size() uint32 {
	return r.values.dataSize
}

func (r *Record) Identifier() uint64 {
	return r.values.identifier
}

// WrittenTime is the raw FILETIME of the record header.
func (r *Record) WrittenTime() uint64 {
	return r.values.writtenTime
}

func (r *Record) WrittenTimeAsTime() time.Time {
	return binxml.FileTime(r.values.writtenTime).Time()
}

// ReadXMLDocument decodes the payload. It fails with AlreadySet when the
// document was read before.
func (r *Record) ReadXMLDocument() error {
	if r.closed {
		return errorf(InvalidArgument, "readXMLDocument", "record closed")
	}
	return r.values.readXMLDocument(r.chunk, r.options.Codepage)
}

func (r *Record) document() error {
	if r.values.xmlDocument != nil {
		return nil
	}
	return r.ReadXMLDocument()
}

// RootTag returns the root element of the XML document.
func (r *Record) RootTag() (*binxml.Tag, error) {
	if err := r.document(); err != nil {
		return nil, err
	}
	return r.values.rootTag("rootTag")
}

// EventIdentifier returns the EventID, with its qualifiers in the upper 16
// bits when present.
func (r *Record) EventIdentifier() (uint32, error) {
	if err := r.document(); err != nil {
		return 0, err
	}
	return r.values.eventIdentifier()
}

func (r *Record) EventLevel() (uint8, error) {
	if err := r.document(); err != nil {
		return 0, err
	}
	return r.values.eventLevel()
}

func (r *Record) sourceName(op string) (*binxml.Value, error) {
	if err := r.document(); err != nil {
		return nil, err
	}
	return r.values.sourceNameValue(op)
}

// SourceName returns the EventSourceName of the provider, or its Name.
func (r *Record) SourceName() (string, bool, error) {
	return valueString(r.sourceName("sourceName"))
}

func (r *Record) UTF8SourceNameSize() (int, bool, error) {
	return utf8Size("utf8SourceNameSize")(r.sourceName("utf8SourceNameSize"))
}

func (r *Record) CopyUTF8SourceName(buf []byte) (int, bool, error) {
	return copyUTF8("copyUTF8SourceName", buf)(r.sourceName("copyUTF8SourceName"))
}

func (r *Record) UTF16SourceNameSize() (int, bool, error) {
	return utf16Size("utf16SourceNameSize")(r.sourceName("utf16SourceNameSize"))
}

func (r *Record) CopyUTF16SourceName(buf []uint16) (int, bool, error) {
	return copyUTF16("copyUTF16SourceName", buf)(r.sourceName("copyUTF16SourceName"))
}

func (r *Record) computerName(op string) (*binxml.Value, error) {
	if err := r.document(); err != nil {
		return nil, err
	}
	return r.values.computerNameValue(op)
}

func (r *Record) ComputerName() (string, bool, error) {
	return valueString(r.computerName("computerName"))
}

func (r *Record) UTF8ComputerNameSize() (int, bool, error) {
	return utf8Size("utf8ComputerNameSize")(r.computerName("utf8ComputerNameSize"))
}

func (r *Record) CopyUTF8ComputerName(buf []byte) (int, bool, error) {
	return copyUTF8("copyUTF8ComputerName", buf)(r.computerName("copyUTF8ComputerName"))
}

func (r *Record) UTF16ComputerNameSize() (int, bool, error) {
	return utf16Size("utf16ComputerNameSize")(r.computerName("utf16ComputerNameSize"))
}

func (r *Record) CopyUTF16ComputerName(buf []uint16) (int, bool, error) {
	return copyUTF16("copyUTF16ComputerName", buf)(r.computerName("copyUTF16ComputerName"))
}

// NumberOfStrings returns the number of strings of the event data, 0 when
// the record has none.
func (r *Record) NumberOfStrings() (int, error) {
	if err := r.document(); err != nil {
		return 0, err
	}
	return r.values.numberOfStrings()
}

func (r *Record) stringValue(op string, index int) (*binxml.Value, error) {
	if err := r.document(); err != nil {
		return nil, err
	}
	return r.values.stringValue(op, index)
}

// StringAt returns the event data string at index.
func (r *Record) StringAt(index int) (string, error) {
	s, _, err := valueString(r.stringValue("string", index))
	return s, err
}

func (r *Record) UTF8StringSize(index int) (int, error) {
	size, _, err := utf8Size("utf8StringSize")(r.stringValue("utf8StringSize", index))
	return size, err
}

func (r *Record) CopyUTF8String(index int, buf []byte) (int, error) {
	n, _, err := copyUTF8("copyUTF8String", buf)(r.stringValue("copyUTF8String", index))
	return n, err
}

func (r *Record) UTF16StringSize(index int) (int, error) {
	size, _, err := utf16Size("utf16StringSize")(r.stringValue("utf16StringSize", index))
	return size, err
}

func (r *Record) CopyUTF16String(index int, buf []uint16) (int, error) {
	n, _, err := copyUTF16("copyUTF16String", buf)(r.stringValue("copyUTF16String", index))
	return n, err
}

// Strings returns every event data string in order.
func (r *Record) Strings() ([]string, error) {
	count, err := r.NumberOfStrings()
	if err != nil {
		return nil, err
	}
	strings := make([]string, 0, count)
	for i := 0; i < count; i++ {
		s, err := r.StringAt(i)
		if err != nil {
			return nil, err
		}
		strings = append(strings, s)
	}
	return strings, nil
}

// Data returns the content of EventData/BinaryData.
func (r *Record) Data() ([]byte, bool, error) {
	if err := r.document(); err != nil {
		return nil, false, err
	}
	return r.values.binaryDataBytes("data")
}

func (r *Record) DataSize() (int, bool, error) {
	data, ok, err := r.Data()
	return len(data), ok, err
}

func (r *Record) CopyData(buf []byte) (int, bool, error) {
	data, ok, err := r.Data()
	if err != nil || !ok {
		return 0, ok, err
	}
	if len(buf) < len(data) {
		return 0, false, errorf(CopyFailed, "copyData", "buffer of %d bytes for %d bytes of data", len(buf), len(data))
	}
	return copy(buf, data), true, nil
}

func (r *Record) root(op string) (*binxml.Tag, error) {
	if err := r.document(); err != nil {
		return nil, err
	}
	return r.values.rootTag(op)
}

// XMLString renders the whole document.
func (r *Record) XMLString() (string, error) {
	root, err := r.root("xmlString")
	if err != nil {
		return "", err
	}
	s, err := root.UTF8XMLString()
	if err != nil {
		return "", newError(GetFailed, "xmlString", err)
	}
	return s, nil
}

// UTF8XMLStringSize includes the terminating NUL.
func (r *Record) UTF8XMLStringSize() (int, error) {
	root, err := r.root("utf8XMLStringSize")
	if err != nil {
		return 0, err
	}
	size, err := root.UTF8XMLStringSize()
	if err != nil {
		return 0, newError(GetFailed, "utf8XMLStringSize", err)
	}
	return size, nil
}

// CopyUTF8XMLString fills buf and returns the number of bytes written,
// terminator included. A buffer of UTF8XMLStringSize bytes is enough.
func (r *Record) CopyUTF8XMLString(buf []byte) (int, error) {
	root, err := r.root("copyUTF8XMLString")
	if err != nil {
		return 0, err
	}
	n, err := root.CopyUTF8XMLString(buf)
	if err != nil {
		return 0, newError(CopyFailed, "copyUTF8XMLString", err)
	}
	return n, nil
}

func (r *Record) UTF16XMLStringSize() (int, error) {
	root, err := r.root("utf16XMLStringSize")
	if err != nil {
		return 0, err
	}
	size, err := root.UTF16XMLStringSize()
	if err != nil {
		return 0, newError(GetFailed, "utf16XMLStringSize", err)
	}
	return size, nil
}

func (r *Record) CopyUTF16XMLString(buf []uint16) (int, error) {
	root, err := r.root("copyUTF16XMLString")
	if err != nil {
		return 0, err
	}
	n, err := root.CopyUTF16XMLString(buf)
	if err != nil {
		return 0, newError(CopyFailed, "copyUTF16XMLString", err)
	}
	return n, nil
}

func (r *Record) systemValue(op string, path ...string) (*binxml.Tag, error) {
	if err := r.document(); err != nil {
		return nil, err
	}
	return r.values.elementByPath(op, append([]string{"System"}, path...)...)
}

// ProviderGUID returns the Guid attribute of System/Provider.
func (r *Record) ProviderGUID() (string, bool, error) {
	provider, err := r.systemValue("providerGUID", "Provider")
	if err != nil || provider == nil {
		return "", false, err
	}
	if guid := provider.AttributeByName("Guid"); guid != nil {
		return valueString(guid.Value(), nil)
	}
	return "", false, nil
}

func (r *Record) Channel() (string, bool, error) {
	channel, err := r.systemValue("channel", "Channel")
	if err != nil || channel == nil {
		return "", false, err
	}
	return valueString(channel.Value(), nil)
}

// TimeCreated returns the SystemTime attribute of System/TimeCreated.
func (r *Record) TimeCreated() (time.Time, bool, error) {
	const op = "timeCreated"
	created, err := r.systemValue(op, "TimeCreated")
	if err != nil || created == nil {
		return time.Time{}, false, err
	}
	attr := created.AttributeByName("SystemTime")
	if attr == nil {
		return time.Time{}, false, nil
	}
	value := attr.Value()
	if value.Type() == binxml.FileTimeType {
		ft, err := value.Uint64()
		if err != nil {
			return time.Time{}, false, newError(CopyFailed, op, err)
		}
		return binxml.FileTime(ft).Time(), true, nil
	}
	text, err := value.UTF8String()
	if err != nil {
		return time.Time{}, false, newError(CopyFailed, op, err)
	}
	t, err := time.Parse(time.RFC3339Nano, text)
	if err != nil {
		return time.Time{}, false, newError(CopyFailed, op, err)
	}
	return t.UTC(), true, nil
}

// EventRecordIdentifier returns System/EventRecordID.
func (r *Record) EventRecordIdentifier() (uint64, bool, error) {
	const op = "eventRecordIdentifier"
	tag, err := r.systemValue(op, "EventRecordID")
	if err != nil || tag == nil {
		return 0, false, err
	}
	id, err := tag.Value().Uint64()
	if err != nil {
		return 0, false, newError(CopyFailed, op, err)
	}
	return id, true, nil
}

// Clone returns an independent copy of the record and of its document.
func (r *Record) Clone() (*Record, error) {
	if r.closed {
		return nil, errorf(InvalidArgument, "clone", "record closed")
	}
	return &Record{values: r.values.clone(), chunk: r.chunk, options: r.options}, nil
}

// Close releases the document and the chunk data. The header stays
// readable. Closing twice is a no-op.
func (r *Record) Close() error {
	if r == nil || r.closed {
		return nil
	}
	r.values.close()
	r.chunk = nil
	r.closed = true
	return nil
}

func valueString(value *binxml.Value, err error) (string, bool, error) {
	if err != nil || value == nil {
		return "", false, err
	}
	s, err := value.UTF8String()
	if err != nil {
		return "", false, newError(GetFailed, "string", err)
	}
	return s, true, nil
}

type valueProjection func(*binxml.Value, error) (int, bool, error)

func utf8Size(op string) valueProjection {
	return func(value *binxml.Value, err error) (int, bool, error) {
		if err != nil || value == nil {
			return 0, false, err
		}
		size, err := value.UTF8StringSize()
		if err != nil {
			return 0, false, newError(GetFailed, op, err)
		}
		return size, true, nil
	}
}

func utf16Size(op string) valueProjection {
	return func(value *binxml.Value, err error) (int, bool, error) {
		if err != nil || value == nil {
			return 0, false, err
		}
		size, err := value.UTF16StringSize()
		if err != nil {
			return 0, false, newError(GetFailed, op, err)
		}
		return size, true, nil
	}
}

func copyUTF8(op string, buf []byte) valueProjection {
	return func(value *binxml.Value, err error) (int, bool, error) {
		if err != nil || value == nil {
			return 0, false, err
		}
		n, err := value.CopyUTF8String(buf)
		if err != nil {
			return 0, false, newError(CopyFailed, op, err)
		}
		return n, true, nil
	}
}

func copyUTF16(op string, buf []uint16) valueProjection {
	return func(value *binxml.Value, err error) (int, bool, error) {
		if err != nil || value == nil {
			return 0, false, err
		}
		n, err := value.CopyUTF16String(buf)
		if err != nil {
			return 0, false, newError(CopyFailed, op, err)
		}
		return n, true, nil
	}
}
