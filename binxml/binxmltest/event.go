package binxmltest

const EventNamespace = "http://schemas.microsoft.com/win/2004/08/events/event"

// Event is rendered through the usual Windows event template: a System
// element followed by EventData or UserData. Nil pointers become NULL
// values, which drop optional elements and attributes.
type Event struct {
	Provider     string
	ProviderGUID *[16]byte
	SourceName   string
	EventID      uint16
	Qualifiers   *uint16
	Level        *uint8
	Created      uint64
	RecordID     uint64
	Channel      string
	Computer     string

	// DataNames name the Data elements of EventData, Data holds their values.
	DataNames []string
	Data      []Value
	// UserData writes the child of UserData as a nested fragment.
	UserData func(b *Builder)
	// Unnamed writes a <Data> element without a Name attribute after the
	// named ones.
	Unnamed []Value
}

func optionalString(s string) Value {
	if s == "" {
		return Null()
	}
	return String(s)
}

func (e Event) values() []Value {
	values := []Value{String(e.Provider), Null(), optionalString(e.SourceName), Null(), Uint16(e.EventID), Null(),
		FileTime(e.Created), Uint64(e.RecordID), optionalString(e.Channel), optionalString(e.Computer)}
	if e.ProviderGUID != nil {
		values[1] = Guid(*e.ProviderGUID)
	}
	if e.Qualifiers != nil {
		values[3] = Uint16(*e.Qualifiers)
	}
	if e.Level != nil {
		values[5] = Uint8(*e.Level)
	}
	values = append(values, e.Data...)
	values = append(values, e.Unnamed...)
	if e.UserData != nil {
		values = append(values, Nested(func(b *Builder) {
			b.FragmentHeader()
			e.UserData(b)
			b.EOF()
		}))
	}
	return values
}

// Write writes the event as a fragment holding one template instance and
// returns the template definition offset.
func (e Event) Write(b *Builder) uint32 {
	b.FragmentHeader()
	offset := b.TemplateInstance(1, e.body, e.values()...)
	b.EOF()
	return offset
}

// Reference writes the event as an instance of the template definition
// written before at offset.
func (e Event) Reference(b *Builder, offset uint32) {
	b.FragmentHeader()
	b.TemplateReference(1, offset, e.values()...)
	b.EOF()
}

func (e Event) body(b *Builder) {
	b.OpenElement("Event", true).Attribute("xmlns", false).Text(EventNamespace).CloseStart()
	b.OpenElement("System", false).CloseStart()

	b.OpenElement("Provider", true)
	b.Attribute("Name", true).Substitution(0, StringType)
	b.Attribute("Guid", true).OptionalSubstitution(1, GuidType)
	b.Attribute("EventSourceName", false).OptionalSubstitution(2, StringType)
	b.CloseEmpty()

	b.OpenElement("EventID", true).Attribute("Qualifiers", false).OptionalSubstitution(3, UInt16Type).CloseStart()
	b.Substitution(4, UInt16Type).EndElement()

	b.SubstitutionElement("Level", 5, UInt8Type, true)

	b.OpenElement("TimeCreated", true).Attribute("SystemTime", false).Substitution(6, FileTimeType).CloseEmpty()
	b.SubstitutionElement("EventRecordID", 7, UInt64Type, false)
	b.SubstitutionElement("Channel", 8, StringType, true)
	b.SubstitutionElement("Computer", 9, StringType, true)
	b.EndElement()

	id := uint16(10)
	switch {
	case e.UserData != nil:
		b.OpenElement("UserData", false).CloseStart()
		b.Substitution(id+uint16(len(e.Data)+len(e.Unnamed)), BinXmlType)
		b.EndElement()
	case len(e.Data) > 0 || len(e.Unnamed) > 0:
		b.OpenElement("EventData", false).CloseStart()
		for i := range e.Data {
			b.OpenElement("Data", true).Attribute("Name", false).Text(e.dataName(i)).CloseStart()
			b.OptionalSubstitution(id, e.Data[i].Type).EndElement()
			id++
		}
		for i := range e.Unnamed {
			b.SubstitutionElement("Data", id, e.Unnamed[i].Type, true)
			id++
		}
		b.EndElement()
	}
	b.EndElement()
}

func (e Event) dataName(i int) string {
	if i < len(e.DataNames) {
		return e.DataNames[i]
	}
	return "Param"
}
