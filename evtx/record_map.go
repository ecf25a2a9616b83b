package evtx

import (
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/Velocidex/ordereddict"
	"github.com/rawsec/evtxrecord/binxml"
)

// ToDict projects the record header and its well known fields into an
// ordered dictionary. Fields the record does not have are left out. The
// rendered XML is added when withXML is set.
func (r *Record) ToDict(withXML bool) (*ordereddict.Dict, error) {
	result := ordereddict.NewDict().
		Set("RecordID", r.Identifier()).
		Set("Offset", r.Offset()).
		Set("WrittenTime", UTCTime(r.WrittenTimeAsTime()))

	eventID, err := r.EventIdentifier()
	if err != nil {
		return nil, err
	}
	result.Set("EventID", eventID&0xffff)
	if qualifiers := eventID >> 16; qualifiers != 0 {
		result.Set("Qualifiers", qualifiers)
	}

	if level, err := r.EventLevel(); err == nil {
		result.Set("Level", level)
	} else if !IsKind(err, ValueMissing) {
		return nil, err
	}

	setString := func(key string, get func() (string, bool, error)) error {
		s, ok, err := get()
		if err == nil && ok {
			result.Set(key, s)
		}
		return err
	}
	if err := setString("Provider", r.SourceName); err != nil {
		return nil, err
	}
	if err := setString("ProviderGUID", r.ProviderGUID); err != nil {
		return nil, err
	}
	if err := setString("Channel", r.Channel); err != nil {
		return nil, err
	}
	if err := setString("Computer", r.ComputerName); err != nil {
		return nil, err
	}

	if created, ok, err := r.TimeCreated(); err != nil {
		return nil, err
	} else if ok {
		result.Set("TimeCreated", UTCTime(created))
	}

	eventData, err := r.eventDataDict()
	if err != nil {
		return nil, err
	}
	if eventData != nil {
		result.Set("EventData", eventData)
	}

	if data, ok, err := r.binaryDataField(); err != nil {
		return nil, err
	} else if ok {
		result.Set("BinaryData", data)
	}

	if withXML {
		xml, err := r.XMLString()
		if err != nil {
			return nil, err
		}
		result.Set("XML", xml)
	}
	return result, nil
}

// binaryDataField returns binary values as bytes. Text is decoded as
// hexadecimal when it is, and kept as text otherwise.
func (r *Record) binaryDataField() (interface{}, bool, error) {
	if err := r.document(); err != nil {
		return nil, false, err
	}
	value, err := r.values.binaryDataValue("binaryDataField")
	if err != nil || value == nil {
		return nil, false, err
	}
	switch value.Type() {
	case binxml.StringType, binxml.AnsiStringType:
		text, err := value.UTF8String()
		if err != nil {
			return nil, false, newError(GetFailed, "binaryDataField", err)
		}
		if data, err := hex.DecodeString(strings.TrimSpace(text)); err == nil {
			return data, true, nil
		}
		return text, true, nil
	}
	data, err := value.Data()
	if err != nil {
		return nil, false, newError(GetFailed, "binaryDataField", err)
	}
	return data, true, nil
}

// eventDataDict maps the strings of the event data by their Name attribute,
// or by element name for user data, falling back to the index.
func (r *Record) eventDataDict() (*ordereddict.Dict, error) {
	count, err := r.NumberOfStrings()
	if err != nil || count == 0 {
		return nil, err
	}
	tag, _, err := r.values.eventDataTag("eventDataDict")
	if err != nil {
		return nil, err
	}

	result := ordereddict.NewDict()
	for i := 0; i < count; i++ {
		element, err := tag.ElementByIndex(i)
		if err != nil {
			return nil, newError(GetFailed, "eventDataDict", err)
		}
		s, err := r.StringAt(i)
		if err != nil {
			return nil, err
		}
		result.Set(dataKey(element, i), s)
	}
	return result, nil
}

func dataKey(element *binxml.Tag, index int) string {
	if name := element.AttributeByName("Name"); name != nil {
		if s, err := name.Value().UTF8String(); err == nil && s != "" {
			return s
		}
	}
	if element.Name() != "Data" {
		return element.Name()
	}
	return "Data" + strconv.Itoa(index)
}
