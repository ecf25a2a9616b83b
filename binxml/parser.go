package binxml

import (
	"github.com/pkg/errors"
	"github.com/rawsec/evtxrecord/codepage"
)

// parser turns a binary XML stream into token elements. Template definitions
// are cached by chunk offset so every instance of a template shares one
// parsed body.
type parser struct {
	r         *chunkReader
	codepage  codepage.Codepage
	flags     Flags
	templates map[int64]*TemplateDefinition
	depth     int
	// tags built so far, bounded by MaxTags
	tags int
}

func newParser(data []byte, cp codepage.Codepage, flags Flags) *parser {
	return &parser{
		r:         newChunkReader(data),
		codepage:  cp,
		flags:     flags,
		templates: make(map[int64]*TemplateDefinition),
	}
}

func (p *parser) hasDataOffsets() bool {
	return p.flags&FlagHasDataOffsets != 0
}

// parseElements reads tokens until EOF or until end is reached.
func (p *parser) parseElements(end int64) ([]Element, error) {
	var elements []Element
	for p.r.offset() < end {
		offset := p.r.offset()
		token, err := p.r.readUint8()
		if err != nil {
			return elements, err
		}

		var e Element
		switch token {
		case TokenEOF:
			return elements, nil
		case FragmentHeaderToken:
			e, err = p.parseFragmentHeader()
		case TokenOpenStartElementTag1, TokenOpenStartElementTag2:
			e, err = p.parseElementStart(token, offset)
		case TokenCloseStartElementTag:
			e = &CloseStartElementTag{}
		case TokenCloseEmptyElementTag:
			e = &CloseEmptyElementTag{}
		case TokenEndElementTag:
			e = &EndElementTag{}
		case TokenTemplateInstance:
			e, err = p.parseTemplateInstance()
		case TokenAttribute1, TokenAttribute2:
			return elements, unexpected(token, offset, "outside of an element start")
		default:
			if !isContentToken(token) {
				return elements, ErrUnknownTokenAt{Token: token, Offset: offset}
			}
			e, err = p.parseContent(token)
		}
		if err != nil {
			return elements, err
		}
		if e != nil {
			elements = append(elements, e)
		}
	}
	return elements, nil
}

func isContentToken(token uint8) bool {
	switch token {
	case TokenValue1, TokenValue2,
		TokenCDATASection1, TokenCDATASection2,
		TokenCharRef1, TokenCharRef2,
		TokenEntityRef1, TokenEntityRef2,
		TokenPITarget, TokenPIData,
		TokenNormalSubstitution, TokenOptionalSubstitution:
		return true
	}
	return false
}

// parseFragmentHeader reads the three bytes following the token. Fragment
// headers carry no content so no element is returned.
func (p *parser) parseFragmentHeader() (Element, error) {
	fh := FragmentHeader{Token: FragmentHeaderToken}
	var err error
	if fh.MajVersion, err = p.r.readUint8(); err != nil {
		return nil, err
	}
	if fh.MinVersion, err = p.r.readUint8(); err != nil {
		return nil, err
	}
	if fh.Flags, err = p.r.readUint8(); err != nil {
		return nil, err
	}
	if fh.MajVersion != 1 {
		return nil, errors.Wrapf(ErrBadFragmentHeader, "version %d.%d", fh.MajVersion, fh.MinVersion)
	}
	return nil, nil
}

func (p *parser) parseContent(token uint8) (Element, error) {
	switch token {
	case TokenValue1, TokenValue2:
		valueType, err := p.r.readUint8()
		if err != nil {
			return nil, err
		}
		if ValueType(valueType) != StringType {
			return nil, errors.Wrapf(ErrValueType, "value text of type 0x%02x", valueType)
		}
		s, err := p.r.readPrefixedUTF16()
		return &ValueText{Value: s}, err
	case TokenCDATASection1, TokenCDATASection2:
		s, err := p.r.readPrefixedUTF16()
		return &CDATASection{Text: s}, err
	case TokenCharRef1, TokenCharRef2:
		v, err := p.r.readUint16()
		return &CharEntityRef{Value: v}, err
	case TokenEntityRef1, TokenEntityRef2:
		name, err := p.readName()
		return &EntityReference{Name: name}, err
	case TokenPITarget:
		name, err := p.readName()
		return &PITarget{Name: name}, err
	case TokenPIData:
		s, err := p.r.readPrefixedUTF16()
		return &PIData{Text: s}, err
	case TokenNormalSubstitution, TokenOptionalSubstitution:
		s := &Substitution{Optional: token == TokenOptionalSubstitution}
		var err error
		if s.ID, err = p.r.readUint16(); err != nil {
			return nil, err
		}
		valueType, err := p.r.readUint8()
		s.ValueType = ValueType(valueType)
		return s, err
	}
	return nil, ErrUnknownTokenAt{Token: token, Offset: p.r.offset() - 1}
}

func (p *parser) parseElementStart(token uint8, offset int64) (*ElementStart, error) {
	es := &ElementStart{Offset: offset, Token: token}
	var err error
	if es.DependencyID, err = p.r.readUint16(); err != nil {
		return nil, err
	}
	if es.Size, err = p.r.readUint32(); err != nil {
		return nil, err
	}
	if es.Name, err = p.readName(); err != nil {
		return nil, err
	}
	if !es.HasAttributes() {
		return es, nil
	}

	// attribute list size
	if _, err = p.r.readUint32(); err != nil {
		return nil, err
	}
	for {
		attrOffset := p.r.offset()
		token, err := p.r.readUint8()
		if err != nil {
			return nil, err
		}
		if token != TokenAttribute1 && token != TokenAttribute2 {
			return nil, unexpected(token, attrOffset, "in attribute list")
		}
		attr := &Attribute{Token: token}
		if attr.Name, err = p.readName(); err != nil {
			return nil, err
		}
		for {
			next, err := p.r.peekToken()
			if err != nil {
				return nil, err
			}
			if !isContentToken(next) {
				break
			}
			p.r.skip(1)
			content, err := p.parseContent(next)
			if err != nil {
				return nil, err
			}
			attr.Content = append(attr.Content, content)
		}
		es.Attributes = append(es.Attributes, attr)
		if attr.IsLast() {
			return es, nil
		}
	}
}

// readName reads a name reference. In a chunk names are interned: the
// reference is an offset and the name is inline only when it points right
// after itself.
func (p *parser) readName() (string, error) {
	if !p.hasDataOffsets() {
		return p.readNameStructure()
	}
	nameOffset, err := p.r.readUint32()
	if err != nil {
		return "", err
	}
	cursor := p.r.offset()
	if int64(nameOffset) == cursor {
		return p.readNameStructure()
	}
	if err := p.r.seek(int64(nameOffset)); err != nil {
		return "", err
	}
	name, err := p.readNameStructure()
	if err != nil {
		return "", err
	}
	return name, p.r.seek(cursor)
}

func (p *parser) readNameStructure() (string, error) {
	if p.hasDataOffsets() {
		// next name offset
		if err := p.r.skip(4); err != nil {
			return "", err
		}
	}
	// hash
	if err := p.r.skip(2); err != nil {
		return "", err
	}
	count, err := p.r.readUint16()
	if err != nil {
		return "", err
	}
	buf, err := p.r.readBytes((int(count) + 1) * 2)
	if err != nil {
		return "", err
	}
	return DecodeUTF16(buf)
}

func (p *parser) parseTemplateInstance() (*TemplateInstance, error) {
	if p.depth >= MaxDepth {
		return nil, errors.Wrapf(ErrTooDeep, "template instance at 0x%x", p.r.offset()-1)
	}
	// unknown
	if err := p.r.skip(1); err != nil {
		return nil, err
	}
	ti := &TemplateInstance{}
	var err error
	if ti.TemplateID, err = p.r.readUint32(); err != nil {
		return nil, err
	}
	defOffset := int64(0)
	if p.hasDataOffsets() {
		offset, err := p.r.readUint32()
		if err != nil {
			return nil, err
		}
		defOffset = int64(offset)
	} else {
		defOffset = p.r.offset()
	}

	cursor := p.r.offset()
	if ti.Definition, err = p.templateDefinition(defOffset); err != nil {
		return nil, err
	}
	if defOffset == cursor {
		if err := p.r.seek(cursor + 24 + int64(ti.Definition.Size)); err != nil {
			return nil, err
		}
	}
	ti.Values, err = p.parseTemplateValues()
	return ti, err
}

// templateDefinition parses the definition at offset, or returns it from the
// cache. The reader position is restored.
func (p *parser) templateDefinition(offset int64) (*TemplateDefinition, error) {
	if def, ok := p.templates[offset]; ok {
		return def, nil
	}

	backup := p.r.offset()
	if err := p.r.seek(offset); err != nil {
		return nil, err
	}
	def := &TemplateDefinition{Offset: offset}
	// next template offset
	if err := p.r.skip(4); err != nil {
		return nil, err
	}
	if err := p.r.read(&def.ID); err != nil {
		return nil, err
	}
	var err error
	if def.Size, err = p.r.readUint32(); err != nil {
		return nil, err
	}
	end := p.r.offset() + int64(def.Size)
	if end > p.r.size {
		return nil, errors.Wrapf(ErrOutOfBounds, "template definition at 0x%x of %d bytes", offset, def.Size)
	}

	p.depth++
	def.Elements, err = p.parseElements(end)
	p.depth--
	if err != nil {
		return nil, errors.Wrapf(err, "template definition at 0x%x", offset)
	}
	if def.root, err = rootNode(def.Elements); err != nil {
		return nil, errors.Wrapf(err, "template definition at 0x%x", offset)
	}
	p.templates[offset] = def
	return def, p.r.seek(backup)
}

func (p *parser) parseTemplateValues() ([]*templateValue, error) {
	count, err := p.r.readUint32()
	if err != nil {
		return nil, err
	}
	if int64(count)*4 > int64(p.r.Len()) {
		return nil, errors.Wrapf(ErrOutOfBounds, "%d value descriptors at 0x%x", count, p.r.offset())
	}
	descriptors := make([]ValueDescriptor, count)
	for i := range descriptors {
		if err := p.r.read(&descriptors[i]); err != nil {
			return nil, err
		}
	}

	values := make([]*templateValue, count)
	for i, vd := range descriptors {
		valueOffset := p.r.offset()
		data, err := p.r.readBytes(int(vd.Size))
		if err != nil {
			return nil, errors.Wrapf(err, "value %d (%s)", i, vd)
		}
		v := &templateValue{valueType: vd.ValType, data: data}
		if vd.ValType == BinXmlType && vd.Size > 0 {
			if v.tags, err = p.parseNested(valueOffset, int64(vd.Size)); err != nil {
				return nil, errors.Wrapf(err, "value %d (%s)", i, vd)
			}
		}
		values[i] = v
	}
	return values, nil
}

// parseNested parses a BinXml value in place so that its offsets stay chunk
// relative, and builds its tags right away.
func (p *parser) parseNested(offset, size int64) ([]*Tag, error) {
	if p.depth >= MaxDepth {
		return nil, errors.Wrapf(ErrTooDeep, "nested BinXml at 0x%x", offset)
	}
	backup := p.r.offset()
	if err := p.r.seek(offset); err != nil {
		return nil, err
	}
	p.depth++
	elements, err := p.parseElements(offset + size)
	p.depth--
	if err != nil {
		return nil, err
	}
	tags, err := p.buildFragment(elements)
	if err != nil {
		return nil, err
	}
	return tags, p.r.seek(backup)
}
