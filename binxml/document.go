package binxml

import (
	"github.com/pkg/errors"
	"github.com/rawsec/evtxrecord/codepage"
)

// Document is a materialized binary XML document. It is read once.
type Document struct {
	root *Tag
}

func NewDocument() *Document {
	return &Document{}
}

// Read parses the binary XML at offset in data. data is the whole chunk when
// flags has FlagHasDataOffsets since names and templates are referenced by
// chunk offset. On failure the document stays unread.
func (d *Document) Read(data []byte, offset int, cp codepage.Codepage, flags Flags) error {
	if d.root != nil {
		return ErrAlreadyRead
	}
	p := newParser(data, cp, flags)
	if err := p.r.seek(int64(offset)); err != nil {
		return err
	}
	elements, err := p.parseElements(p.r.size)
	if err != nil {
		return errors.Wrapf(err, "document at 0x%x", offset)
	}
	tags, err := p.buildFragment(elements)
	if err != nil {
		return errors.Wrapf(err, "document at 0x%x", offset)
	}
	if len(tags) == 0 {
		return errors.Wrapf(ErrNoRoot, "document at 0x%x", offset)
	}
	d.root = tags[0]
	return nil
}

// RootTag returns the root element, nil before a successful Read.
func (d *Document) RootTag() *Tag {
	return d.root
}

func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	return &Document{root: d.root.Clone()}
}
