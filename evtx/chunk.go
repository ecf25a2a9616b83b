package evtx

import (
	"fmt"
	"hash/crc32"

	"github.com/pkg/errors"
	"github.com/rawsec/evtxrecord/encoding"
	"github.com/rawsec/evtxrecord/log"
	"github.com/sirupsen/logrus"
)

var (
	ErrBadChunkMagic   = errors.New("bad chunk magic")
	ErrEmptyChunk      = errors.New("chunk never written")
	ErrHeaderChecksum  = errors.New("chunk header checksum mismatch")
	ErrRecordsChecksum = errors.New("chunk records checksum mismatch")
)

type ChunkHeader struct {
	Magic             [8]byte
	FirstRecordNumber uint64
	LastRecordNumber  uint64
	FirstRecordID     uint64
	LastRecordID      uint64
	HeaderSize        uint32
	LastRecordOffset  uint32
	FreeSpaceOffset   uint32
	RecordsChecksum   uint32
	Unknown           [64]byte
	Flags             uint32
	HeaderChecksum    uint32
}

func (ch ChunkHeader) String() string {
	return fmt.Sprintf(
		"\tMagic: %q\n"+
			"\tFirstRecordNumber: %d\n"+
			"\tLastRecordNumber: %d\n"+
			"\tFirstRecordID: %d\n"+
			"\tLastRecordID: %d\n"+
			"\tHeaderSize: %d\n"+
			"\tLastRecordOffset: 0x%x\n"+
			"\tFreeSpaceOffset: 0x%x\n"+
			"\tRecordsChecksum: 0x%08x\n"+
			"\tFlags: 0x%08x\n"+
			"\tHeaderChecksum: 0x%08x\n",
		ch.Magic,
		ch.FirstRecordNumber,
		ch.LastRecordNumber,
		ch.FirstRecordID,
		ch.LastRecordID,
		ch.HeaderSize,
		ch.LastRecordOffset,
		ch.FreeSpaceOffset,
		ch.RecordsChecksum,
		ch.Flags,
		ch.HeaderChecksum)
}

// Chunk is a 64 KiB block of records sharing names and templates.
type Chunk struct {
	Offset        int64
	Header        ChunkHeader
	RecordOffsets []uint64
	Data          []byte
	options       Options
}

// ParseChunk validates the chunk header and finds the records of data.
// Enumeration stops at the first corrupt record header.
func ParseChunk(data []byte, offset int64, options Options) (*Chunk, error) {
	c := &Chunk{Offset: offset, Data: data, options: options}
	if err := encoding.UnmarshalAt(data, 0, &c.Header, Endianness); err != nil {
		return nil, errors.Wrapf(err, "chunk at 0x%x", offset)
	}
	if string(c.Header.Magic[:]) != ChunkMagic {
		if c.Header.Magic == [8]byte{} {
			return nil, errors.Wrapf(ErrEmptyChunk, "chunk at 0x%x", offset)
		}
		return nil, errors.Wrapf(ErrBadChunkMagic, "chunk at 0x%x: %q", offset, c.Header.Magic)
	}
	if options.VerifyChecksums {
		if err := c.Verify(); err != nil {
			return nil, errors.Wrapf(err, "chunk at 0x%x", offset)
		}
	}
	c.enumerateRecords()
	return c, nil
}

func (c *Chunk) freeSpaceOffset() int {
	free := int(c.Header.FreeSpaceOffset)
	if free > len(c.Data) {
		return len(c.Data)
	}
	return free
}

// Verify checks the CRC32 of the header and of the records.
func (c *Chunk) Verify() error {
	if len(c.Data) < ChunkDataOffset {
		return errors.Wrapf(ErrHeaderChecksum, "chunk of %d bytes", len(c.Data))
	}
	h := crc32.NewIEEE()
	h.Write(c.Data[:120])
	h.Write(c.Data[ChunkHeaderSize:ChunkDataOffset])
	if sum := h.Sum32(); sum != c.Header.HeaderChecksum {
		return errors.Wrapf(ErrHeaderChecksum, "0x%08x instead of 0x%08x", sum, c.Header.HeaderChecksum)
	}

	if int(c.Header.FreeSpaceOffset) > len(c.Data) || c.Header.FreeSpaceOffset < ChunkDataOffset {
		return errors.Wrapf(ErrRecordsChecksum, "free space offset 0x%x", c.Header.FreeSpaceOffset)
	}
	if sum := crc32.ChecksumIEEE(c.Data[ChunkDataOffset:c.Header.FreeSpaceOffset]); sum != c.Header.RecordsChecksum {
		return errors.Wrapf(ErrRecordsChecksum, "0x%08x instead of 0x%08x", sum, c.Header.RecordsChecksum)
	}
	return nil
}

func (c *Chunk) enumerateRecords() {
	c.RecordOffsets = make([]uint64, 0)
	free := c.freeSpaceOffset()
	for offset := uint64(ChunkDataOffset); offset+RecordHeaderSize+4 <= uint64(free); {
		rv := newRecordValues()
		if err := rv.readHeader(c.Data, offset, c.options.VerifySizeCopy); err != nil {
			log.WithFields(logrus.Fields{"chunk": c.Offset, "record": offset}).Debugf("stop enumerating: %s", err)
			return
		}
		c.RecordOffsets = append(c.RecordOffsets, offset)
		offset += uint64(rv.dataSize)
	}
}

// Records returns a record for each header found in the chunk.
func (c *Chunk) Records() []*Record {
	records := make([]*Record, 0, len(c.RecordOffsets))
	for _, offset := range c.RecordOffsets {
		r, err := NewRecord(c.Data, offset, c.options)
		if err != nil {
			log.WithFields(logrus.Fields{"chunk": c.Offset, "record": offset}).Debugf("skip record: %s", err)
			continue
		}
		records = append(records, r)
	}
	return records
}

func (c Chunk) String() string {
	return fmt.Sprintf(
		"Header: %v\n"+
			"RecordOffsets: %v\n", c.Header, c.RecordOffsets)
}
