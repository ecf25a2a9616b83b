package binxmltest

import (
	"hash/crc32"

	"github.com/rawsec/evtxrecord/encoding"
)

const (
	ChunkSize       = 0x10000
	ChunkDataOffset = 0x200
)

// Chunk writes event records after an EVTX chunk header.
type Chunk struct {
	*Builder
	first, last uint64
	lastOffset  int
	records     int
}

func NewChunk() *Chunk {
	return &Chunk{Builder: New(ChunkDataOffset)}
}

// Record writes a record with the payload written by payload and returns
// its offset in the chunk.
func (c *Chunk) Record(id, written uint64, payload func(b *Builder)) int {
	start := c.Len()
	c.Raw([]byte{0x2a, 0x2a, 0x00, 0x00}).U32(0).U64(id).U64(written)
	payload(c.Builder)
	size := uint32(c.Len() - start + 4)
	c.U32(size)
	c.Patch32(start+4, size)

	if c.records == 0 {
		c.first = id
	}
	c.last = id
	c.lastOffset = start
	c.records++
	return start
}

// Finish fills in the chunk header and both checksums and pads the chunk to
// its full size.
func (c *Chunk) Finish() []byte {
	free := c.Len()
	data := make([]byte, ChunkSize)
	copy(data, c.Bytes())
	copy(data, "ElfChnk\x00")
	le.PutUint64(data[8:], c.first)
	le.PutUint64(data[16:], c.last)
	le.PutUint64(data[24:], c.first)
	le.PutUint64(data[32:], c.last)
	le.PutUint32(data[40:], 0x80)
	le.PutUint32(data[44:], uint32(c.lastOffset))
	le.PutUint32(data[48:], uint32(free))
	le.PutUint32(data[52:], crc32.ChecksumIEEE(data[ChunkDataOffset:free]))

	h := crc32.NewIEEE()
	h.Write(data[:120])
	h.Write(data[128:ChunkDataOffset])
	le.PutUint32(data[124:], h.Sum32())
	return data
}

type fileHeader struct {
	Magic           [8]byte
	FirstChunk      uint64
	LastChunk       uint64
	NextRecord      uint64
	HeaderSize      uint32
	MinorVersion    uint16
	MajorVersion    uint16
	HeaderBlockSize uint16
	Chunks          uint16
	Unknown         [76]byte
	Flags           uint32
	CheckSum        uint32
}

// FileHeader returns a 4 KiB EVTX file header announcing chunks chunks.
func FileHeader(chunks uint16, nextRecord uint64, flags uint32) []byte {
	h := fileHeader{
		LastChunk:       uint64(chunks) - 1,
		NextRecord:      nextRecord,
		HeaderSize:      0x80,
		MinorVersion:    1,
		MajorVersion:    3,
		HeaderBlockSize: 0x1000,
		Chunks:          chunks,
		Flags:           flags,
	}
	copy(h.Magic[:], "ElfFile\x00")
	raw, err := encoding.Marshal(&h, le)
	if err != nil {
		panic(err)
	}
	data := make([]byte, 0x1000)
	copy(data, raw)
	le.PutUint32(data[124:], crc32.ChecksumIEEE(data[:120]))
	return data
}
