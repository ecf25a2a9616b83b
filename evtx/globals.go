package evtx

import (
	"encoding/binary"
	"math"
	"runtime"

	"github.com/rawsec/evtxrecord/codepage"
)

var (
	MaxJobs    = int(math.Max(1, math.Floor(float64(runtime.NumCPU())/2)))
	Endianness = binary.LittleEndian
)

const (
	RecordHeaderSize = 24
	RecordMagic      = "\x2a\x2a\x00\x00"

	ChunkSize       = 0x10000
	ChunkHeaderSize = 0x80
	ChunkDataOffset = 0x200
	ChunkMagic      = "ElfChnk\x00"

	FileHeaderSize = 0x80
	FileMagic      = "ElfFile\x00"
	// FlagDirty is set in the file header while the log is open for writing.
	FlagDirty = 0x0001
	FlagFull  = 0x0002
)

// Options control how records are decoded.
type Options struct {
	// Codepage converts 8-bit strings of the binary XML.
	Codepage codepage.Codepage
	// VerifyChecksums rejects chunks whose header or records CRC32 do not
	// match.
	VerifyChecksums bool
	// VerifySizeCopy rejects records whose trailing size copy differs from
	// the size in their header.
	VerifySizeCopy bool
	// Workers is the number of chunks decoded concurrently by File.Records.
	Workers int
}

func DefaultOptions() Options {
	return Options{
		Codepage:        codepage.DefaultASCII,
		VerifyChecksums: true,
		Workers:         MaxJobs,
	}
}
