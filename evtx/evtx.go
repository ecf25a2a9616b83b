package evtx

import (
	"bufio"
	"context"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"regexp"
	"sort"
	"sync"

	"github.com/panjf2000/ants/v2"
	"github.com/pkg/errors"
	"github.com/rawsec/evtxrecord/encoding"
	"github.com/rawsec/evtxrecord/log"
	"github.com/sirupsen/logrus"
)

type ChunkSorter []*Chunk

func (cs ChunkSorter) Len() int {
	return len(cs)
}

func (cs ChunkSorter) Less(i, j int) bool {
	return cs[i].Header.FirstRecordNumber < cs[j].Header.FirstRecordNumber
}

func (cs ChunkSorter) Swap(i, j int) {
	cs[i], cs[j] = cs[j], cs[i]
}

var (
	ErrCorruptedHeader = errors.New("corrupted header")
	ErrFileChecksum    = errors.New("file header checksum mismatch")
	ErrDirtyFile       = errors.New("file is flagged as dirty")
	ErrRepairFailed    = errors.New("file header could not be repaired")
)

type FileHeader struct {
	Magic           [8]byte
	FirstChunkNum   uint64
	LastChunkNum    uint64
	NextRecordID    uint64
	HeaderSpace     uint32
	MinVersion      uint16
	MajVersion      uint16
	HeaderBlockSize uint16
	ChunkCount      uint16
	Unknown         [76]byte
	Flags           uint32
	CheckSum        uint32
}

// Verify checks the magic, the checksum of the first 120 bytes and the
// dirty flag. raw holds the header bytes.
func (f *FileHeader) Verify(raw []byte) error {
	if string(f.Magic[:]) != FileMagic {
		return errors.Wrapf(ErrCorruptedHeader, "magic %q", f.Magic)
	}
	if len(raw) >= 120 {
		if sum := crc32.ChecksumIEEE(raw[:120]); sum != f.CheckSum {
			return errors.Wrapf(ErrFileChecksum, "0x%08x instead of 0x%08x", sum, f.CheckSum)
		}
	}
	if f.Flags&FlagDirty != 0 {
		return ErrDirtyFile
	}
	return nil
}

// Repair counts the chunks actually present after the header and clears
// the dirty flag.
func (f *FileHeader) Repair(r io.ReadSeeker) error {
	if _, err := r.Seek(int64(f.headerBlockSize()), io.SeekStart); err != nil {
		return err
	}
	chunkHeaderRE := regexp.MustCompile(regexp.QuoteMeta(ChunkMagic))
	rr := bufio.NewReader(r)
	cc := uint16(0)
	for loc := chunkHeaderRE.FindReaderIndex(rr); loc != nil; loc = chunkHeaderRE.FindReaderIndex(rr) {
		cc++
	}

	if f.ChunkCount > cc || cc == 0 {
		return errors.Wrapf(ErrRepairFailed, "%d chunks found, %d announced", cc, f.ChunkCount)
	}

	f.ChunkCount = cc
	f.LastChunkNum = uint64(f.ChunkCount - 1)
	f.Flags &^= FlagDirty
	return nil
}

func (f *FileHeader) headerBlockSize() uint16 {
	if f.HeaderBlockSize == 0 {
		return 0x1000
	}
	return f.HeaderBlockSize
}

func (f FileHeader) String() string {
	return fmt.Sprintf(
		"Magic: %q\n"+
			"FirstChunkNum: %d\n"+
			"LastChunkNum: %d\n"+
			"NextRecordID: %d\n"+
			"HeaderSpace: %d\n"+
			"MinVersion: 0x%04x\n"+
			"MajVersion: 0x%04x\n"+
			"HeaderBlockSize: %d\n"+
			"ChunkCount: %d\n"+
			"Flags: 0x%08x\n"+
			"CheckSum: 0x%08x\n",
		f.Magic,
		f.FirstChunkNum,
		f.LastChunkNum,
		f.NextRecordID,
		f.HeaderSpace,
		f.MinVersion,
		f.MajVersion,
		f.HeaderBlockSize,
		f.ChunkCount,
		f.Flags,
		f.CheckSum)
}

// File is an EVTX file. Reads of the underlying file are serialized.
type File struct {
	sync.Mutex
	Header  FileHeader
	file    io.ReadSeeker
	raw     []byte
	options Options
}

// New reads the file header of r without verifying it.
func New(r io.ReadSeeker, options Options) (*File, error) {
	ef := &File{file: r, options: options}
	if err := ef.ParseFileHeader(); err != nil {
		return nil, err
	}
	return ef, nil
}

// Open opens and verifies an EVTX file. A dirty file or a header checksum
// mismatch is returned along with ErrDirtyFile or ErrFileChecksum: chunks
// carry their own checksums and stay readable.
func Open(filepath string, options Options) (*File, error) {
	file, err := os.Open(filepath)
	if err != nil {
		return nil, err
	}

	ef, err := New(file, options)
	if err != nil {
		file.Close()
		return nil, err
	}

	if err = ef.Header.Verify(ef.raw); err != nil && !repairable(err) {
		file.Close()
		return nil, err
	}
	return ef, err
}

func repairable(err error) bool {
	return err == ErrDirtyFile || errors.Cause(err) == ErrFileChecksum
}

// OpenDirty opens a file even when it was not closed properly or its header
// checksum does not match, recounting the chunks of its header.
func OpenDirty(filepath string, options Options) (*File, error) {
	ef, err := Open(filepath, options)
	if err != nil && repairable(err) {
		log.WithFields(logrus.Fields{"file": filepath}).Debugf("repair header: %s", err)
		ef.Lock()
		err = ef.Header.Repair(ef.file)
		ef.Unlock()
		if err != nil {
			ef.Close()
			return nil, err
		}
	}
	return ef, err
}

func (ef *File) ParseFileHeader() error {
	ef.Lock()
	defer ef.Unlock()

	if _, err := ef.file.Seek(0, io.SeekStart); err != nil {
		return err
	}
	ef.raw = make([]byte, FileHeaderSize)
	if _, err := io.ReadFull(ef.file, ef.raw); err != nil {
		return errors.Wrap(ErrCorruptedHeader, err.Error())
	}
	return encoding.UnmarshalAt(ef.raw, 0, &ef.Header, Endianness)
}

func (ef *File) chunkOffset(index uint16) int64 {
	return int64(ef.Header.headerBlockSize()) + int64(ChunkSize)*int64(index)
}

// FetchChunk reads and parses the chunk at offset.
func (ef *File) FetchChunk(offset int64) (*Chunk, error) {
	ef.Lock()
	data := make([]byte, ChunkSize)
	_, err := ef.file.Seek(offset, io.SeekStart)
	if err == nil {
		_, err = io.ReadFull(ef.file, data)
	}
	ef.Unlock()
	if err != nil {
		return nil, errors.Wrapf(err, "chunk at 0x%x", offset)
	}
	return ParseChunk(data, offset, ef.options)
}

// Chunks sends the valid chunks of the file in file order.
func (ef *File) Chunks() (cc chan *Chunk) {
	cc = make(chan *Chunk)
	go func() {
		defer close(cc)
		for i := uint16(0); i < ef.Header.ChunkCount; i++ {
			chunk, err := ef.FetchChunk(ef.chunkOffset(i))
			if err != nil {
				log.WithFields(logrus.Fields{"chunk": i, "offset": ef.chunkOffset(i)}).Debugf("skip chunk: %s", err)
				continue
			}
			cc <- chunk
		}
	}()
	return
}

// SortedChunks returns the valid chunks ordered by their first record
// number, which is the order records were written in a wrapped log.
func (ef *File) SortedChunks() []*Chunk {
	chunks := make([]*Chunk, 0, ef.Header.ChunkCount)
	for c := range ef.Chunks() {
		chunks = append(chunks, c)
	}
	sort.Stable(ChunkSorter(chunks))
	return chunks
}

func (ef *File) workers() int {
	if ef.options.Workers < 1 {
		return 1
	}
	return ef.options.Workers
}

func (ef *File) chunkRecords(index uint16) []*Record {
	chunk, err := ef.FetchChunk(ef.chunkOffset(index))
	if err != nil {
		log.WithFields(logrus.Fields{"chunk": index, "offset": ef.chunkOffset(index)}).Debugf("skip chunk: %s", err)
		return nil
	}
	return chunk.Records()
}

// Records decodes the chunks on a worker pool and sends their records in
// file order, chunk after chunk. The channel is closed once every chunk is
// done or ctx is cancelled.
func (ef *File) Records(ctx context.Context) (chan *Record, error) {
	workers := ef.workers()
	pool, err := ants.NewPool(workers, ants.WithPreAlloc(true))
	if err != nil {
		return nil, errors.Wrap(err, "chunk worker pool")
	}

	records := make(chan *Record, 42)
	queue := make(chan chan []*Record, workers)
	go func() {
		defer close(queue)
		for i := uint16(0); i < ef.Header.ChunkCount; i++ {
			result := make(chan []*Record, 1)
			select {
			case queue <- result:
			case <-ctx.Done():
				return
			}
			err := pool.Submit(func(index uint16) func() {
				return func() {
					var decoded []*Record
					defer func() {
						if r := recover(); r != nil {
							log.DontPanicf("chunk %d: %v", index, r)
						}
						result <- decoded
					}()
					decoded = ef.chunkRecords(index)
				}
			}(i))
			if err != nil {
				log.Debugf("chunk %d not decoded: %s", i, err)
				result <- nil
			}
		}
	}()

	go func() {
		defer close(records)
		defer pool.Release()
		for result := range queue {
			var chunkRecords []*Record
			select {
			case chunkRecords = <-result:
			case <-ctx.Done():
				return
			}
			for _, r := range chunkRecords {
				select {
				case records <- r:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return records, nil
}

func (ef *File) Close() error {
	if f, ok := ef.file.(io.Closer); ok {
		return f.Close()
	}

	return nil
}
