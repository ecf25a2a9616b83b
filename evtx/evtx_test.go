package evtx

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/rawsec/evtxrecord/binxml/binxmltest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeLog writes a file header announcing announced chunks followed by
// chunks.
func writeLog(t *testing.T, announced uint16, flags uint32, chunks ...[]byte) string {
	path := filepath.Join(t.TempDir(), "Security.evtx")
	data := binxmltest.FileHeader(announced, 100, flags)
	for _, c := range chunks {
		data = append(data, c...)
	}
	require.NoError(t, os.WriteFile(path, data, 0600))
	return path
}

func recordIDs(t *testing.T, records chan *Record) []uint64 {
	var ids []uint64
	for r := range records {
		ids = append(ids, r.Identifier())
		_, err := r.EventIdentifier()
		assert.NoError(t, err)
		r.Close()
	}
	return ids
}

func TestOpen(t *testing.T) {
	path := writeLog(t, 2, 0, testChunk(1, 2, 3), testChunk(4, 5))
	ef, err := Open(path, DefaultOptions())
	require.NoError(t, err)
	defer ef.Close()

	assert.Equal(t, uint16(2), ef.Header.ChunkCount)
	assert.Equal(t, uint64(1), ef.Header.LastChunkNum)

	records, err := ef.Records(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 2, 3, 4, 5}, recordIDs(t, records))
}

func TestRecordsSingleWorker(t *testing.T) {
	options := DefaultOptions()
	options.Workers = 1
	path := writeLog(t, 3, 0, testChunk(1), testChunk(2, 3), testChunk(4))
	ef, err := Open(path, options)
	require.NoError(t, err)
	defer ef.Close()

	records, err := ef.Records(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 2, 3, 4}, recordIDs(t, records))
}

func TestRecordsSkipsBadChunk(t *testing.T) {
	bad := testChunk(3)
	bad[ChunkDataOffset+RecordHeaderSize] ^= 0xff
	path := writeLog(t, 3, 0, testChunk(1, 2), bad, testChunk(4))
	ef, err := Open(path, DefaultOptions())
	require.NoError(t, err)
	defer ef.Close()

	records, err := ef.Records(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 2, 4}, recordIDs(t, records))
}

func TestRecordsCancel(t *testing.T) {
	path := writeLog(t, 2, 0, testChunk(1, 2, 3), testChunk(4, 5))
	ef, err := Open(path, DefaultOptions())
	require.NoError(t, err)
	defer ef.Close()

	ctx, cancel := context.WithCancel(context.Background())
	records, err := ef.Records(ctx)
	require.NoError(t, err)
	first, ok := <-records
	require.True(t, ok)
	assert.Equal(t, uint64(1), first.Identifier())
	cancel()

	count := 1
	for range records {
		count++
	}
	assert.True(t, count <= 5)
}

func TestSortedChunks(t *testing.T) {
	path := writeLog(t, 3, 0, testChunk(7, 8), testChunk(1, 2), testChunk(4))
	ef, err := Open(path, DefaultOptions())
	require.NoError(t, err)
	defer ef.Close()

	var first []uint64
	for _, c := range ef.SortedChunks() {
		first = append(first, c.Header.FirstRecordNumber)
	}
	assert.Equal(t, []uint64{1, 4, 7}, first)
}

func TestOpenDirty(t *testing.T) {
	path := writeLog(t, 1, FlagDirty, testChunk(1), testChunk(2))

	ef, err := Open(path, DefaultOptions())
	assert.Equal(t, ErrDirtyFile, err)
	require.NotNil(t, ef)
	assert.Equal(t, uint16(1), ef.Header.ChunkCount)
	ef.Close()

	ef, err = OpenDirty(path, DefaultOptions())
	require.NoError(t, err)
	defer ef.Close()
	assert.Equal(t, uint16(2), ef.Header.ChunkCount)
	assert.Equal(t, uint64(1), ef.Header.LastChunkNum)
	assert.Zero(t, ef.Header.Flags&FlagDirty)

	records, err := ef.Records(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 2}, recordIDs(t, records))
}

func TestOpenDirtyRepairFails(t *testing.T) {
	path := writeLog(t, 3, FlagDirty, testChunk(1))
	_, err := OpenDirty(path, DefaultOptions())
	assert.Equal(t, ErrRepairFailed, errors.Cause(err))
}

func TestOpenCorrupted(t *testing.T) {
	path := writeLog(t, 1, 0, testChunk(1))
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	data[8] ^= 0xff
	require.NoError(t, os.WriteFile(path, data, 0600))
	ef, err := Open(path, DefaultOptions())
	assert.Equal(t, ErrFileChecksum, errors.Cause(err))
	require.NotNil(t, ef)
	ef.Close()

	data[0] = 'X'
	require.NoError(t, os.WriteFile(path, data, 0600))
	_, err = Open(path, DefaultOptions())
	assert.Equal(t, ErrCorruptedHeader, errors.Cause(err))

	short := filepath.Join(t.TempDir(), "short.evtx")
	require.NoError(t, os.WriteFile(short, data[:16], 0600))
	_, err = Open(short, DefaultOptions())
	assert.Equal(t, ErrCorruptedHeader, errors.Cause(err))

	_, err = Open(filepath.Join(t.TempDir(), "missing.evtx"), DefaultOptions())
	assert.True(t, os.IsNotExist(err))
}

func TestOpenDirtyChecksumMismatch(t *testing.T) {
	path := writeLog(t, 2, 0, testChunk(1, 2), testChunk(3))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	// next record identifier, covered by the header checksum
	data[24] ^= 0xff
	require.NoError(t, os.WriteFile(path, data, 0600))

	ef, err := OpenDirty(path, DefaultOptions())
	require.NoError(t, err)
	defer ef.Close()
	assert.Equal(t, uint16(2), ef.Header.ChunkCount)

	records, err := ef.Records(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 2, 3}, recordIDs(t, records))
}
