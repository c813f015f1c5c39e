package record

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeLocRoundTrip(t *testing.T) {
	e := Entry{Kind: EntryAlloc, Vdev: 3, MsID: 42, Offset: 1024, Run: 16}
	w, err := EncodeLoc(e)
	require.NoError(t, err)

	kind, got, _ := Decode(w)
	require.Equal(t, KindLoc, kind)
	require.Equal(t, e, got)
}

func TestEncodeDecodeSkipAdvancesCursor(t *testing.T) {
	w, err := EncodeSkip(7)
	require.NoError(t, err)

	kind, _, n := Decode(w)
	require.Equal(t, KindSkip, kind)
	require.Equal(t, uint64(7), n)
}

func TestEncodeLocRejectsOverflow(t *testing.T) {
	_, err := EncodeLoc(Entry{Vdev: 1 << 8})
	require.Error(t, err)

	_, err = EncodeLoc(Entry{MsID: 1 << 16})
	require.Error(t, err)

	_, err = EncodeLoc(Entry{Offset: 1 << 19})
	require.Error(t, err)

	_, err = EncodeLoc(Entry{Run: 1 << 18})
	require.Error(t, err)
}

func TestWriterChunksAndVerifies(t *testing.T) {
	w := NewWriter(3 * WordSize) // force chunk boundary every 3 words
	for i := 0; i < 7; i++ {
		word, err := EncodeLoc(Entry{Vdev: uint32(i), Offset: uint64(i), Run: 1})
		require.NoError(t, err)
		w.Append(word)
	}
	buf, headers := w.Finish()
	require.NoError(t, VerifyChunks(buf, headers))

	// No chunk spans more than ChunkSize bytes, and none straddles a
	// boundary: every header's word count matches its byte span.
	total := 0
	for _, h := range headers {
		require.LessOrEqual(t, int(h.Words)*WordSize, 3*WordSize)
		total += int(h.Words)
	}
	require.Equal(t, 7, total)
}

func TestVerifyChunksDetectsCorruption(t *testing.T) {
	w := NewWriter(0)
	word, err := EncodeLoc(Entry{Vdev: 1, Offset: 2, Run: 3})
	require.NoError(t, err)
	w.Append(word)
	buf, headers := w.Finish()

	buf[0] ^= 0xff
	require.Error(t, VerifyChunks(buf, headers))
}

func TestHeaderBlockRoundTrip(t *testing.T) {
	headers := []ChunkHeader{{Words: 3, Checksum: 0xdeadbeef}, {Words: 7, Checksum: 0x1}}
	block := EncodeHeaderBlock(headers)
	chunkBytes := (3 + 7) * WordSize
	rest := make([]byte, chunkBytes)
	for i := range rest {
		rest[i] = byte(i)
	}
	got, remaining, err := DecodeHeaderBlock(append(append([]byte{}, block...), rest...))
	require.NoError(t, err)
	require.Equal(t, headers, got)
	require.Equal(t, rest, remaining)
}

// TestHeaderBlockRoundTripIgnoresBlockAlignmentPadding exercises the
// case closeSyncingLSMLocked produces on disk: trailing zero bytes
// appended past the chunk stream to round the object up to a whole
// number of blocks. DecodeHeaderBlock must return only the declared
// chunk bytes, not the padding.
func TestHeaderBlockRoundTripIgnoresBlockAlignmentPadding(t *testing.T) {
	headers := []ChunkHeader{{Words: 2, Checksum: 0x42}}
	block := EncodeHeaderBlock(headers)
	chunk := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16} // 2 words
	padding := make([]byte, 100)

	buf := append(append(append([]byte{}, block...), chunk...), padding...)
	got, remaining, err := DecodeHeaderBlock(buf)
	require.NoError(t, err)
	require.Equal(t, headers, got)
	require.Equal(t, chunk, remaining)
}

func TestDecoderRoundTripsLocAndSkip(t *testing.T) {
	w := NewWriter(0)
	loc1, _ := EncodeLoc(Entry{Kind: EntryAlloc, Vdev: 0, Offset: 0, Run: 16})
	skip, _ := EncodeSkip(3)
	loc2, _ := EncodeLoc(Entry{Kind: EntryFree, Vdev: 1, Offset: 100, Run: 4})
	w.Append(loc1)
	w.Append(skip)
	w.Append(loc2)
	buf, headers := w.Finish()
	require.NoError(t, VerifyChunks(buf, headers))

	d := NewDecoder(buf)

	rec, ok, err := d.Next()
	require.NoError(t, err)
	require.True(t, ok)
	require.False(t, rec.IsSkip)
	require.Equal(t, Entry{Kind: EntryAlloc, Vdev: 0, Offset: 0, Run: 16}, rec.Entry)

	rec, ok, err = d.Next()
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, rec.IsSkip)
	require.Equal(t, uint64(3), rec.SkipCount)

	rec, ok, err = d.Next()
	require.NoError(t, err)
	require.True(t, ok)
	require.False(t, rec.IsSkip)
	require.Equal(t, Entry{Kind: EntryFree, Vdev: 1, Offset: 100, Run: 4}, rec.Entry)

	_, ok, err = d.Next()
	require.NoError(t, err)
	require.False(t, ok)
}
