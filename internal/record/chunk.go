package record

import (
	"github.com/loglsm/spacemap/internal/base"
)

// DefaultChunkSize is the 16 MiB bound spec.md §2/§4.2 places on a
// single checksummed buffer of records.
const DefaultChunkSize = 16 << 20

// ChunkHeader is the per-chunk metadata stored in the LSM's header
// block: how many record words the chunk holds and their checksum.
type ChunkHeader struct {
	Words    uint32
	Checksum uint64
}

// Writer accumulates fixed 8-byte records into chunks no larger than
// ChunkSize, emitting a ChunkHeader each time a chunk is sealed. The
// codec never lets a record straddle a chunk boundary: Append seals the
// current chunk first if the next word wouldn't fit.
type Writer struct {
	ChunkSize int
	buf       []byte
	headers   []ChunkHeader
	sealed    [][]byte
}

// NewWriter returns a Writer bounding chunks to size bytes (rounded down
// to a whole number of words); size <= 0 selects DefaultChunkSize.
func NewWriter(size int) *Writer {
	if size <= 0 {
		size = DefaultChunkSize
	}
	return &Writer{ChunkSize: size - size%WordSize}
}

// Append adds one encoded word to the stream, sealing the current chunk
// first if necessary.
func (w *Writer) Append(word uint64) {
	if len(w.buf)+WordSize > w.ChunkSize {
		w.seal()
	}
	var tmp [WordSize]byte
	PutWord(tmp[:], word)
	w.buf = append(w.buf, tmp[:]...)
}

func (w *Writer) seal() {
	if len(w.buf) == 0 {
		return
	}
	w.headers = append(w.headers, ChunkHeader{
		Words:    uint32(len(w.buf) / WordSize),
		Checksum: ChecksumChunk(w.buf),
	})
	w.sealed = append(w.sealed, w.buf)
	w.buf = nil
}

// Finish seals any partial trailing chunk and returns the full byte
// stream (all chunks concatenated) along with the per-chunk headers.
func (w *Writer) Finish() ([]byte, []ChunkHeader) {
	w.seal()
	var out []byte
	for _, c := range w.sealed {
		out = append(out, c...)
	}
	return out, w.headers
}

// Bytes returns the number of bytes written so far, including any
// unsealed partial chunk.
func (w *Writer) Bytes() int {
	n := len(w.buf)
	for _, c := range w.sealed {
		n += len(c)
	}
	return n
}

// headerEntrySize is the encoded size of one ChunkHeader: a uint32
// word count followed by a uint64 checksum.
const headerEntrySize = 4 + 8

// EncodeHeaderBlock serializes headers as the LSM's header block: a
// uint32 count followed by one fixed-size entry per chunk. It is
// written once, ahead of the chunk byte stream, when an LSM is closed.
func EncodeHeaderBlock(headers []ChunkHeader) []byte {
	buf := make([]byte, 4+len(headers)*headerEntrySize)
	putUint32(buf, uint32(len(headers)))
	off := 4
	for _, h := range headers {
		putUint32(buf[off:], h.Words)
		PutWord(buf[off+4:], h.Checksum)
		off += headerEntrySize
	}
	return buf
}

// DecodeHeaderBlock parses a header block written by EncodeHeaderBlock,
// returning the chunk headers and the chunk stream that follows them.
// The returned slice is bounded to exactly the byte count the headers
// declare (sum of Words*WordSize): callers that block-align the whole
// object on disk append zero padding after the chunk stream to reach
// the next block boundary, and that padding is neither part of any
// chunk nor covered by any checksum, so it must not be handed to
// VerifyChunks/NewDecoder as if it were record data.
func DecodeHeaderBlock(buf []byte) ([]ChunkHeader, []byte, error) {
	if len(buf) < 4 {
		return nil, nil, base.CorruptionErrorf("logsm: truncated header block")
	}
	count := getUint32(buf)
	off := 4
	need := 4 + int(count)*headerEntrySize
	if need < 0 || len(buf) < need {
		return nil, nil, base.CorruptionErrorf("logsm: header block declares %d chunks but buffer too short", count)
	}
	headers := make([]ChunkHeader, count)
	var chunkBytes int
	for i := range headers {
		headers[i].Words = getUint32(buf[off:])
		headers[i].Checksum = GetWord(buf[off+4:])
		off += headerEntrySize
		chunkBytes += int(headers[i].Words) * WordSize
	}
	if off+chunkBytes > len(buf) {
		return nil, nil, base.CorruptionErrorf("logsm: header block declares %d chunk bytes but buffer too short", chunkBytes)
	}
	return headers, buf[off : off+chunkBytes], nil
}

func putUint32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

func getUint32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

// VerifyChunks splits buf into chunks per headers and validates each
// chunk's checksum, returning ErrCorruption on the first mismatch or on
// a chunk/header length disagreement.
func VerifyChunks(buf []byte, headers []ChunkHeader) error {
	off := 0
	for i, h := range headers {
		n := int(h.Words) * WordSize
		if off+n > len(buf) {
			return base.CorruptionErrorf("logsm: chunk %d overruns buffer (need %d, have %d)", i, off+n, len(buf))
		}
		chunk := buf[off : off+n]
		if ChecksumChunk(chunk) != h.Checksum {
			return base.CorruptionErrorf("logsm: chunk %d checksum mismatch", i)
		}
		off += n
	}
	if off != len(buf) {
		return base.CorruptionErrorf("logsm: trailing %d bytes not covered by any chunk header", len(buf)-off)
	}
	return nil
}

// Decoder walks a verified byte stream, yielding LOC tuples and
// advancing past SKIP records.
type Decoder struct {
	buf []byte
	pos int
}

// NewDecoder returns a Decoder over buf, which must already have passed
// VerifyChunks.
func NewDecoder(buf []byte) *Decoder {
	return &Decoder{buf: buf}
}

// DecodedRecord is one record yielded by Decoder.Next: either a LOC
// tuple (IsSkip false) or a SKIP count (IsSkip true, Entry unset).
type DecodedRecord struct {
	IsSkip    bool
	Entry     Entry
	SkipCount uint64
}

// Next returns the next record, or ok=false once the stream is
// exhausted.
func (d *Decoder) Next() (rec DecodedRecord, ok bool, err error) {
	if d.pos+WordSize > len(d.buf) {
		if d.pos != len(d.buf) {
			return DecodedRecord{}, false, base.CorruptionErrorf("logsm: trailing %d bytes not a whole record", len(d.buf)-d.pos)
		}
		return DecodedRecord{}, false, nil
	}
	w := GetWord(d.buf[d.pos:])
	d.pos += WordSize
	kind, e, n := Decode(w)
	switch kind {
	case KindLoc:
		return DecodedRecord{Entry: e}, true, nil
	case KindSkip:
		return DecodedRecord{IsSkip: true, SkipCount: n}, true, nil
	default:
		return DecodedRecord{}, false, base.CorruptionErrorf("logsm: invalid record type tag in log stream")
	}
}
