package spillstore

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/pierrec/lz4/v4"

	"github.com/Sumatoshi-tech/metricplot/pkg/safeconv"
)

const (
	float64Size       = 8
	segmentHeaderSize = 2 * float64Size
)

// ErrCorruptSegment indicates a compressed segment that cannot be decoded.
var ErrCorruptSegment = errors.New("corrupt compressed segment")

// EncodeSnapshot writes approx ([dimension][document]) as one record per
// document, each record being the document's dimension values as
// little-endian IEEE-754 float64. It returns the number of bytes written.
func EncodeSnapshot(w io.Writer, approx [][]float64) (int64, error) {
	if len(approx) == 0 {
		return 0, nil
	}

	dimension := len(approx)
	docCount := len(approx[0])
	record := make([]byte, dimension*float64Size)

	var written int64

	for doc := range docCount {
		for dim := range dimension {
			binary.LittleEndian.PutUint64(record[dim*float64Size:], math.Float64bits(approx[dim][doc]))
		}

		n, err := w.Write(record)
		written += int64(n)

		if err != nil {
			return written, fmt.Errorf("write record %d: %w", doc, err)
		}
	}

	return written, nil
}

// DecodeSnapshot reads exactly docCount records of dimension values and
// reassembles the [dimension][document] matrix.
func DecodeSnapshot(r io.Reader, dimension, docCount int) ([][]float64, error) {
	result := make([][]float64, dimension)
	for dim := range result {
		result[dim] = make([]float64, docCount)
	}

	record := make([]byte, dimension*float64Size)

	for doc := range docCount {
		_, err := io.ReadFull(r, record)
		if err != nil {
			return nil, fmt.Errorf("read record %d of %d: %w", doc, docCount, err)
		}

		for dim := range dimension {
			result[dim][doc] = math.Float64frombits(binary.LittleEndian.Uint64(record[dim*float64Size:]))
		}
	}

	return result, nil
}

// compressSegment packs raw into an LZ4 block preceded by its raw and
// compressed lengths. Incompressible data is stored as is with a zero
// compressed length.
func compressSegment(raw []byte) []byte {
	compressed := make([]byte, segmentHeaderSize+lz4.CompressBlockBound(len(raw)))

	written, err := lz4.CompressBlock(raw, compressed[segmentHeaderSize:], nil)
	if err != nil || written == 0 || written >= len(raw) {
		out := make([]byte, segmentHeaderSize+len(raw))
		binary.LittleEndian.PutUint64(out, safeconv.MustIntToUint64(len(raw)))
		copy(out[segmentHeaderSize:], raw)

		return out
	}

	binary.LittleEndian.PutUint64(compressed, safeconv.MustIntToUint64(len(raw)))
	binary.LittleEndian.PutUint64(compressed[float64Size:], safeconv.MustIntToUint64(written))

	return compressed[:segmentHeaderSize+written]
}

// segmentReader streams the decompressed content of consecutive segments.
type segmentReader struct {
	src *bufio.Reader
	cur []byte
}

func newSegmentReader(r io.Reader) *segmentReader {
	return &segmentReader{src: bufio.NewReader(r)}
}

func (s *segmentReader) Read(p []byte) (int, error) {
	for len(s.cur) == 0 {
		err := s.next()
		if err != nil {
			return 0, err
		}
	}

	n := copy(p, s.cur)
	s.cur = s.cur[n:]

	return n, nil
}

func (s *segmentReader) next() error {
	var header [segmentHeaderSize]byte

	_, err := io.ReadFull(s.src, header[:])
	if err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return ErrCorruptSegment
		}

		return err
	}

	rawLen, err := safeconv.Uint64ToInt(binary.LittleEndian.Uint64(header[:float64Size]))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCorruptSegment, err)
	}

	compLen, err := safeconv.Uint64ToInt(binary.LittleEndian.Uint64(header[float64Size:]))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCorruptSegment, err)
	}

	if compLen == 0 {
		raw := make([]byte, rawLen)

		_, err = io.ReadFull(s.src, raw)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrCorruptSegment, err)
		}

		s.cur = raw

		return nil
	}

	compressed := make([]byte, compLen)

	_, err = io.ReadFull(s.src, compressed)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCorruptSegment, err)
	}

	raw := make([]byte, rawLen)

	n, err := lz4.UncompressBlock(compressed, raw)
	if err != nil || n != rawLen {
		return fmt.Errorf("%w: uncompressed %d of %d bytes", ErrCorruptSegment, n, rawLen)
	}

	s.cur = raw

	return nil
}
