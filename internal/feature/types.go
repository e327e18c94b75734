package feature

import (
	"encoding/binary"
	"fmt"
)

// DescriptorDim is the dimensionality of a SIFT descriptor row.
const DescriptorDim = 128

// Descriptors is a dense row-major matrix of uint8 feature descriptors for a
// single image. One row per feature. Immutable once read from the database.
type Descriptors struct {
	Rows int
	Cols int
	Data []uint8
}

// Row returns the i-th descriptor as a slice aliasing the underlying data.
func (d Descriptors) Row(i int) []uint8 {
	return d.Data[i*d.Cols : (i+1)*d.Cols]
}

// Validate checks the matrix shape against the backing slice.
func (d Descriptors) Validate() error {
	if d.Rows < 0 || d.Cols < 0 {
		return fmt.Errorf("descriptors: negative shape %dx%d", d.Rows, d.Cols)
	}
	if len(d.Data) != d.Rows*d.Cols {
		return fmt.Errorf("descriptors: shape %dx%d does not match %d bytes", d.Rows, d.Cols, len(d.Data))
	}
	return nil
}

// Match is a correspondence between feature Idx1 in the first image and
// feature Idx2 in the second image of a pair.
type Match struct {
	Idx1 uint32
	Idx2 uint32
}

// Matches is an ordered sequence of feature correspondences for one directed
// image pair.
type Matches []Match

// Swapped returns a copy with the match columns exchanged. Used when a pair
// is stored or queried in the opposite of its canonical order.
func (m Matches) Swapped() Matches {
	if m == nil {
		return nil
	}
	out := make(Matches, len(m))
	for i, match := range m {
		out[i] = Match{Idx1: match.Idx2, Idx2: match.Idx1}
	}
	return out
}

const matchBlobStride = 8

// EncodeMatches serializes matches as little-endian uint32 index pairs, the
// on-disk representation in the matches table.
func EncodeMatches(m Matches) []byte {
	buf := make([]byte, len(m)*matchBlobStride)
	for i, match := range m {
		binary.LittleEndian.PutUint32(buf[i*matchBlobStride:], match.Idx1)
		binary.LittleEndian.PutUint32(buf[i*matchBlobStride+4:], match.Idx2)
	}
	return buf
}

// DecodeMatches deserializes a matches blob produced by EncodeMatches.
func DecodeMatches(data []byte) (Matches, error) {
	if len(data)%matchBlobStride != 0 {
		return nil, fmt.Errorf("matches blob length %d is not a multiple of %d", len(data), matchBlobStride)
	}
	m := make(Matches, len(data)/matchBlobStride)
	for i := range m {
		m[i].Idx1 = binary.LittleEndian.Uint32(data[i*matchBlobStride:])
		m[i].Idx2 = binary.LittleEndian.Uint32(data[i*matchBlobStride+4:])
	}
	return m, nil
}
