package database

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Camera holds intrinsic calibration shared by one or more images.
type Camera struct {
	ID               uint32
	Model            int
	Width            int64
	Height           int64
	Params           []float64
	PriorFocalLength bool
}

// Image is a registered photograph. Positions are priors supplied at import
// time, not reconstruction results; the matching pipeline never mutates them.
type Image struct {
	ID       uint32
	Name     string
	CameraID uint32
	// PriorT is the translation prior. For GPS-tagged images the components
	// are latitude, longitude, and altitude.
	PriorT [3]float64
	// PriorQ is the optional rotation prior as a w,x,y,z quaternion.
	PriorQ *[4]float64
}

// HasLocationPrior reports whether the translation prior carries usable
// position data. With ignoreZ set, only the first two components count.
func (i Image) HasLocationPrior(ignoreZ bool) bool {
	if i.PriorT[0] != 0 || i.PriorT[1] != 0 {
		return true
	}
	return !ignoreZ && i.PriorT[2] != 0
}

const float64Size = 8

func encodeFloat64s(values []float64) []byte {
	buf := make([]byte, len(values)*float64Size)
	for i, v := range values {
		binary.LittleEndian.PutUint64(buf[i*float64Size:], math.Float64bits(v))
	}
	return buf
}

func decodeFloat64s(data []byte) ([]float64, error) {
	if len(data)%float64Size != 0 {
		return nil, fmt.Errorf("float blob length %d is not a multiple of %d", len(data), float64Size)
	}
	values := make([]float64, len(data)/float64Size)
	for i := range values {
		values[i] = math.Float64frombits(binary.LittleEndian.Uint64(data[i*float64Size:]))
	}
	return values, nil
}
