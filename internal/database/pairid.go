package database

// MaxNumImages bounds image identifiers so that an unordered image pair maps
// injectively into a 64-bit pair id.
const MaxNumImages = 2147483647

// InvalidImageID marks "no image", e.g. an empty GPU descriptor slot.
const InvalidImageID uint32 = 0xFFFFFFFF

// PairID canonically identifies an unordered image pair.
type PairID uint64

// ImagePair is a candidate pair of images to match.
type ImagePair struct {
	ID1 uint32
	ID2 uint32
}

// ShouldSwapPair reports whether the pair is stored in swapped order, i.e.
// the given ids are not in canonical (ascending) order.
func ShouldSwapPair(imageID1, imageID2 uint32) bool {
	return imageID1 > imageID2
}

// ImagePairToPairID maps an unordered image pair to its canonical pair id.
// ImagePairToPairID(a, b) == ImagePairToPairID(b, a).
func ImagePairToPairID(imageID1, imageID2 uint32) PairID {
	if ShouldSwapPair(imageID1, imageID2) {
		imageID1, imageID2 = imageID2, imageID1
	}
	return PairID(uint64(imageID1)*MaxNumImages + uint64(imageID2))
}

// PairIDToImagePair inverts ImagePairToPairID. The returned pair is in
// canonical order.
func PairIDToImagePair(pairID PairID) (uint32, uint32) {
	imageID2 := uint64(pairID) % MaxNumImages
	imageID1 := (uint64(pairID) - imageID2) / MaxNumImages
	return uint32(imageID1), uint32(imageID2)
}
