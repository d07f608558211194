// Package qlf implements the Quantized Layer File format.
//
// QLF is a single-file, memory-mappable container for one quantized
// convolution layer: its description, packed weights and folding tables.
// It describes structure and data only.
package qlf

// QLF global constants must never change.
const (
	// Magic is the file magic for all QLF containers, encoded as "QLF\0".
	Magic = "QLF\x00"

	// CurrentMajor changes only with a breaking format change.
	CurrentMajor uint16 = 1

	// CurrentMinor may add new optional sections or fields.
	CurrentMinor uint16 = 0
)

type SectionType uint32

const (
	SectionLayerInfo   SectionType = 0x0001
	SectionWeights     SectionType = 0x0002
	SectionBias        SectionType = 0x0003
	SectionWeightZero  SectionType = 0x0004
	SectionThresholds  SectionType = 0x0005
	SectionMultipliers SectionType = 0x0006
	SectionShifts      SectionType = 0x0007
)

func (t SectionType) String() string {
	switch t {
	case SectionLayerInfo:
		return "layer_info"
	case SectionWeights:
		return "weights"
	case SectionBias:
		return "bias"
	case SectionWeightZero:
		return "weight_zero"
	case SectionThresholds:
		return "thresholds"
	case SectionMultipliers:
		return "multipliers"
	case SectionShifts:
		return "shifts"
	}
	return "unknown"
}

// elemSize is the payload granularity of a known section type. Layer info,
// weights and zero points are byte streams.
func (t SectionType) elemSize() uint64 {
	switch t {
	case SectionBias, SectionMultipliers:
		return 4
	case SectionThresholds:
		return 2
	}
	return 1
}

type Header struct {
	Magic            [4]byte
	Major            uint16
	Minor            uint16
	HeaderSize       uint32
	SectionCount     uint32
	SectionDirOffset uint64
	FileSize         uint64
	Flags            uint64
}

type Section struct {
	Type    SectionType
	Version uint32
	Offset  uint64
	Size    uint64
}

func (s *Section) End() uint64 {
	return s.Offset + s.Size
}
