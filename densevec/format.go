package densevec

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Binary format constants. A saved index is a 64-byte header, the node tape,
// then the vector payload, all little-endian.
const (
	formatMagic  = "usearch"
	headerSize   = 64
	versionMajor = uint16(1)
	versionMinor = uint16(0)
	versionPatch = uint16(0)
)

// Header field offsets.
const (
	offMagic        = 0  // 7 bytes ASCII
	offVersionMajor = 7  // u16
	offVersionMinor = 9  // u16
	offVersionPatch = 11 // u16
	offMetricKind   = 13 // u32
	offScalarKind   = 17 // u32
	offKeyKind      = 21 // u32
	offSlotKind     = 25 // u32
	offCountPresent = 29 // u64
	offCountDeleted = 37 // u64
	offDimensions   = 45 // u64
	offMultiFlag    = 53 // u8
	// 54..63 reserved, zero
)

type fileHeader struct {
	major, minor, patch uint16
	metricKind          uint32
	scalarKind          uint32
	keyKind             uint32
	slotKind            uint32
	countPresent        uint64
	countDeleted        uint64
	dimensions          uint64
	multi               bool
}

func (h *fileHeader) marshal() [headerSize]byte {
	var b [headerSize]byte
	copy(b[offMagic:], formatMagic)
	binary.LittleEndian.PutUint16(b[offVersionMajor:], h.major)
	binary.LittleEndian.PutUint16(b[offVersionMinor:], h.minor)
	binary.LittleEndian.PutUint16(b[offVersionPatch:], h.patch)
	binary.LittleEndian.PutUint32(b[offMetricKind:], h.metricKind)
	binary.LittleEndian.PutUint32(b[offScalarKind:], h.scalarKind)
	binary.LittleEndian.PutUint32(b[offKeyKind:], h.keyKind)
	binary.LittleEndian.PutUint32(b[offSlotKind:], h.slotKind)
	binary.LittleEndian.PutUint64(b[offCountPresent:], h.countPresent)
	binary.LittleEndian.PutUint64(b[offCountDeleted:], h.countDeleted)
	binary.LittleEndian.PutUint64(b[offDimensions:], h.dimensions)
	if h.multi {
		b[offMultiFlag] = 1
	}
	return b
}

func parseHeader(b []byte) (*fileHeader, error) {
	if len(b) < headerSize {
		return nil, fmt.Errorf("%w: file shorter than header", ErrIncompatibleFormat)
	}
	if !bytes.Equal(b[offMagic:offMagic+len(formatMagic)], []byte(formatMagic)) {
		return nil, fmt.Errorf("%w: bad magic", ErrIncompatibleFormat)
	}
	h := &fileHeader{
		major:        binary.LittleEndian.Uint16(b[offVersionMajor:]),
		minor:        binary.LittleEndian.Uint16(b[offVersionMinor:]),
		patch:        binary.LittleEndian.Uint16(b[offVersionPatch:]),
		metricKind:   binary.LittleEndian.Uint32(b[offMetricKind:]),
		scalarKind:   binary.LittleEndian.Uint32(b[offScalarKind:]),
		keyKind:      binary.LittleEndian.Uint32(b[offKeyKind:]),
		slotKind:     binary.LittleEndian.Uint32(b[offSlotKind:]),
		countPresent: binary.LittleEndian.Uint64(b[offCountPresent:]),
		countDeleted: binary.LittleEndian.Uint64(b[offCountDeleted:]),
		dimensions:   binary.LittleEndian.Uint64(b[offDimensions:]),
		multi:        b[offMultiFlag] != 0,
	}
	if h.major != versionMajor {
		return nil, fmt.Errorf("%w: major version %d, library speaks %d", ErrIncompatibleFormat, h.major, versionMajor)
	}
	if h.minor > versionMinor || (h.minor == versionMinor && h.patch > versionPatch) {
		return nil, fmt.Errorf("%w: file version %d.%d.%d newer than library %d.%d.%d",
			ErrIncompatibleFormat, h.major, h.minor, h.patch, versionMajor, versionMinor, versionPatch)
	}
	return h, nil
}

// checkHeader validates a parsed header against the open configuration.
func (ix *Index) checkHeader(h *fileHeader) error {
	cfg := ix.cfg
	if h.metricKind != uint32(cfg.Metric) {
		return fmt.Errorf("%w: metric %d, index opened with %s", ErrIncompatibleFormat, h.metricKind, cfg.Metric)
	}
	if h.scalarKind != uint32(cfg.Scalar) {
		return fmt.Errorf("%w: scalar %d, index opened with %s", ErrIncompatibleFormat, h.scalarKind, cfg.Scalar)
	}
	if h.keyKind != uint32(cfg.KeyKind) || h.slotKind != uint32(cfg.SlotKind) {
		return fmt.Errorf("%w: key/slot widths differ from open options", ErrIncompatibleFormat)
	}
	if h.dimensions != uint64(cfg.Dimensions) {
		return fmt.Errorf("%w: %d dimensions, index opened with %d", ErrIncompatibleFormat, h.dimensions, cfg.Dimensions)
	}
	if h.multi != cfg.Multi {
		return fmt.Errorf("%w: multi-vector flag differs from open options", ErrIncompatibleFormat)
	}
	return nil
}
