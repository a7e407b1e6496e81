package peripheral

import (
	"encoding/binary"
	"fmt"
	"math"
)

// ReadingSize is the radiation payload length in bytes.
const ReadingSize = 4

// Payloads are little-endian, the native byte order of the hosts the radio
// stacks run on.

// EncodeReading encodes a radiation reading as IEEE-754 float32, little-endian.
func EncodeReading(v float32) []byte {
	b := make([]byte, ReadingSize)
	binary.LittleEndian.PutUint32(b, math.Float32bits(v))
	return b
}

// DecodeReading decodes a payload produced by EncodeReading.
func DecodeReading(b []byte) (float32, error) {
	if len(b) != ReadingSize {
		return 0, fmt.Errorf("%w: reading needs %d bytes, got %d", ErrPayloadSize, ReadingSize, len(b))
	}
	return math.Float32frombits(binary.LittleEndian.Uint32(b)), nil
}

// EncodeLevel encodes a battery level as one unsigned byte.
func EncodeLevel(v uint8) []byte {
	return []byte{v}
}

// DecodeLevel decodes a payload produced by EncodeLevel.
func DecodeLevel(b []byte) (uint8, error) {
	if len(b) != 1 {
		return 0, fmt.Errorf("%w: battery level needs 1 byte, got %d", ErrPayloadSize, len(b))
	}
	return b[0], nil
}
