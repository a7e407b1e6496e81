package peripheral

import "math/rand/v2"

// ReadingSource supplies simulated sensor values.
type ReadingSource interface {
	// Radiation returns a reading in [0, 100).
	Radiation() float32
	// BatteryLevel returns a level in [0, 100).
	BatteryLevel() uint8
}

type randomReadings struct{}

// RandomReadings returns a pseudo-random source with two-decimal radiation values.
func RandomReadings() ReadingSource {
	return randomReadings{}
}

func (randomReadings) Radiation() float32 {
	return float32(rand.IntN(10000)) / 100
}

func (randomReadings) BatteryLevel() uint8 {
	return uint8(rand.IntN(100))
}
