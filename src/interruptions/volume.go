package interruptions

import (
	"encoding/binary"
	"math"
	"sync"
)

// VolumeInterruptionStrategy detects interruptions from the RMS volume of
// incoming audio. A rolling window of per-frame volumes is kept; the user
// interrupts once enough frames in the window exceed the threshold.
type VolumeInterruptionStrategy struct {
	BaseInterruptionStrategy

	threshold  float64
	windowSize int
	minFrames  int

	volumes     []float64
	framesAbove int
	volMu       sync.Mutex
}

// VolumeInterruptionStrategyParams holds configuration for volume-based interruption
type VolumeInterruptionStrategyParams struct {
	Threshold  float64 // RMS volume threshold (default: 0.02)
	WindowSize int     // Frames to analyze (default: 10, ~200ms at 20ms/frame)
	MinFrames  int     // Frames above threshold required (default: 3)
}

// NewVolumeInterruptionStrategy creates a new volume-based interruption strategy
func NewVolumeInterruptionStrategy(params *VolumeInterruptionStrategyParams) *VolumeInterruptionStrategy {
	if params == nil {
		params = &VolumeInterruptionStrategyParams{
			Threshold:  0.02,
			WindowSize: 10,
			MinFrames:  3,
		}
	}

	return &VolumeInterruptionStrategy{
		threshold:  params.Threshold,
		windowSize: params.WindowSize,
		minFrames:  params.MinFrames,
		volumes:    make([]float64, 0, params.WindowSize),
	}
}

// AppendAudio analyzes the audio frame and updates the rolling volume window
func (v *VolumeInterruptionStrategy) AppendAudio(audio []byte, sampleRate int) error {
	v.volMu.Lock()
	defer v.volMu.Unlock()

	v.volumes = append(v.volumes, RMSVolume(audio))
	if len(v.volumes) > v.windowSize {
		v.volumes = v.volumes[1:]
	}

	v.framesAbove = 0
	for _, vol := range v.volumes {
		if vol > v.threshold {
			v.framesAbove++
		}
	}

	return nil
}

// ShouldInterrupt reports whether the user is loud enough to interrupt
func (v *VolumeInterruptionStrategy) ShouldInterrupt() (bool, error) {
	v.volMu.Lock()
	defer v.volMu.Unlock()

	if len(v.volumes) < v.minFrames {
		return false, nil
	}
	return v.framesAbove >= v.minFrames, nil
}

// Reset clears the volume history
func (v *VolumeInterruptionStrategy) Reset() error {
	v.volMu.Lock()
	defer v.volMu.Unlock()

	v.volumes = v.volumes[:0]
	v.framesAbove = 0
	return nil
}

// RMSVolume computes the root mean square volume of 16-bit little-endian
// PCM samples, normalized to the 0.0-1.0 range.
func RMSVolume(audio []byte) float64 {
	if len(audio) < 2 {
		return 0.0
	}

	var sumSquares float64
	numSamples := 0

	for i := 0; i+1 < len(audio); i += 2 {
		sample := int16(binary.LittleEndian.Uint16(audio[i : i+2]))
		normalized := float64(sample) / 32768.0
		sumSquares += normalized * normalized
		numSamples++
	}

	if numSamples == 0 {
		return 0.0
	}
	return math.Sqrt(sumSquares / float64(numSamples))
}
