package vad

import (
	"math"
	"sync"

	"github.com/voxkit-labs/voxkit-ai/src/interruptions"
)

// VADState represents the current state of voice activity detection
type VADState int

const (
	VADStateQuiet VADState = iota + 1
	VADStateStarting
	VADStateSpeaking
	VADStateStopping
)

func (s VADState) String() string {
	switch s {
	case VADStateQuiet:
		return "quiet"
	case VADStateStarting:
		return "starting"
	case VADStateSpeaking:
		return "speaking"
	case VADStateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// VADParams holds configuration parameters for voice activity detection
type VADParams struct {
	// Confidence threshold for voice detection, 0.0 to 1.0 (default: 0.7)
	Confidence float32

	// StartSecs: duration voice must persist before QUIET -> SPEAKING
	// (default: 0.2)
	StartSecs float32

	// StopSecs: duration of silence before SPEAKING -> QUIET
	// (default: 0.8)
	StopSecs float32

	// MinVolume: RMS volume below which audio is treated as silence
	// (default: 0.6)
	MinVolume float32
}

// DefaultVADParams returns the default VAD parameters
func DefaultVADParams() VADParams {
	return VADParams{
		Confidence: 0.7,
		StartSecs:  0.2,
		StopSecs:   0.8,
		MinVolume:  0.6,
	}
}

// VADAnalyzer is the interface for voice activity detection implementations
type VADAnalyzer interface {
	// SetSampleRate configures the sample rate for audio processing
	SetSampleRate(sampleRate int) error

	// NumFramesRequired returns the number of samples needed per analysis
	NumFramesRequired() int

	// VoiceConfidence returns voice likelihood for the buffer, 0.0 to 1.0
	VoiceConfidence(buffer []byte) float32

	// AnalyzeAudio processes audio and returns the current VAD state
	AnalyzeAudio(buffer []byte) (VADState, error)

	// Restart resets the analyzer state
	Restart()
}

// EnergyVADAnalyzer detects speech from signal energy. It runs the same
// quiet/starting/speaking/stopping state machine a model-based analyzer
// would, with RMS volume standing in for a learned confidence score.
type EnergyVADAnalyzer struct {
	params     VADParams
	sampleRate int

	state        VADState
	startingSecs float32
	stoppingSecs float32

	mu sync.Mutex
}

// NewEnergyVADAnalyzer creates an analyzer with the given parameters
func NewEnergyVADAnalyzer(params VADParams) *EnergyVADAnalyzer {
	return &EnergyVADAnalyzer{
		params:     params,
		sampleRate: 16000,
		state:      VADStateQuiet,
	}
}

func (a *EnergyVADAnalyzer) SetSampleRate(sampleRate int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sampleRate = sampleRate
	return nil
}

// NumFramesRequired analyzes in 20ms windows
func (a *EnergyVADAnalyzer) NumFramesRequired() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sampleRate / 50
}

// VoiceConfidence maps RMS volume onto 0.0-1.0 against MinVolume
func (a *EnergyVADAnalyzer) VoiceConfidence(buffer []byte) float32 {
	rms := interruptions.RMSVolume(buffer)
	// Voice RMS rarely exceeds ~0.3 for normal speech; scale so that
	// MinVolume maps to full confidence
	scaled := float32(rms) / (a.params.MinVolume * 0.1)
	return float32(math.Min(float64(scaled), 1.0))
}

// AnalyzeAudio advances the state machine with one analysis window
func (a *EnergyVADAnalyzer) AnalyzeAudio(buffer []byte) (VADState, error) {
	confidence := a.VoiceConfidence(buffer)

	a.mu.Lock()
	defer a.mu.Unlock()

	windowSecs := float32(len(buffer)/2) / float32(a.sampleRate)
	voiced := confidence >= a.params.Confidence

	switch a.state {
	case VADStateQuiet:
		if voiced {
			a.state = VADStateStarting
			a.startingSecs = windowSecs
		}

	case VADStateStarting:
		if voiced {
			a.startingSecs += windowSecs
			if a.startingSecs >= a.params.StartSecs {
				a.state = VADStateSpeaking
			}
		} else {
			a.state = VADStateQuiet
			a.startingSecs = 0
		}

	case VADStateSpeaking:
		if !voiced {
			a.state = VADStateStopping
			a.stoppingSecs = windowSecs
		}

	case VADStateStopping:
		if voiced {
			a.state = VADStateSpeaking
			a.stoppingSecs = 0
		} else {
			a.stoppingSecs += windowSecs
			if a.stoppingSecs >= a.params.StopSecs {
				a.state = VADStateQuiet
				a.stoppingSecs = 0
			}
		}
	}

	return a.state, nil
}

// Restart resets the analyzer to quiet
func (a *EnergyVADAnalyzer) Restart() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.state = VADStateQuiet
	a.startingSecs = 0
	a.stoppingSecs = 0
}
