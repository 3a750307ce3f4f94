package vad

import (
	"context"
	"sync"

	"github.com/voxkit-labs/voxkit-ai/src/frames"
	"github.com/voxkit-labs/voxkit-ai/src/processors"
)

// VADInputProcessor accumulates audio and runs voice activity detection.
// Emits UserStartedSpeakingFrame when the user starts speaking and
// UserStoppedSpeakingFrame when they stop. Audio frames pass through
// untouched so the STT stage still sees everything.
type VADInputProcessor struct {
	*processors.BaseProcessor
	analyzer VADAnalyzer

	audioBuffer []byte
	bufferMu    sync.Mutex

	currentState VADState
}

// NewVADInputProcessor creates a new VAD input processor
func NewVADInputProcessor(analyzer VADAnalyzer) *VADInputProcessor {
	p := &VADInputProcessor{
		analyzer:     analyzer,
		currentState: VADStateQuiet,
	}
	p.BaseProcessor = processors.NewBaseProcessor("VADInput", p)
	return p
}

// HandleFrame processes frames from the room input
func (p *VADInputProcessor) HandleFrame(ctx context.Context, frame frames.Frame, direction frames.FrameDirection) error {
	switch f := frame.(type) {
	case *frames.AudioFrame:
		return p.handleAudioFrame(f, direction)

	case *frames.StartFrame:
		if f.SampleRate > 0 {
			if err := p.analyzer.SetSampleRate(f.SampleRate); err != nil {
				p.Log().Error("Error setting VAD sample rate: %v", err)
			}
		}

	case *frames.EndFrame:
		p.analyzer.Restart()
	}

	return p.PushFrame(frame, direction)
}

func (p *VADInputProcessor) handleAudioFrame(frame *frames.AudioFrame, direction frames.FrameDirection) error {
	p.bufferMu.Lock()
	p.audioBuffer = append(p.audioBuffer, frame.Data...)

	requiredBytes := p.analyzer.NumFramesRequired() * 2 // int16 samples

	for len(p.audioBuffer) >= requiredBytes {
		chunk := p.audioBuffer[:requiredBytes]
		p.audioBuffer = p.audioBuffer[requiredBytes:]

		newState, err := p.analyzer.AnalyzeAudio(chunk)
		if err != nil {
			p.Log().Error("VAD analysis error: %v", err)
			continue
		}

		previous := p.currentState
		p.currentState = newState

		if previous != newState {
			if err := p.emitTransition(previous, newState); err != nil {
				p.Log().Error("Error emitting VAD transition: %v", err)
			}
		}
	}
	p.bufferMu.Unlock()

	return p.PushFrame(frame, direction)
}

func (p *VADInputProcessor) emitTransition(from, to VADState) error {
	p.Log().Debug("VAD transition: %s -> %s", from, to)

	// Only the speaking<->quiet edges matter downstream; the
	// starting/stopping hysteresis states are internal
	if to == VADStateSpeaking {
		return p.PushFrame(frames.NewUserStartedSpeakingFrame(), frames.Downstream)
	}
	if to == VADStateQuiet && (from == VADStateSpeaking || from == VADStateStopping) {
		return p.PushFrame(frames.NewUserStoppedSpeakingFrame(), frames.Downstream)
	}
	return nil
}
