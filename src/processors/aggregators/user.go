package aggregators

import (
	"context"
	"sync"
	"time"

	"github.com/voxkit-labs/voxkit-ai/src/frames"
	"github.com/voxkit-labs/voxkit-ai/src/services"
)

// UserAggregatorParams holds configuration for the user aggregator
type UserAggregatorParams struct {
	// AggregationTimeout flushes accumulated text when no VAD events
	// arrive and the STT stream goes quiet (default: 500ms)
	AggregationTimeout time.Duration
}

// DefaultUserAggregatorParams returns default parameters
func DefaultUserAggregatorParams() *UserAggregatorParams {
	return &UserAggregatorParams{
		AggregationTimeout: 500 * time.Millisecond,
	}
}

// LLMUserAggregator accumulates final transcriptions into the user side of
// the conversation context and decides when the accumulated turn should be
// handed to the LLM. It also owns the interruption decision: if the agent
// is speaking when the user's turn completes, the configured strategies
// decide whether to cut the agent off or discard the input.
type LLMUserAggregator struct {
	*LLMContextAggregator

	userSpeaking bool
	botSpeaking  bool
	mu           sync.Mutex

	flushTimer *time.Timer
	params     *UserAggregatorParams
}

// NewLLMUserAggregator creates a new user aggregator
func NewLLMUserAggregator(llmContext *services.LLMContext, params *UserAggregatorParams) *LLMUserAggregator {
	if params == nil {
		params = DefaultUserAggregatorParams()
	}

	u := &LLMUserAggregator{params: params}
	u.LLMContextAggregator = NewLLMContextAggregator("LLMUserAggregator", llmContext, "user", u)
	return u
}

// HandleFrame processes frames for user aggregation
func (u *LLMUserAggregator) HandleFrame(ctx context.Context, frame frames.Frame, direction frames.FrameDirection) error {
	switch f := frame.(type) {
	case *frames.StartFrame:
		u.HandleStartFrame(f)
		u.Log().Debug("Interruptions: allowed=%v strategies=%d", u.InterruptionsAllowed(), len(u.InterruptionStrategies()))
		return u.PushFrame(frame, direction)

	case *frames.EndFrame:
		u.stopFlushTimer()
		return u.PushFrame(frame, direction)

	case *frames.TTSStartedFrame:
		u.mu.Lock()
		u.botSpeaking = true
		u.mu.Unlock()
		return u.PushFrame(frame, direction)

	case *frames.TTSStoppedFrame:
		u.mu.Lock()
		u.botSpeaking = false
		u.mu.Unlock()
		return u.PushFrame(frame, direction)

	case *frames.UserStartedSpeakingFrame:
		u.mu.Lock()
		u.userSpeaking = true
		u.mu.Unlock()
		u.stopFlushTimer()
		return u.PushFrame(frame, direction)

	case *frames.UserStoppedSpeakingFrame:
		u.mu.Lock()
		u.userSpeaking = false
		u.mu.Unlock()
		if u.HasAggregation() {
			if err := u.pushAggregation(); err != nil {
				u.Log().Error("Error pushing aggregation: %v", err)
			}
		}
		return u.PushFrame(frame, direction)

	case *frames.TranscriptionFrame:
		return u.handleTranscription(f)

	case *frames.AudioFrame:
		// Feed raw audio to audio-based interruption strategies, then
		// consume: audio has no business downstream of the STT stage.
		for _, strategy := range u.InterruptionStrategies() {
			if err := strategy.AppendAudio(f.Data, f.SampleRate); err != nil {
				u.Log().Error("Error appending audio to strategy: %v", err)
			}
		}
		return nil
	}

	return u.PushFrame(frame, direction)
}

func (u *LLMUserAggregator) handleTranscription(frame *frames.TranscriptionFrame) error {
	if frame.Text == "" {
		return nil
	}

	for _, strategy := range u.InterruptionStrategies() {
		if err := strategy.AppendText(frame.Text); err != nil {
			u.Log().Error("Error appending text to strategy: %v", err)
		}
	}

	// Interim results only feed the strategies; the final transcription
	// carries the full revised utterance.
	if !frame.IsFinal {
		return nil
	}

	u.AppendToAggregation(frame.Text)
	u.Log().Debug("Aggregated final transcription: %q", frame.Text)

	u.mu.Lock()
	speaking := u.userSpeaking
	u.mu.Unlock()

	if !speaking {
		// No VAD signal pending. Flush after a grace period so late
		// transcription fragments of the same turn are not split
		// across two LLM calls.
		u.resetFlushTimer()
	}

	// Transcriptions are consumed here; downstream sees LLMContextFrames
	return nil
}

// pushAggregation flushes accumulated user text, consulting interruption
// strategies when the agent is currently speaking
func (u *LLMUserAggregator) pushAggregation() error {
	u.stopFlushTimer()

	if !u.HasAggregation() {
		return nil
	}

	u.mu.Lock()
	botSpeaking := u.botSpeaking
	u.mu.Unlock()

	if botSpeaking && u.InterruptionsAllowed() {
		interrupt := len(u.InterruptionStrategies()) == 0 // no strategies: any speech interrupts
		for _, strategy := range u.InterruptionStrategies() {
			ok, err := strategy.ShouldInterrupt()
			if err != nil {
				u.Log().Error("Strategy error: %v", err)
				continue
			}
			if ok {
				interrupt = true
				break
			}
		}

		for _, strategy := range u.InterruptionStrategies() {
			if err := strategy.Reset(); err != nil {
				u.Log().Error("Strategy reset error: %v", err)
			}
		}

		if !interrupt {
			u.Log().Debug("Interruption conditions not met, discarding input %q", u.AggregationString())
			return u.Reset()
		}

		u.Log().Info("User interrupted agent speech")
		if err := u.PushFrame(frames.NewInterruptionTaskFrame(), frames.Upstream); err != nil {
			return err
		}
	}

	return u.processAggregation()
}

// processAggregation moves the aggregation into the context and triggers the LLM
func (u *LLMUserAggregator) processAggregation() error {
	text := u.AggregationString()
	if err := u.Reset(); err != nil {
		return err
	}

	u.Log().Debug("User turn complete: %q", text)
	u.Context().AddUserMessage(text)
	return u.PushContextFrame(frames.Downstream)
}

func (u *LLMUserAggregator) resetFlushTimer() {
	u.stopFlushTimer()
	u.flushTimer = time.AfterFunc(u.params.AggregationTimeout, func() {
		if err := u.QueueFrame(frames.NewUserStoppedSpeakingFrame(), frames.Downstream); err != nil {
			u.Log().Error("Error queueing flush: %v", err)
		}
	})
}

func (u *LLMUserAggregator) stopFlushTimer() {
	if u.flushTimer != nil {
		u.flushTimer.Stop()
		u.flushTimer = nil
	}
}
