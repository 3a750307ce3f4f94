package aggregators

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/voxkit-labs/voxkit-ai/src/frames"
	"github.com/voxkit-labs/voxkit-ai/src/interruptions"
	"github.com/voxkit-labs/voxkit-ai/src/processors"
	"github.com/voxkit-labs/voxkit-ai/src/services"
)

// frameRecorder captures frames queued to it
type frameRecorder struct {
	*processors.BaseProcessor

	mu     sync.Mutex
	frames []frames.Frame
}

func newFrameRecorder(t *testing.T, name string) *frameRecorder {
	t.Helper()
	r := &frameRecorder{}
	r.BaseProcessor = processors.NewBaseProcessor(name, r)
	require.NoError(t, r.Start(context.Background()))
	t.Cleanup(func() { r.Stop() })
	return r
}

func (r *frameRecorder) HandleFrame(ctx context.Context, frame frames.Frame, direction frames.FrameDirection) error {
	r.mu.Lock()
	r.frames = append(r.frames, frame)
	r.mu.Unlock()
	return nil
}

func (r *frameRecorder) received() []frames.Frame {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]frames.Frame, len(r.frames))
	copy(out, r.frames)
	return out
}

func (r *frameRecorder) waitFor(t *testing.T, match func(frames.Frame) bool) frames.Frame {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		for _, f := range r.received() {
			if match(f) {
				return f
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for frame on %s", r.Name())
	return nil
}

func isContextFrame(f frames.Frame) bool {
	_, ok := f.(*frames.LLMContextFrame)
	return ok
}

func isInterruptionTask(f frames.Frame) bool {
	_, ok := f.(*frames.InterruptionTaskFrame)
	return ok
}

// userHarness wires head <- userAgg -> sink so both directions are observable
type userHarness struct {
	agg  *LLMUserAggregator
	ctx  *services.LLMContext
	head *frameRecorder
	sink *frameRecorder
}

func newUserHarness(t *testing.T) *userHarness {
	t.Helper()
	llmContext := services.NewLLMContext("be brief")
	agg := NewLLMUserAggregator(llmContext, nil)

	head := newFrameRecorder(t, "head")
	sink := newFrameRecorder(t, "sink")
	head.Link(agg)
	agg.Link(sink)

	return &userHarness{agg: agg, ctx: llmContext, head: head, sink: sink}
}

func (h *userHarness) handle(t *testing.T, frame frames.Frame) {
	t.Helper()
	require.NoError(t, h.agg.HandleFrame(context.Background(), frame, frames.Downstream))
}

func TestLLMUserAggregator_FinalTranscriptionFlushedOnTurnEnd(t *testing.T) {
	h := newUserHarness(t)

	h.handle(t, frames.NewUserStartedSpeakingFrame())
	h.handle(t, frames.NewTranscriptionFrame("what is", false)) // interim, ignored
	h.handle(t, frames.NewTranscriptionFrame("what is the weather", true))
	h.handle(t, frames.NewUserStoppedSpeakingFrame())

	h.sink.waitFor(t, isContextFrame)

	messages := h.ctx.Messages
	require.Len(t, messages, 1)
	assert.Equal(t, "user", messages[0].Role)
	assert.Equal(t, "what is the weather", messages[0].Content)
}

func TestLLMUserAggregator_MultipleFinalsJoined(t *testing.T) {
	h := newUserHarness(t)

	h.handle(t, frames.NewUserStartedSpeakingFrame())
	h.handle(t, frames.NewTranscriptionFrame("turn on", true))
	h.handle(t, frames.NewTranscriptionFrame("the lights", true))
	h.handle(t, frames.NewUserStoppedSpeakingFrame())

	h.sink.waitFor(t, isContextFrame)

	messages := h.ctx.Messages
	require.Len(t, messages, 1)
	assert.Equal(t, "turn on the lights", messages[0].Content)
}

func TestLLMUserAggregator_EmptyTurnPushesNothing(t *testing.T) {
	h := newUserHarness(t)

	h.handle(t, frames.NewUserStartedSpeakingFrame())
	h.handle(t, frames.NewUserStoppedSpeakingFrame())

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, h.ctx.Messages)
	for _, f := range h.sink.received() {
		assert.False(t, isContextFrame(f))
	}
}

func TestLLMUserAggregator_TranscriptionsConsumed(t *testing.T) {
	h := newUserHarness(t)

	h.handle(t, frames.NewTranscriptionFrame("hello there", true))

	time.Sleep(50 * time.Millisecond)
	for _, f := range h.sink.received() {
		_, isTranscription := f.(*frames.TranscriptionFrame)
		assert.False(t, isTranscription, "transcriptions must not leak downstream")
	}
}

func TestLLMUserAggregator_InterruptsWithoutStrategies(t *testing.T) {
	h := newUserHarness(t)

	h.handle(t, frames.NewStartFrameWithConfig(true, 16000))
	h.handle(t, frames.NewTTSStartedFrame())
	h.handle(t, frames.NewUserStartedSpeakingFrame())
	h.handle(t, frames.NewTranscriptionFrame("stop", true))
	h.handle(t, frames.NewUserStoppedSpeakingFrame())

	// No strategies configured: any speech while the bot talks interrupts
	h.head.waitFor(t, isInterruptionTask)
	h.sink.waitFor(t, isContextFrame)
}

func TestLLMUserAggregator_MinWordsStrategyGate(t *testing.T) {
	t.Run("short utterance discarded", func(t *testing.T) {
		h := newUserHarness(t)
		h.agg.SetInterruptionStrategies([]interruptions.InterruptionStrategy{
			interruptions.NewMinWordsInterruptionStrategy(3),
		})

		h.handle(t, frames.NewStartFrameWithConfig(true, 16000))
		h.handle(t, frames.NewTTSStartedFrame())
		h.handle(t, frames.NewUserStartedSpeakingFrame())
		h.handle(t, frames.NewTranscriptionFrame("uh", true))
		h.handle(t, frames.NewUserStoppedSpeakingFrame())

		time.Sleep(50 * time.Millisecond)
		assert.Empty(t, h.ctx.Messages)
		for _, f := range h.head.received() {
			assert.False(t, isInterruptionTask(f))
		}
	})

	t.Run("long utterance interrupts", func(t *testing.T) {
		h := newUserHarness(t)
		h.agg.SetInterruptionStrategies([]interruptions.InterruptionStrategy{
			interruptions.NewMinWordsInterruptionStrategy(3),
		})

		h.handle(t, frames.NewStartFrameWithConfig(true, 16000))
		h.handle(t, frames.NewTTSStartedFrame())
		h.handle(t, frames.NewUserStartedSpeakingFrame())
		h.handle(t, frames.NewTranscriptionFrame("no stop that now", true))
		h.handle(t, frames.NewUserStoppedSpeakingFrame())

		h.head.waitFor(t, isInterruptionTask)
		require.Len(t, h.ctx.Messages, 1)
		assert.Equal(t, "no stop that now", h.ctx.Messages[0].Content)
	})
}

func TestLLMUserAggregator_NoInterruptionWhenDisallowed(t *testing.T) {
	h := newUserHarness(t)

	h.handle(t, frames.NewStartFrameWithConfig(false, 16000))
	h.handle(t, frames.NewTTSStartedFrame())
	h.handle(t, frames.NewUserStartedSpeakingFrame())
	h.handle(t, frames.NewTranscriptionFrame("stop talking please", true))
	h.handle(t, frames.NewUserStoppedSpeakingFrame())

	// Turn still reaches the LLM, but no interruption is raised
	h.sink.waitFor(t, isContextFrame)
	for _, f := range h.head.received() {
		assert.False(t, isInterruptionTask(f))
	}
}

func TestLLMUserAggregator_AudioConsumedAndFedToStrategies(t *testing.T) {
	h := newUserHarness(t)
	strategy := interruptions.NewVolumeInterruptionStrategy(nil)
	h.agg.SetInterruptionStrategies([]interruptions.InterruptionStrategy{strategy})

	h.handle(t, frames.NewAudioFrame(make([]byte, 320), 16000, 1))

	time.Sleep(20 * time.Millisecond)
	for _, f := range h.sink.received() {
		_, isAudio := f.(*frames.AudioFrame)
		assert.False(t, isAudio, "raw audio must not leak past the aggregator")
	}
}

func TestLLMUserAggregator_FlushTimerFiresWithoutVAD(t *testing.T) {
	llmContext := services.NewLLMContext("be brief")
	agg := NewLLMUserAggregator(llmContext, &UserAggregatorParams{
		AggregationTimeout: 30 * time.Millisecond,
	})

	sink := newFrameRecorder(t, "sink")
	agg.Link(sink)
	require.NoError(t, agg.Start(context.Background()))
	t.Cleanup(func() { agg.Stop() })

	// Final transcription with no surrounding VAD events: the grace
	// timer flushes the turn on its own.
	require.NoError(t, agg.HandleFrame(context.Background(),
		frames.NewTranscriptionFrame("hello", true), frames.Downstream))

	sink.waitFor(t, isContextFrame)
	require.Len(t, llmContext.Messages, 1)
	assert.Equal(t, "hello", llmContext.Messages[0].Content)
}
