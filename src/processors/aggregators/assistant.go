package aggregators

import (
	"context"

	"github.com/voxkit-labs/voxkit-ai/src/frames"
	"github.com/voxkit-labs/voxkit-ai/src/services"
)

// LLMAssistantAggregator records what the agent actually said into the
// conversation context. Text fragments stream through between the LLM
// response markers; on the end marker the full response is committed as
// one assistant message. Interruptions commit whatever was produced so
// far, so the context reflects the truncated utterance.
type LLMAssistantAggregator struct {
	*LLMContextAggregator

	inResponse bool
}

// NewLLMAssistantAggregator creates a new assistant aggregator
func NewLLMAssistantAggregator(llmContext *services.LLMContext) *LLMAssistantAggregator {
	a := &LLMAssistantAggregator{}
	a.LLMContextAggregator = NewLLMContextAggregator("LLMAssistantAggregator", llmContext, "assistant", a)
	a.SetAddSpaces(false)
	return a
}

// HandleFrame processes frames for assistant aggregation
func (a *LLMAssistantAggregator) HandleFrame(ctx context.Context, frame frames.Frame, direction frames.FrameDirection) error {
	switch f := frame.(type) {
	case *frames.LLMFullResponseStartFrame:
		a.inResponse = true
		if err := a.Reset(); err != nil {
			return err
		}
		return a.PushFrame(frame, direction)

	case *frames.LLMFullResponseEndFrame:
		a.inResponse = false
		a.commit()
		return a.PushFrame(frame, direction)

	case *frames.TextFrame:
		if a.inResponse {
			a.AppendToAggregation(f.Text)
		}
		return a.PushFrame(frame, direction)

	case *frames.SpeakFrame:
		// Scripted speech is part of the conversation even though no
		// LLM produced it
		a.Context().AddAssistantMessage(f.Text)
		return a.PushFrame(frame, direction)

	case *frames.InterruptionFrame:
		a.inResponse = false
		a.commit()
		return a.PushFrame(frame, direction)
	}

	return a.PushFrame(frame, direction)
}

func (a *LLMAssistantAggregator) commit() {
	if !a.HasAggregation() {
		return
	}
	text := a.AggregationString()
	a.Context().AddAssistantMessage(text)
	a.Log().Debug("Assistant turn committed: %q", text)
	a.Reset()
}
