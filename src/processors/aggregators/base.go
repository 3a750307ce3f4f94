package aggregators

import (
	"strings"

	"github.com/voxkit-labs/voxkit-ai/src/frames"
	"github.com/voxkit-labs/voxkit-ai/src/interruptions"
	"github.com/voxkit-labs/voxkit-ai/src/processors"
	"github.com/voxkit-labs/voxkit-ai/src/services"
)

// LLMContextAggregator is the base for the user and assistant context
// aggregators. It accumulates text fragments and flushes them into the
// shared LLMContext under the aggregator's role.
type LLMContextAggregator struct {
	*processors.BaseProcessor

	context     *services.LLMContext
	role        string // "user" or "assistant"
	aggregation []string
	addSpaces   bool

	allowInterruptions bool
	strategies         []interruptions.InterruptionStrategy
}

// NewLLMContextAggregator creates a new base context aggregator
func NewLLMContextAggregator(name string, context *services.LLMContext, role string, handler processors.ProcessHandler) *LLMContextAggregator {
	agg := &LLMContextAggregator{
		context:     context,
		role:        role,
		aggregation: make([]string, 0),
		addSpaces:   true,
	}
	agg.BaseProcessor = processors.NewBaseProcessor(name, handler)
	return agg
}

// Reset clears the aggregation state
func (a *LLMContextAggregator) Reset() error {
	a.aggregation = a.aggregation[:0]
	return nil
}

// AggregationString concatenates all accumulated text
func (a *LLMContextAggregator) AggregationString() string {
	sep := ""
	if a.addSpaces {
		sep = " "
	}
	return strings.Join(a.aggregation, sep)
}

// SetAddSpaces controls whether fragments are joined with spaces.
// Streaming LLM tokens already carry their own spacing.
func (a *LLMContextAggregator) SetAddSpaces(addSpaces bool) {
	a.addSpaces = addSpaces
}

// AppendToAggregation adds text to the aggregation buffer
func (a *LLMContextAggregator) AppendToAggregation(text string) {
	a.aggregation = append(a.aggregation, text)
}

// HasAggregation reports whether any text has accumulated
func (a *LLMContextAggregator) HasAggregation() bool {
	return len(a.aggregation) > 0
}

// PushContextFrame pushes an LLMContextFrame in the given direction
func (a *LLMContextAggregator) PushContextFrame(direction frames.FrameDirection) error {
	return a.PushFrame(frames.NewLLMContextFrame(a.context), direction)
}

// Context returns the shared LLM context
func (a *LLMContextAggregator) Context() *services.LLMContext {
	return a.context
}

// Role returns the aggregator's role
func (a *LLMContextAggregator) Role() string {
	return a.role
}

// HandleStartFrame records the session's interruption configuration
func (a *LLMContextAggregator) HandleStartFrame(frame *frames.StartFrame) {
	a.allowInterruptions = frame.AllowInterruptions
}

// SetInterruptionStrategies configures how interruption decisions are made
func (a *LLMContextAggregator) SetInterruptionStrategies(strategies []interruptions.InterruptionStrategy) {
	a.strategies = strategies
}

// InterruptionStrategies returns the configured strategies
func (a *LLMContextAggregator) InterruptionStrategies() []interruptions.InterruptionStrategy {
	return a.strategies
}

// InterruptionsAllowed reports whether the session permits interruptions
func (a *LLMContextAggregator) InterruptionsAllowed() bool {
	return a.allowInterruptions
}
