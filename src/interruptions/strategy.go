package interruptions

import "sync"

// InterruptionStrategy determines when user speech should interrupt the
// agent's own speech. Strategies accumulate audio and/or text while the
// user talks and are consulted once the user stops.
type InterruptionStrategy interface {
	// AppendAudio adds audio data for analysis.
	// Not all strategies need to handle audio.
	AppendAudio(audio []byte, sampleRate int) error

	// AppendText adds text data for analysis.
	// Not all strategies need to handle text.
	AppendText(text string) error

	// ShouldInterrupt reports whether the accumulated audio/text
	// warrants interrupting the agent.
	ShouldInterrupt() (bool, error)

	// Reset clears the accumulated state
	Reset() error
}

// BaseInterruptionStrategy provides no-op audio/text handling so concrete
// strategies only implement what they care about
type BaseInterruptionStrategy struct {
	mu sync.Mutex
}

func (b *BaseInterruptionStrategy) AppendAudio(audio []byte, sampleRate int) error {
	return nil
}

func (b *BaseInterruptionStrategy) AppendText(text string) error {
	return nil
}

func (b *BaseInterruptionStrategy) Reset() error {
	return nil
}
