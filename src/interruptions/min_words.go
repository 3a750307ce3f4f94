package interruptions

import (
	"strings"

	"github.com/voxkit-labs/voxkit-ai/src/logger"
)

// MinWordsInterruptionStrategy interrupts the agent only once the user has
// spoken at least a minimum number of words. Filters out backchannel noise
// ("uh", "mm") that should not cut the agent off.
type MinWordsInterruptionStrategy struct {
	BaseInterruptionStrategy
	minWords int
	text     strings.Builder
}

// NewMinWordsInterruptionStrategy creates a new minimum words strategy
func NewMinWordsInterruptionStrategy(minWords int) *MinWordsInterruptionStrategy {
	return &MinWordsInterruptionStrategy{minWords: minWords}
}

// AppendText accumulates transcribed user text for word counting
func (m *MinWordsInterruptionStrategy) AppendText(text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.text.WriteString(text)
	m.text.WriteString(" ")
	return nil
}

// ShouldInterrupt checks if the minimum word count has been reached
func (m *MinWordsInterruptionStrategy) ShouldInterrupt() (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	wordCount := len(strings.Fields(m.text.String()))
	interrupt := wordCount >= m.minWords

	logger.Debug("[MinWordsStrategy] should_interrupt=%v num_spoken_words=%d min_words=%d",
		interrupt, wordCount, m.minWords)

	return interrupt, nil
}

// Reset clears the accumulated text for the next analysis cycle
func (m *MinWordsInterruptionStrategy) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.text.Reset()
	return nil
}
