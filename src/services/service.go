package services

import (
	"context"

	"github.com/voxkit-labs/voxkit-ai/src/processors"
)

// AIService is the base interface for all capability providers (STT, TTS, LLM).
// Every provider is also a frame processor so it can sit in a pipeline.
type AIService interface {
	processors.FrameProcessor

	// Service lifecycle
	Initialize(ctx context.Context) error
	Cleanup() error
}

// STTService converts speech to text
type STTService interface {
	AIService

	SetLanguage(lang string)
	SetModel(model string)
}

// TTSService converts text to speech
type TTSService interface {
	AIService

	SetVoice(voiceID string)
	SetModel(model string)
}

// LLMService produces text responses from conversational context
type LLMService interface {
	AIService

	SetModel(model string)
	SetSystemPrompt(prompt string)
	SetTemperature(temp float64)

	// Model returns the configured model identifier
	Model() string
}

// LLMMessage represents a message in the conversation
type LLMMessage struct {
	Role    string // "system", "user" or "assistant"
	Content string
}

// LLMContext holds the conversation state shared between the aggregators
// and the LLM service. Not safe for concurrent mutation; the pipeline
// guarantees single-writer access.
type LLMContext struct {
	Messages     []LLMMessage
	SystemPrompt string
	Model        string
	Temperature  float64
}

// NewLLMContext creates a new LLM context with the given system prompt
func NewLLMContext(systemPrompt string) *LLMContext {
	return &LLMContext{
		Messages:     make([]LLMMessage, 0),
		SystemPrompt: systemPrompt,
		Temperature:  0.7,
	}
}

func (c *LLMContext) AddUserMessage(content string) {
	c.Messages = append(c.Messages, LLMMessage{Role: "user", Content: content})
}

func (c *LLMContext) AddAssistantMessage(content string) {
	c.Messages = append(c.Messages, LLMMessage{Role: "assistant", Content: content})
}

func (c *LLMContext) AddSystemMessage(content string) {
	c.Messages = append(c.Messages, LLMMessage{Role: "system", Content: content})
}

func (c *LLMContext) Clear() {
	c.Messages = c.Messages[:0]
}

// Clone creates a deep copy of the context
func (c *LLMContext) Clone() *LLMContext {
	clone := &LLMContext{
		SystemPrompt: c.SystemPrompt,
		Model:        c.Model,
		Temperature:  c.Temperature,
		Messages:     make([]LLMMessage, len(c.Messages)),
	}
	copy(clone.Messages, c.Messages)
	return clone
}
