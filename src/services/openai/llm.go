package openai

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/voxkit-labs/voxkit-ai/src/frames"
	"github.com/voxkit-labs/voxkit-ai/src/processors"
	"github.com/voxkit-labs/voxkit-ai/src/services"
)

// LLMService provides language model responses using the OpenAI chat
// completions API. Responses stream token by token into TextFrames so TTS
// can start speaking before the full response exists.
type LLMService struct {
	*processors.BaseProcessor
	client      openai.Client
	model       string
	temperature float64
	llmContext  *services.LLMContext
	ctx         context.Context
	cancel      context.CancelFunc

	// respMu guards respCancel: interruptions arrive on the system
	// handler goroutine while the data handler is blocked streaming
	respMu     sync.Mutex
	respCancel context.CancelFunc
}

// LLMConfig holds configuration for OpenAI
type LLMConfig struct {
	APIKey       string
	Model        string // e.g., "gpt-4o-mini"
	SystemPrompt string
	Temperature  float64
	BaseURL      string // override for tests
}

// NewLLMService creates a new OpenAI LLM service
func NewLLMService(config LLMConfig) *LLMService {
	if config.Model == "" {
		config.Model = "gpt-4o-mini"
	}
	if config.Temperature == 0 {
		config.Temperature = 0.7
	}

	opts := []option.RequestOption{option.WithAPIKey(config.APIKey)}
	if config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}

	s := &LLMService{
		client:      openai.NewClient(opts...),
		model:       config.Model,
		temperature: config.Temperature,
		llmContext:  services.NewLLMContext(config.SystemPrompt),
	}
	s.BaseProcessor = processors.NewBaseProcessor("OpenAILLM", s)
	return s
}

func (s *LLMService) SetModel(model string) {
	s.model = model
}

func (s *LLMService) Model() string {
	return s.model
}

func (s *LLMService) SetSystemPrompt(prompt string) {
	s.llmContext.SystemPrompt = prompt
}

func (s *LLMService) SetTemperature(temp float64) {
	s.temperature = temp
}

func (s *LLMService) Initialize(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.Log().Info("Initialized with model %s", s.model)
	return nil
}

func (s *LLMService) Cleanup() error {
	if s.cancel != nil {
		s.cancel()
	}
	return nil
}

// HandleFrame generates a streamed response for each incoming context frame
func (s *LLMService) HandleFrame(ctx context.Context, frame frames.Frame, direction frames.FrameDirection) error {
	if _, ok := frame.(*frames.InterruptionFrame); ok {
		s.cancelResponse()
		return s.PushFrame(frame, direction)
	}

	contextFrame, ok := frame.(*frames.LLMContextFrame)
	if !ok {
		return s.PushFrame(frame, direction)
	}

	llmContext, ok := contextFrame.Context.(*services.LLMContext)
	if !ok {
		return fmt.Errorf("unexpected context type %T", contextFrame.Context)
	}
	s.llmContext = llmContext

	s.Log().Debug("Generating response for %d messages", len(llmContext.Messages))

	genCtx := s.beginResponse(ctx)
	defer s.cancelResponse()

	s.PushFrame(frames.NewLLMFullResponseStartFrame(), frames.Downstream)
	if err := s.generateResponse(genCtx, llmContext); err != nil && !errors.Is(err, context.Canceled) {
		s.Log().Error("Error generating response: %v", err)
		s.PushFrame(frames.NewErrorFrame(err), frames.Upstream)
	}
	s.PushFrame(frames.NewLLMFullResponseEndFrame(), frames.Downstream)
	return nil
}

// beginResponse derives the cancellable context for one streamed response
func (s *LLMService) beginResponse(ctx context.Context) context.Context {
	genCtx, cancel := context.WithCancel(ctx)
	s.respMu.Lock()
	s.respCancel = cancel
	s.respMu.Unlock()
	return genCtx
}

// cancelResponse stops the in-flight completion stream, if any
func (s *LLMService) cancelResponse() {
	s.respMu.Lock()
	if s.respCancel != nil {
		s.respCancel()
		s.respCancel = nil
	}
	s.respMu.Unlock()
}

func (s *LLMService) generateResponse(ctx context.Context, llmContext *services.LLMContext) error {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(llmContext.Messages)+1)
	if llmContext.SystemPrompt != "" {
		messages = append(messages, openai.SystemMessage(llmContext.SystemPrompt))
	}
	for _, msg := range llmContext.Messages {
		switch msg.Role {
		case "assistant":
			messages = append(messages, openai.AssistantMessage(msg.Content))
		case "system":
			messages = append(messages, openai.SystemMessage(msg.Content))
		default:
			messages = append(messages, openai.UserMessage(msg.Content))
		}
	}

	stream := s.client.Chat.Completions.NewStreaming(ctx, openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(s.model),
		Messages:    messages,
		Temperature: openai.Float(s.temperature),
	})
	defer stream.Close()

	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		if err := s.PushFrame(frames.NewTextFrame(delta), frames.Downstream); err != nil {
			return err
		}
	}

	if err := stream.Err(); err != nil {
		return fmt.Errorf("chat completion stream failed: %w", err)
	}
	return nil
}
