package gemini

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/voxkit-labs/voxkit-ai/src/frames"
	"github.com/voxkit-labs/voxkit-ai/src/processors"
	"github.com/voxkit-labs/voxkit-ai/src/services"
	"google.golang.org/genai"
)

// LLMService provides language model responses using Google Gemini via
// the genai SDK. Interchangeable with the OpenAI service; pick whichever
// the deployment has credentials for.
type LLMService struct {
	*processors.BaseProcessor
	client      *genai.Client
	apiKey      string
	model       string
	temperature float64
	llmContext  *services.LLMContext

	// respMu guards respCancel: interruptions arrive on the system
	// handler goroutine while the data handler is blocked streaming
	respMu     sync.Mutex
	respCancel context.CancelFunc
}

// LLMConfig holds configuration for Gemini
type LLMConfig struct {
	APIKey       string
	Model        string // e.g., "gemini-2.0-flash"
	SystemPrompt string
	Temperature  float64
}

// NewLLMService creates a new Gemini LLM service
func NewLLMService(config LLMConfig) *LLMService {
	if config.Model == "" {
		config.Model = "gemini-2.0-flash"
	}
	if config.Temperature == 0 {
		config.Temperature = 0.7
	}

	s := &LLMService{
		apiKey:      config.APIKey,
		model:       config.Model,
		temperature: config.Temperature,
		llmContext:  services.NewLLMContext(config.SystemPrompt),
	}
	s.BaseProcessor = processors.NewBaseProcessor("GeminiLLM", s)
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

// Initialize creates the genai client
func (s *LLMService) Initialize(ctx context.Context) error {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  s.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return fmt.Errorf("failed to create genai client: %w", err)
	}
	s.client = client
	s.Log().Info("Initialized with model %s", s.model)
	return nil
}

func (s *LLMService) Cleanup() error {
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

	if s.client == nil {
		if err := s.Initialize(ctx); err != nil {
			s.PushFrame(frames.NewErrorFrame(err), frames.Upstream)
			return nil
		}
	}

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

// cancelResponse stops the in-flight generation stream, if any
func (s *LLMService) cancelResponse() {
	s.respMu.Lock()
	if s.respCancel != nil {
		s.respCancel()
		s.respCancel = nil
	}
	s.respMu.Unlock()
}

func (s *LLMService) generateResponse(ctx context.Context, llmContext *services.LLMContext) error {
	contents := make([]*genai.Content, 0, len(llmContext.Messages))
	for _, msg := range llmContext.Messages {
		role := genai.Role(genai.RoleUser)
		if msg.Role == "assistant" {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(msg.Content, role))
	}

	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(s.temperature)),
	}
	if llmContext.SystemPrompt != "" {
		config.SystemInstruction = genai.NewContentFromText(llmContext.SystemPrompt, genai.RoleUser)
	}

	for resp, err := range s.client.Models.GenerateContentStream(ctx, s.model, contents, config) {
		if err != nil {
			return fmt.Errorf("generate content stream failed: %w", err)
		}
		text := resp.Text()
		if text == "" {
			continue
		}
		if err := s.PushFrame(frames.NewTextFrame(text), frames.Downstream); err != nil {
			return err
		}
	}
	return nil
}
