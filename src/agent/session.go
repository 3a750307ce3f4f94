package agent

import (
	"context"
	"fmt"
	"sync"

	"github.com/voxkit-labs/voxkit-ai/src/audio/vad"
	"github.com/voxkit-labs/voxkit-ai/src/frames"
	"github.com/voxkit-labs/voxkit-ai/src/interruptions"
	"github.com/voxkit-labs/voxkit-ai/src/logger"
	"github.com/voxkit-labs/voxkit-ai/src/pipeline"
	"github.com/voxkit-labs/voxkit-ai/src/processors"
	"github.com/voxkit-labs/voxkit-ai/src/processors/aggregators"
	"github.com/voxkit-labs/voxkit-ai/src/room"
	"github.com/voxkit-labs/voxkit-ai/src/services"
)

// SessionOptions configures an AgentSession. STT, LLM and TTS are required
// and there is exactly one of each per session.
type SessionOptions struct {
	STT services.STTService
	LLM services.LLMService
	TTS services.TTSService

	// VAD is optional. When nil an energy-based analyzer is used.
	VAD vad.VADAnalyzer

	AllowInterruptions     bool
	InterruptionStrategies []interruptions.InterruptionStrategy

	// SampleRate of room audio. Defaults to 48000.
	SampleRate int
}

// AgentSession wires one STT, one LLM and one TTS provider into a running
// pipeline attached to a room. Start blocks until the pipeline is ready to
// accept audio; Say enqueues scripted speech that bypasses the LLM.
type AgentSession struct {
	opts SessionOptions
	log  *logger.Logger

	mu      sync.Mutex
	started bool
	closed  bool

	llmContext *services.LLMContext
	task       *pipeline.PipelineTask
	cancel     context.CancelFunc
	runErr     chan error
}

// NewSession creates a session from the given providers. Exactly one STT,
// one LLM and one TTS must be supplied.
func NewSession(opts SessionOptions) (*AgentSession, error) {
	if opts.STT == nil {
		return nil, fmt.Errorf("session requires an STT service")
	}
	if opts.LLM == nil {
		return nil, fmt.Errorf("session requires an LLM service")
	}
	if opts.TTS == nil {
		return nil, fmt.Errorf("session requires a TTS service")
	}
	if opts.SampleRate == 0 {
		opts.SampleRate = 48000
	}

	return &AgentSession{
		opts:   opts,
		log:    logger.WithPrefix("AgentSession"),
		runErr: make(chan error, 1),
	}, nil
}

// STT returns the session's speech-to-text service
func (s *AgentSession) STT() services.STTService { return s.opts.STT }

// LLM returns the session's language model service
func (s *AgentSession) LLM() services.LLMService { return s.opts.LLM }

// TTS returns the session's text-to-speech service
func (s *AgentSession) TTS() services.TTSService { return s.opts.TTS }

// Start builds the processing pipeline around the room's input and output,
// primes the LLM context with the agent's instructions, and runs the
// pipeline. It blocks until the StartFrame has traversed the whole chain,
// so when Start returns the session can synthesize and receive audio.
func (s *AgentSession) Start(ctx context.Context, agent *Agent, rm room.Room) error {
	if agent == nil {
		return fmt.Errorf("session requires an agent")
	}
	if rm == nil {
		return fmt.Errorf("session requires a connected room")
	}

	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("session already started")
	}
	s.started = true
	s.mu.Unlock()

	for _, svc := range []services.AIService{s.opts.STT, s.opts.LLM, s.opts.TTS} {
		if err := svc.Initialize(ctx); err != nil {
			s.abortStart()
			return fmt.Errorf("initializing %s: %w", svc.Name(), err)
		}
	}

	s.llmContext = services.NewLLMContext(agent.Instructions())

	userAgg := aggregators.NewLLMUserAggregator(s.llmContext, nil)
	userAgg.SetInterruptionStrategies(s.opts.InterruptionStrategies)
	assistantAgg := aggregators.NewLLMAssistantAggregator(s.llmContext)

	analyzer := s.opts.VAD
	if analyzer == nil {
		analyzer = vad.NewEnergyVADAnalyzer(vad.DefaultVADParams())
	}

	// The assistant aggregator sits between the LLM and the TTS: the TTS
	// consumes text once it has synthesized it, so the aggregator must see
	// the streamed response first to commit it to the context.
	pipe := pipeline.NewPipeline([]processors.FrameProcessor{
		rm.Input(),
		vad.NewVADInputProcessor(analyzer),
		s.opts.STT,
		userAgg,
		s.opts.LLM,
		assistantAgg,
		s.opts.TTS,
		rm.Output(),
	})

	task := pipeline.NewPipelineTaskWithConfig(pipe, &pipeline.PipelineTaskConfig{
		AllowInterruptions: s.opts.AllowInterruptions,
		SampleRate:         s.opts.SampleRate,
	})

	runCtx, cancel := context.WithCancel(ctx)
	runErr := make(chan error, 1)

	s.mu.Lock()
	s.task = task
	s.cancel = cancel
	s.runErr = runErr
	s.mu.Unlock()

	go func() {
		runErr <- task.Run(runCtx)
	}()

	if err := task.WaitUntilReady(ctx); err != nil {
		cancel()
		s.abortStart()
		return fmt.Errorf("starting session pipeline: %w", err)
	}

	s.log.Info("Session started in room %s (llm=%s)", rm.Name(), s.opts.LLM.Model())
	return nil
}

// abortStart rolls the session back to its pre-start state so a failed
// Start leaves Say and Close inert and the session startable again once
// the provider recovers.
func (s *AgentSession) abortStart() {
	s.mu.Lock()
	s.started = false
	s.task = nil
	s.cancel = nil
	s.mu.Unlock()
}

// Say enqueues scripted speech. The text is synthesized verbatim by the TTS
// service without involving the LLM, and recorded in the conversation
// context as an assistant message.
func (s *AgentSession) Say(text string) error {
	s.mu.Lock()
	task := s.task
	s.mu.Unlock()

	if task == nil {
		return fmt.Errorf("session not started")
	}
	return task.QueueFrame(frames.NewSpeakFrame(text))
}

// Context returns the conversation context shared by the aggregators
func (s *AgentSession) Context() *services.LLMContext {
	return s.llmContext
}

// Wait blocks until the pipeline task finishes and returns its error
func (s *AgentSession) Wait() error {
	s.mu.Lock()
	runErr := s.runErr
	s.mu.Unlock()
	return <-runErr
}

// Close drains the pipeline and releases the providers
func (s *AgentSession) Close() error {
	s.mu.Lock()
	if s.task == nil || s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	task := s.task
	cancel := s.cancel
	runErr := s.runErr
	s.mu.Unlock()

	if err := task.QueueFrame(frames.NewEndFrame()); err != nil {
		task.Cancel()
	}
	err := <-runErr
	if cancel != nil {
		cancel()
	}

	for _, svc := range []services.AIService{s.opts.STT, s.opts.LLM, s.opts.TTS} {
		if cerr := svc.Cleanup(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}
