package pipeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/voxkit-labs/voxkit-ai/src/frames"
	"github.com/voxkit-labs/voxkit-ai/src/logger"
)

// PipelineTaskConfig holds configuration for a pipeline task
type PipelineTaskConfig struct {
	AllowInterruptions bool
	SampleRate         int
}

// DefaultPipelineTaskConfig returns default configuration
func DefaultPipelineTaskConfig() *PipelineTaskConfig {
	return &PipelineTaskConfig{
		AllowInterruptions: true,
	}
}

// PipelineTask orchestrates the execution of a pipeline: it bootstraps the
// chain with a StartFrame, relays user-queued frames into the source, and
// reacts to lifecycle frames reaching the sink.
type PipelineTask struct {
	pipeline *Pipeline
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	config *PipelineTaskConfig

	userFrameQueue chan frames.Frame

	started  bool
	finished bool
	ready    chan struct{}
	mu       sync.RWMutex

	onStarted  func()
	onFinished func()
	onError    func(error)
}

// NewPipelineTask creates a new pipeline task with default configuration
func NewPipelineTask(pipeline *Pipeline) *PipelineTask {
	return NewPipelineTaskWithConfig(pipeline, DefaultPipelineTaskConfig())
}

// NewPipelineTaskWithConfig creates a new pipeline task with custom configuration
func NewPipelineTaskWithConfig(pipeline *Pipeline, config *PipelineTaskConfig) *PipelineTask {
	task := &PipelineTask{
		pipeline:       pipeline,
		config:         config,
		userFrameQueue: make(chan frames.Frame, 100),
		ready:          make(chan struct{}),
	}

	pipeline.Initialize(task)
	return task
}

// OnStarted sets a callback for when the StartFrame has traversed the pipeline
func (t *PipelineTask) OnStarted(callback func()) {
	t.onStarted = callback
}

// OnFinished sets a callback for when the pipeline finishes
func (t *PipelineTask) OnFinished(callback func()) {
	t.onFinished = callback
}

// OnError sets a callback for errors surfaced by any processor
func (t *PipelineTask) OnError(callback func(error)) {
	t.onError = callback
}

// QueueFrame adds a frame to be processed by the pipeline
func (t *PipelineTask) QueueFrame(frame frames.Frame) error {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if !t.started {
		return fmt.Errorf("pipeline not started")
	}
	if t.finished {
		return fmt.Errorf("pipeline already finished")
	}

	select {
	case t.userFrameQueue <- frame:
		return nil
	case <-t.ctx.Done():
		return t.ctx.Err()
	}
}

// Run starts the pipeline and blocks until completion
func (t *PipelineTask) Run(ctx context.Context) error {
	t.mu.Lock()
	if t.started {
		t.mu.Unlock()
		return fmt.Errorf("pipeline already started")
	}
	t.started = true
	t.ctx, t.cancel = context.WithCancel(ctx)
	t.mu.Unlock()

	logger.Debug("[PipelineTask] Starting pipeline")

	if err := t.pipeline.Start(t.ctx); err != nil {
		return fmt.Errorf("failed to start pipeline: %w", err)
	}

	t.wg.Add(1)
	go t.processUserFrames()

	// The StartFrame traverses every processor and reaching the sink
	// means the whole chain is ready to accept audio
	startFrame := frames.NewStartFrameWithConfig(t.config.AllowInterruptions, t.config.SampleRate)
	if err := t.pipeline.QueueFrame(startFrame); err != nil {
		return fmt.Errorf("failed to queue start frame: %w", err)
	}

	t.wg.Wait()

	if err := t.pipeline.Stop(); err != nil {
		logger.Error("[PipelineTask] Error stopping pipeline: %v", err)
	}

	logger.Info("[PipelineTask] Pipeline finished")
	return nil
}

// WaitUntilReady blocks until the pipeline has fully started or ctx expires
func (t *PipelineTask) WaitUntilReady(ctx context.Context) error {
	select {
	case <-t.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Cancel stops the pipeline immediately
func (t *PipelineTask) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cancel != nil {
		logger.Debug("[PipelineTask] Cancelling pipeline")
		t.cancel()
	}
}

// processUserFrames relays frames queued by the user into the source
func (t *PipelineTask) processUserFrames() {
	defer t.wg.Done()

	for {
		select {
		case <-t.ctx.Done():
			return
		case frame := <-t.userFrameQueue:
			if err := t.pipeline.QueueFrame(frame); err != nil {
				logger.Error("[PipelineTask] Error queuing user frame: %v", err)
				if t.onError != nil {
					t.onError(err)
				}
			}
		}
	}
}

// handleDownstreamFrame handles frames that reach the sink
func (t *PipelineTask) handleDownstreamFrame(frame frames.Frame) error {
	switch f := frame.(type) {
	case *frames.StartFrame:
		logger.Info("[PipelineTask] Pipeline started")
		t.markReady()
		if t.onStarted != nil {
			t.onStarted()
		}

	case *frames.EndFrame:
		logger.Debug("[PipelineTask] End frame reached sink, finishing pipeline")
		t.markFinished()
		t.Cancel()

	case *frames.CancelFrame:
		logger.Debug("[PipelineTask] Cancel frame reached sink, stopping immediately")
		t.markFinished()
		t.Cancel()

	case *frames.ErrorFrame:
		logger.Error("[PipelineTask] Error frame received: %v", f.Error)
		if t.onError != nil {
			t.onError(f.Error)
		}
	}

	return nil
}

// handleUpstreamFrame handles frames that travel out of the pipeline source
func (t *PipelineTask) handleUpstreamFrame(frame frames.Frame) error {
	switch f := frame.(type) {
	case *frames.InterruptionTaskFrame:
		// Broadcast the interruption to every processor, top down
		logger.Debug("[PipelineTask] Broadcasting interruption downstream")
		if err := t.pipeline.QueueFrame(frames.NewInterruptionFrame()); err != nil {
			logger.Error("[PipelineTask] Error queuing interruption frame: %v", err)
			return err
		}

	case *frames.ErrorFrame:
		if t.onError != nil {
			t.onError(f.Error)
		}
	}

	return nil
}

func (t *PipelineTask) markReady() {
	t.mu.Lock()
	defer t.mu.Unlock()

	select {
	case <-t.ready:
	default:
		close(t.ready)
	}
}

func (t *PipelineTask) markFinished() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.finished {
		t.finished = true
		if t.onFinished != nil {
			t.onFinished()
		}
	}
}
