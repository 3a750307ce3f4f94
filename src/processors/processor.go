package processors

import (
	"context"
	"fmt"
	"sync"

	"github.com/voxkit-labs/voxkit-ai/src/frames"
	"github.com/voxkit-labs/voxkit-ai/src/logger"
)

// FrameProcessor is the interface that all pipeline stages implement
type FrameProcessor interface {
	// ProcessFrame processes a single frame
	ProcessFrame(ctx context.Context, frame frames.Frame, direction frames.FrameDirection) error

	// QueueFrame adds a frame to this processor's queue
	QueueFrame(frame frames.Frame, direction frames.FrameDirection) error

	// PushFrame sends a frame to the next/previous processor
	PushFrame(frame frames.Frame, direction frames.FrameDirection) error

	// Link connects this processor to the next one in the chain
	Link(next FrameProcessor)

	// SetPrev sets the previous processor in the chain
	SetPrev(prev FrameProcessor)

	// Start begins processing frames
	Start(ctx context.Context) error

	// Stop gracefully stops the processor
	Stop() error

	// Name returns the processor name
	Name() string
}

// ProcessHandler is implemented by concrete processors for custom handling
type ProcessHandler interface {
	HandleFrame(ctx context.Context, frame frames.Frame, direction frames.FrameDirection) error
}

type frameWithDirection struct {
	frame     frames.Frame
	direction frames.FrameDirection
}

// BaseProcessor provides queueing, linking and lifecycle for processors.
// System frames run on a dedicated high-priority channel so Start/Cancel and
// interruptions are never stuck behind buffered audio.
type BaseProcessor struct {
	name string
	next FrameProcessor
	prev FrameProcessor

	systemChan chan frameWithDirection
	dataChan   chan frameWithDirection

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.RWMutex

	handler ProcessHandler
	log     *logger.Logger
}

// NewBaseProcessor creates a new BaseProcessor
func NewBaseProcessor(name string, handler ProcessHandler) *BaseProcessor {
	return &BaseProcessor{
		name:       name,
		systemChan: make(chan frameWithDirection, 100),
		dataChan:   make(chan frameWithDirection, 1000),
		handler:    handler,
		log:        logger.WithPrefix(name),
	}
}

func (p *BaseProcessor) Name() string {
	return p.name
}

// Log returns the processor's prefixed logger
func (p *BaseProcessor) Log() *logger.Logger {
	return p.log
}

func (p *BaseProcessor) Link(next FrameProcessor) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.next = next
	if next != nil {
		next.SetPrev(p)
	}
}

func (p *BaseProcessor) SetPrev(prev FrameProcessor) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prev = prev
}

func (p *BaseProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ctx != nil {
		return fmt.Errorf("processor %s already started", p.name)
	}

	p.ctx, p.cancel = context.WithCancel(ctx)

	p.wg.Add(2)
	go p.frameHandler(p.systemChan)
	go p.frameHandler(p.dataChan)

	p.log.Debug("Started")
	return nil
}

func (p *BaseProcessor) Stop() error {
	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
	}
	p.mu.Unlock()

	p.wg.Wait()

	p.log.Debug("Stopped")
	return nil
}

func (p *BaseProcessor) QueueFrame(frame frames.Frame, direction frames.FrameDirection) error {
	p.mu.RLock()
	ctx := p.ctx
	p.mu.RUnlock()

	if ctx == nil {
		return fmt.Errorf("processor %s not started", p.name)
	}

	fwd := frameWithDirection{frame: frame, direction: direction}

	target := p.dataChan
	if categorizable, ok := frame.(frames.Categorizable); ok && categorizable.Category() == frames.SystemCategory {
		target = p.systemChan
	}

	select {
	case target <- fwd:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *BaseProcessor) PushFrame(frame frames.Frame, direction frames.FrameDirection) error {
	p.mu.RLock()
	var target FrameProcessor
	if direction == frames.Downstream {
		target = p.next
	} else {
		target = p.prev
	}
	p.mu.RUnlock()

	if target == nil {
		// End of chain
		return nil
	}

	return target.QueueFrame(frame, direction)
}

func (p *BaseProcessor) ProcessFrame(ctx context.Context, frame frames.Frame, direction frames.FrameDirection) error {
	if p.handler != nil {
		return p.handler.HandleFrame(ctx, frame, direction)
	}
	// Default: pass through
	return p.PushFrame(frame, direction)
}

func (p *BaseProcessor) frameHandler(queue chan frameWithDirection) {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case fwd := <-queue:
			if err := p.ProcessFrame(p.ctx, fwd.frame, fwd.direction); err != nil {
				p.log.Error("Error processing frame %s: %v", fwd.frame.Name(), err)
			}
		}
	}
}
