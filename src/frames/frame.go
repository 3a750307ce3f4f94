// Package frames defines the unit of work that travels through a
// pipeline. Everything the processors exchange, audio, transcripts,
// text and lifecycle signals, is a Frame.
package frames

import (
	"fmt"
	"sync/atomic"
	"time"
)

// frameCounter hands out process-wide unique frame ids
var frameCounter uint64

// FrameDirection indicates the direction a frame is traveling
type FrameDirection int

const (
	Downstream FrameDirection = iota // Normal flow: source -> sink
	Upstream                          // Reverse flow: sink -> source
)

func (d FrameDirection) String() string {
	switch d {
	case Downstream:
		return "downstream"
	case Upstream:
		return "upstream"
	default:
		return "unknown"
	}
}

// Frame is implemented by everything that moves through a pipeline.
// Concrete frames embed BaseFrame and add their payload.
type Frame interface {
	ID() uint64
	Name() string
	PTS() time.Time
	Metadata() map[string]interface{}
	SetMetadata(key string, value interface{})
	String() string
}

// BaseFrame carries the identity every frame shares: a unique id, a
// name for logs and the presentation timestamp set at creation.
type BaseFrame struct {
	id       uint64
	name     string
	pts      time.Time
	metadata map[string]interface{}
}

func NewBaseFrame(name string) *BaseFrame {
	return &BaseFrame{
		id:       atomic.AddUint64(&frameCounter, 1),
		name:     name,
		pts:      time.Now(),
		metadata: make(map[string]interface{}),
	}
}

func (f *BaseFrame) ID() uint64     { return f.id }
func (f *BaseFrame) Name() string   { return f.name }
func (f *BaseFrame) PTS() time.Time { return f.pts }

func (f *BaseFrame) Metadata() map[string]interface{} {
	return f.metadata
}

func (f *BaseFrame) SetMetadata(key string, value interface{}) {
	f.metadata[key] = value
}

func (f *BaseFrame) String() string {
	return fmt.Sprintf("%s[id=%d, pts=%v]", f.name, f.id, f.pts.Format("15:04:05.000"))
}

// FrameCategory decides which processor queue a frame rides: system
// frames preempt, data and control frames keep their arrival order.
type FrameCategory int

const (
	SystemCategory  FrameCategory = iota // Highest priority, processed immediately
	DataCategory                         // Normal priority, ordered processing
	ControlCategory                      // Ordered processing, configuration
)

func (c FrameCategory) String() string {
	switch c {
	case SystemCategory:
		return "system"
	case DataCategory:
		return "data"
	case ControlCategory:
		return "control"
	default:
		return "unknown"
	}
}

// Categorizable frames can report their category
type Categorizable interface {
	Category() FrameCategory
}
