package processors

import (
	"context"
	"reflect"

	"github.com/voxkit-labs/voxkit-ai/src/frames"
	"github.com/voxkit-labs/voxkit-ai/src/logger"
)

// FrameLogger is a pass-through processor that logs every frame crossing it.
// Useful for debugging which stage drops or reorders frames.
type FrameLogger struct {
	*BaseProcessor
	log          *logger.Logger
	ignoredTypes map[reflect.Type]bool
	logDirection bool
}

// FrameLoggerConfig configures the frame logger
type FrameLoggerConfig struct {
	// Prefix for log messages (e.g., "Pipeline", "STT", "TTS")
	Prefix string

	// IgnoredFrameTypes are frame types to skip, typically high-frequency
	// audio frames
	IgnoredFrameTypes []frames.Frame

	// LogDirection includes the frame direction in log output
	LogDirection bool
}

// NewFrameLogger creates a new frame logger processor
func NewFrameLogger(config FrameLoggerConfig) *FrameLogger {
	if config.Prefix == "" {
		config.Prefix = "Frame"
	}

	fl := &FrameLogger{
		log:          logger.WithPrefix(config.Prefix),
		ignoredTypes: make(map[reflect.Type]bool),
		logDirection: config.LogDirection,
	}
	for _, frameType := range config.IgnoredFrameTypes {
		fl.ignoredTypes[reflect.TypeOf(frameType)] = true
	}

	fl.BaseProcessor = NewBaseProcessor("FrameLogger:"+config.Prefix, fl)
	return fl
}

// HandleFrame logs the frame and passes it through unchanged
func (fl *FrameLogger) HandleFrame(ctx context.Context, frame frames.Frame, direction frames.FrameDirection) error {
	if frame == nil || reflect.ValueOf(frame).IsNil() {
		fl.log.Warn("Received nil frame, skipping")
		return nil
	}

	if fl.ignoredTypes[reflect.TypeOf(frame)] {
		return fl.PushFrame(frame, direction)
	}

	if fl.logDirection {
		fl.log.Debug("%s %s", directionArrow(direction), frame.String())
	} else {
		fl.log.Debug("%s", frame.String())
	}

	return fl.PushFrame(frame, direction)
}

func directionArrow(direction frames.FrameDirection) string {
	if direction == frames.Downstream {
		return "->"
	}
	return "<-"
}
