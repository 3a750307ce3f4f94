package frames

// SystemFrame is the base for all system-level frames. System frames
// bypass the ordered data queue and are processed as soon as possible.
type SystemFrame struct {
	*BaseFrame
}

func (f *SystemFrame) Category() FrameCategory {
	return SystemCategory
}

func newSystemFrame(name string) *SystemFrame {
	return &SystemFrame{BaseFrame: NewBaseFrame(name)}
}

// StartFrame signals the beginning of pipeline execution
type StartFrame struct {
	*SystemFrame
	AllowInterruptions bool
	SampleRate         int // Negotiated room audio sample rate, 0 if unknown
}

func NewStartFrame() *StartFrame {
	return &StartFrame{
		SystemFrame: newSystemFrame("StartFrame"),
	}
}

// NewStartFrameWithConfig creates a StartFrame carrying session configuration
func NewStartFrameWithConfig(allowInterruptions bool, sampleRate int) *StartFrame {
	return &StartFrame{
		SystemFrame:        newSystemFrame("StartFrame"),
		AllowInterruptions: allowInterruptions,
		SampleRate:         sampleRate,
	}
}

// EndFrame signals graceful shutdown after flushing all frames
type EndFrame struct {
	*SystemFrame
}

func NewEndFrame() *EndFrame {
	return &EndFrame{SystemFrame: newSystemFrame("EndFrame")}
}

// CancelFrame signals immediate shutdown without flushing
type CancelFrame struct {
	*SystemFrame
}

func NewCancelFrame() *CancelFrame {
	return &CancelFrame{SystemFrame: newSystemFrame("CancelFrame")}
}

// InterruptionFrame signals the user interrupted the agent mid-utterance
type InterruptionFrame struct {
	*SystemFrame
}

func NewInterruptionFrame() *InterruptionFrame {
	return &InterruptionFrame{SystemFrame: newSystemFrame("InterruptionFrame")}
}

// InterruptionTaskFrame travels upstream to ask the task to broadcast
// an InterruptionFrame downstream to every processor
type InterruptionTaskFrame struct {
	*SystemFrame
}

func NewInterruptionTaskFrame() *InterruptionTaskFrame {
	return &InterruptionTaskFrame{SystemFrame: newSystemFrame("InterruptionTaskFrame")}
}

// ErrorFrame carries error information through the pipeline
type ErrorFrame struct {
	*SystemFrame
	Error error
}

func NewErrorFrame(err error) *ErrorFrame {
	return &ErrorFrame{
		SystemFrame: newSystemFrame("ErrorFrame"),
		Error:       err,
	}
}

// UserStartedSpeakingFrame signals VAD detected user speech
type UserStartedSpeakingFrame struct {
	*SystemFrame
}

func NewUserStartedSpeakingFrame() *UserStartedSpeakingFrame {
	return &UserStartedSpeakingFrame{SystemFrame: newSystemFrame("UserStartedSpeakingFrame")}
}

// UserStoppedSpeakingFrame signals VAD detected end of user speech
type UserStoppedSpeakingFrame struct {
	*SystemFrame
}

func NewUserStoppedSpeakingFrame() *UserStoppedSpeakingFrame {
	return &UserStoppedSpeakingFrame{SystemFrame: newSystemFrame("UserStoppedSpeakingFrame")}
}
