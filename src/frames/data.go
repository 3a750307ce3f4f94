package frames

import "fmt"

// DataFrame is the base for ordered data frames (audio, text, transcriptions)
type DataFrame struct {
	*BaseFrame
}

func (f *DataFrame) Category() FrameCategory {
	return DataCategory
}

func newDataFrame(name string) *DataFrame {
	return &DataFrame{BaseFrame: NewBaseFrame(name)}
}

// AudioFrame carries raw audio samples travelling downstream from the room
type AudioFrame struct {
	*DataFrame
	Data       []byte
	SampleRate int
	Channels   int
}

func NewAudioFrame(data []byte, sampleRate, channels int) *AudioFrame {
	return &AudioFrame{
		DataFrame:  newDataFrame("AudioFrame"),
		Data:       data,
		SampleRate: sampleRate,
		Channels:   channels,
	}
}

func (f *AudioFrame) String() string {
	return fmt.Sprintf("AudioFrame[id=%d, %d bytes @ %dHz]", f.ID(), len(f.Data), f.SampleRate)
}

// TTSAudioFrame carries synthesized audio travelling toward the room output
type TTSAudioFrame struct {
	*DataFrame
	Data       []byte
	SampleRate int
	Channels   int
}

func NewTTSAudioFrame(data []byte, sampleRate, channels int) *TTSAudioFrame {
	return &TTSAudioFrame{
		DataFrame:  newDataFrame("TTSAudioFrame"),
		Data:       data,
		SampleRate: sampleRate,
		Channels:   channels,
	}
}

func (f *TTSAudioFrame) String() string {
	return fmt.Sprintf("TTSAudioFrame[id=%d, %d bytes @ %dHz]", f.ID(), len(f.Data), f.SampleRate)
}

// TranscriptionFrame carries STT output. Interim results have IsFinal=false
// and may be revised by later frames for the same utterance.
type TranscriptionFrame struct {
	*DataFrame
	Text    string
	IsFinal bool
}

func NewTranscriptionFrame(text string, isFinal bool) *TranscriptionFrame {
	return &TranscriptionFrame{
		DataFrame: newDataFrame("TranscriptionFrame"),
		Text:      text,
		IsFinal:   isFinal,
	}
}

func (f *TranscriptionFrame) String() string {
	return fmt.Sprintf("TranscriptionFrame[id=%d, final=%v, %q]", f.ID(), f.IsFinal, f.Text)
}

// TextFrame carries a chunk of LLM-generated text toward TTS
type TextFrame struct {
	*DataFrame
	Text string
}

func NewTextFrame(text string) *TextFrame {
	return &TextFrame{
		DataFrame: newDataFrame("TextFrame"),
		Text:      text,
	}
}

func (f *TextFrame) String() string {
	return fmt.Sprintf("TextFrame[id=%d, %q]", f.ID(), f.Text)
}

// SpeakFrame carries scripted text that should be synthesized verbatim,
// bypassing the LLM. Used for greetings and canned announcements.
type SpeakFrame struct {
	*DataFrame
	Text string
}

func NewSpeakFrame(text string) *SpeakFrame {
	return &SpeakFrame{
		DataFrame: newDataFrame("SpeakFrame"),
		Text:      text,
	}
}

func (f *SpeakFrame) String() string {
	return fmt.Sprintf("SpeakFrame[id=%d, %q]", f.ID(), f.Text)
}

// LLMContextFrame hands a conversation context to the LLM service.
// Context is typed as interface{} to avoid an import cycle with services.
type LLMContextFrame struct {
	*DataFrame
	Context interface{}
}

func NewLLMContextFrame(context interface{}) *LLMContextFrame {
	return &LLMContextFrame{
		DataFrame: newDataFrame("LLMContextFrame"),
		Context:   context,
	}
}
