package agent

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/voxkit-labs/voxkit-ai/src/frames"
	"github.com/voxkit-labs/voxkit-ai/src/processors"
	"github.com/voxkit-labs/voxkit-ai/src/services"
	"github.com/voxkit-labs/voxkit-ai/src/services/cartesia"
)

// fakeService carries the lifecycle bookkeeping shared by the fake providers
type fakeService struct {
	*processors.BaseProcessor

	initCalls    int32
	cleanupCalls int32
	initErr      error
}

func (s *fakeService) Initialize(ctx context.Context) error {
	atomic.AddInt32(&s.initCalls, 1)
	return s.initErr
}

func (s *fakeService) Cleanup() error {
	atomic.AddInt32(&s.cleanupCalls, 1)
	return nil
}

// fakeSTT passes frames through; transcriptions are injected by the test
type fakeSTT struct {
	fakeService
}

func newFakeSTT() *fakeSTT {
	s := &fakeSTT{}
	s.BaseProcessor = processors.NewBaseProcessor("FakeSTT", s)
	return s
}

func (s *fakeSTT) HandleFrame(ctx context.Context, frame frames.Frame, direction frames.FrameDirection) error {
	return s.PushFrame(frame, direction)
}

func (s *fakeSTT) SetLanguage(lang string) {}
func (s *fakeSTT) SetModel(model string)   {}

// fakeLLM answers every context frame with a canned streamed response
type fakeLLM struct {
	fakeService

	model string
	reply string
}

func newFakeLLM(model, reply string) *fakeLLM {
	l := &fakeLLM{model: model, reply: reply}
	l.BaseProcessor = processors.NewBaseProcessor("FakeLLM", l)
	return l
}

func (l *fakeLLM) HandleFrame(ctx context.Context, frame frames.Frame, direction frames.FrameDirection) error {
	if _, ok := frame.(*frames.LLMContextFrame); !ok {
		return l.PushFrame(frame, direction)
	}

	if err := l.PushFrame(frames.NewLLMFullResponseStartFrame(), frames.Downstream); err != nil {
		return err
	}
	if err := l.PushFrame(frames.NewTextFrame(l.reply), frames.Downstream); err != nil {
		return err
	}
	return l.PushFrame(frames.NewLLMFullResponseEndFrame(), frames.Downstream)
}

func (l *fakeLLM) SetModel(model string)         { l.model = model }
func (l *fakeLLM) SetSystemPrompt(prompt string) {}
func (l *fakeLLM) SetTemperature(temp float64)   {}
func (l *fakeLLM) Model() string                 { return l.model }

// fakeTTS records everything it is asked to synthesize
type fakeTTS struct {
	fakeService

	mu          sync.Mutex
	synthesized []string
}

func newFakeTTS() *fakeTTS {
	s := &fakeTTS{}
	s.BaseProcessor = processors.NewBaseProcessor("FakeTTS", s)
	return s
}

func (s *fakeTTS) HandleFrame(ctx context.Context, frame frames.Frame, direction frames.FrameDirection) error {
	// Text is consumed once synthesized, like the real streaming TTS;
	// scripted speech continues downstream
	var text string
	passThrough := false
	switch f := frame.(type) {
	case *frames.TextFrame:
		text = f.Text
	case *frames.SpeakFrame:
		text = f.Text
		passThrough = true
	default:
		return s.PushFrame(frame, direction)
	}

	s.mu.Lock()
	s.synthesized = append(s.synthesized, text)
	s.mu.Unlock()

	for _, dir := range []frames.FrameDirection{frames.Downstream, frames.Upstream} {
		if err := s.PushFrame(frames.NewTTSStartedFrame(), dir); err != nil {
			return err
		}
	}
	if err := s.PushFrame(frames.NewTTSAudioFrame(make([]byte, 960), 24000, 1), frames.Downstream); err != nil {
		return err
	}
	for _, dir := range []frames.FrameDirection{frames.Downstream, frames.Upstream} {
		if err := s.PushFrame(frames.NewTTSStoppedFrame(), dir); err != nil {
			return err
		}
	}
	if passThrough {
		return s.PushFrame(frame, direction)
	}
	return nil
}

func (s *fakeTTS) SetVoice(voiceID string) {}
func (s *fakeTTS) SetModel(model string)   {}

func (s *fakeTTS) spoken() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.synthesized))
	copy(out, s.synthesized)
	return out
}

func (s *fakeTTS) waitForSpeech(t *testing.T, n int) []string {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if got := s.spoken(); len(got) >= n {
			return got
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d synthesized utterances (got %d)", n, len(s.spoken()))
	return nil
}

// fakeRoom satisfies room.Room with plain passthrough processors
type fakeRoom struct {
	name   string
	input  processors.FrameProcessor
	output *outputRecorder
}

func newFakeRoom(name string) *fakeRoom {
	return &fakeRoom{
		name:   name,
		input:  processors.NewBaseProcessor("FakeRoomInput", nil),
		output: newOutputRecorder(),
	}
}

func (r *fakeRoom) Name() string                      { return r.name }
func (r *fakeRoom) Input() processors.FrameProcessor  { return r.input }
func (r *fakeRoom) Output() processors.FrameProcessor { return r.output }
func (r *fakeRoom) Close() error                      { return nil }

// outputRecorder counts audio frames reaching the room output
type outputRecorder struct {
	*processors.BaseProcessor

	audioFrames int32
}

func newOutputRecorder() *outputRecorder {
	o := &outputRecorder{}
	o.BaseProcessor = processors.NewBaseProcessor("FakeRoomOutput", o)
	return o
}

func (o *outputRecorder) HandleFrame(ctx context.Context, frame frames.Frame, direction frames.FrameDirection) error {
	if _, ok := frame.(*frames.TTSAudioFrame); ok {
		atomic.AddInt32(&o.audioFrames, 1)
		return nil
	}
	return o.PushFrame(frame, direction)
}

type sessionFixture struct {
	stt     *fakeSTT
	llm     *fakeLLM
	tts     *fakeTTS
	room    *fakeRoom
	session *AgentSession
}

func newSessionFixture(t *testing.T) *sessionFixture {
	t.Helper()
	f := &sessionFixture{
		stt:  newFakeSTT(),
		llm:  newFakeLLM("gpt-4o-mini", "The answer is 42."),
		tts:  newFakeTTS(),
		room: newFakeRoom("lobby"),
	}

	session, err := NewSession(SessionOptions{
		STT: f.stt,
		LLM: f.llm,
		TTS: f.tts,
	})
	require.NoError(t, err)
	f.session = session
	return f
}

func (f *sessionFixture) start(t *testing.T, assistant *Agent) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	require.NoError(t, f.session.Start(ctx, assistant, f.room))
	t.Cleanup(func() { f.session.Close() })
}

func TestNewSession_RequiresAllThreeProviders(t *testing.T) {
	stt, llm, tts := newFakeSTT(), newFakeLLM("m", "r"), newFakeTTS()

	_, err := NewSession(SessionOptions{LLM: llm, TTS: tts})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "STT")

	_, err = NewSession(SessionOptions{STT: stt, TTS: tts})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LLM")

	_, err = NewSession(SessionOptions{STT: stt, LLM: llm})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TTS")

	_, err = NewSession(SessionOptions{STT: stt, LLM: llm, TTS: tts})
	assert.NoError(t, err)
}

func TestAgentSession_StartInitializesProvidersOnce(t *testing.T) {
	f := newSessionFixture(t)
	f.start(t, New(Options{Instructions: "be brief"}))

	assert.Equal(t, int32(1), atomic.LoadInt32(&f.stt.initCalls))
	assert.Equal(t, int32(1), atomic.LoadInt32(&f.llm.initCalls))
	assert.Equal(t, int32(1), atomic.LoadInt32(&f.tts.initCalls))

	err := f.session.Start(context.Background(), New(Options{Instructions: "x"}), f.room)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already started")
}

func TestAgentSession_InstructionsBecomeSystemPrompt(t *testing.T) {
	f := newSessionFixture(t)
	f.start(t, New(Options{
		Instructions: "You are a helpful voice assistant. Keep responses concise.",
	}))

	require.NotNil(t, f.session.Context())
	assert.Equal(t,
		"You are a helpful voice assistant. Keep responses concise.",
		f.session.Context().SystemPrompt)
}

func TestAgentSession_SayBeforeStartFails(t *testing.T) {
	f := newSessionFixture(t)

	err := f.session.Say("Hello! How can I help you today?")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not started")
}

func TestAgentSession_GreetingSynthesizedOnce(t *testing.T) {
	f := newSessionFixture(t)
	f.start(t, New(Options{
		Instructions: "You are a helpful voice assistant. Keep responses concise.",
	}))

	require.NoError(t, f.session.Say("Hello! How can I help you today?"))

	spoken := f.tts.waitForSpeech(t, 1)
	assert.Equal(t, []string{"Hello! How can I help you today?"}, spoken)

	// The scripted greeting lands in the conversation context so the LLM
	// knows what the agent already said
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		messages := f.session.Context().Messages
		if len(messages) == 1 {
			assert.Equal(t, "assistant", messages[0].Role)
			assert.Equal(t, "Hello! How can I help you today?", messages[0].Content)
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("greeting never recorded in context")
}

func TestAgentSession_EndToEndConversation(t *testing.T) {
	f := newSessionFixture(t)
	f.start(t, New(Options{
		Instructions: "You are a helpful voice assistant. Keep responses concise.",
	}))

	require.NoError(t, f.session.Say("Hello! How can I help you today?"))
	f.tts.waitForSpeech(t, 1)

	// Simulate a user turn arriving from the room: the fake STT passes
	// transcriptions straight through to the aggregator
	in := f.room.Input()
	require.NoError(t, in.QueueFrame(frames.NewUserStartedSpeakingFrame(), frames.Downstream))
	require.NoError(t, in.QueueFrame(frames.NewTranscriptionFrame("what is the answer", true), frames.Downstream))
	require.NoError(t, in.QueueFrame(frames.NewUserStoppedSpeakingFrame(), frames.Downstream))

	spoken := f.tts.waitForSpeech(t, 2)
	assert.Equal(t, "Hello! How can I help you today?", spoken[0])
	assert.Equal(t, "The answer is 42.", spoken[1])
	assert.GreaterOrEqual(t, atomic.LoadInt32(&f.room.output.audioFrames), int32(2),
		"synthesized audio should reach the room output")

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		messages := f.session.Context().Messages
		if len(messages) == 3 {
			assert.Equal(t, services.LLMMessage{Role: "assistant", Content: "Hello! How can I help you today?"}, messages[0])
			assert.Equal(t, services.LLMMessage{Role: "user", Content: "what is the answer"}, messages[1])
			assert.Equal(t, services.LLMMessage{Role: "assistant", Content: "The answer is 42."}, messages[2])
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("conversation context incomplete: %+v", f.session.Context().Messages)
}

// streamingTTSServer is a minimal synthesis endpoint: it records each
// transcript and answers with one audio chunk followed by done
type streamingTTSServer struct {
	*httptest.Server
	upgrader websocket.Upgrader

	mu          sync.Mutex
	transcripts []string
}

func newStreamingTTSServer(t *testing.T) *streamingTTSServer {
	t.Helper()
	s := &streamingTTSServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		for {
			var req struct {
				ContextID  string `json:"context_id"`
				Transcript string `json:"transcript"`
				Cancel     bool   `json:"cancel"`
			}
			if err := conn.ReadJSON(&req); err != nil {
				return
			}
			if req.Cancel {
				continue
			}
			s.mu.Lock()
			s.transcripts = append(s.transcripts, req.Transcript)
			s.mu.Unlock()
			conn.WriteJSON(map[string]interface{}{
				"type":       "chunk",
				"context_id": req.ContextID,
				"data":       base64.StdEncoding.EncodeToString([]byte{1, 2, 3, 4}),
			})
			conn.WriteJSON(map[string]interface{}{
				"type":       "done",
				"context_id": req.ContextID,
			})
		}
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *streamingTTSServer) spoken() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.transcripts))
	copy(out, s.transcripts)
	return out
}

func TestAgentSession_AssistantTurnRecordedWithStreamingTTS(t *testing.T) {
	server := newStreamingTTSServer(t)
	stt := newFakeSTT()
	llm := newFakeLLM("gpt-4o-mini", "The answer is 42.")
	tts := cartesia.NewTTSService(cartesia.TTSConfig{
		APIKey:  "k",
		VoiceID: "v",
		BaseURL: "ws" + strings.TrimPrefix(server.URL, "http"),
	})
	rm := newFakeRoom("lobby")

	session, err := NewSession(SessionOptions{STT: stt, LLM: llm, TTS: tts})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	require.NoError(t, session.Start(ctx, New(Options{Instructions: "be brief"}), rm))
	t.Cleanup(func() { session.Close() })

	in := rm.Input()
	require.NoError(t, in.QueueFrame(frames.NewUserStartedSpeakingFrame(), frames.Downstream))
	require.NoError(t, in.QueueFrame(frames.NewTranscriptionFrame("what is the answer", true), frames.Downstream))
	require.NoError(t, in.QueueFrame(frames.NewUserStoppedSpeakingFrame(), frames.Downstream))

	// The reply must land in the conversation context even though the
	// streaming TTS consumes text once it has synthesized it
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		messages := session.Context().Messages
		if len(messages) == 2 {
			assert.Equal(t, services.LLMMessage{Role: "user", Content: "what is the answer"}, messages[0])
			assert.Equal(t, services.LLMMessage{Role: "assistant", Content: "The answer is 42."}, messages[1])
			assert.Contains(t, server.spoken(), "The answer is 42.")
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("assistant turn never recorded: %+v", session.Context().Messages)
}

func TestAgentSession_FailedStartLeavesSessionSafe(t *testing.T) {
	f := newSessionFixture(t)
	f.stt.initErr = assert.AnError

	err := f.session.Start(context.Background(), New(Options{Instructions: "x"}), f.room)
	require.Error(t, err)

	// Neither Say nor Close may touch the never-built pipeline
	err = f.session.Say("hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not started")
	require.NoError(t, f.session.Close())

	// And the session starts normally once the provider recovers
	f.stt.initErr = nil
	f.start(t, New(Options{Instructions: "x"}))
	require.NoError(t, f.session.Say("recovered"))
	f.tts.waitForSpeech(t, 1)
}

func TestAgentSession_ProviderInitFailurePropagates(t *testing.T) {
	f := newSessionFixture(t)
	f.stt.initErr = assert.AnError

	err := f.session.Start(context.Background(), New(Options{Instructions: "x"}), f.room)
	require.Error(t, err)
	assert.ErrorIs(t, err, assert.AnError)
}

func TestAgentSession_ModelIdentifierExposed(t *testing.T) {
	f := newSessionFixture(t)
	assert.Equal(t, "gpt-4o-mini", f.session.LLM().Model())
}
