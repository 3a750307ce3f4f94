package cartesia

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"unicode"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/voxkit-labs/voxkit-ai/src/frames"
	"github.com/voxkit-labs/voxkit-ai/src/processors"
)

const defaultWSURL = "wss://api.cartesia.ai/tts/websocket"

// TTSService provides streaming text-to-speech using Cartesia.
//
// Text arrives as streamed LLM fragments; complete sentences are sent to
// Cartesia under a per-response context id so audio comes back in order.
// An InterruptionFrame cancels the active context, which stops audio for
// the interrupted utterance without tearing down the connection.
type TTSService struct {
	*processors.BaseProcessor
	apiKey          string
	voiceID         string
	model           string
	cartesiaVersion string
	language        string
	sampleRate      int
	baseURL         string

	conn   *websocket.Conn
	connMu sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc

	// stateMu guards contextID and textBuffer: interruptions arrive on a
	// different handler goroutine than text, and the receive loop reads
	// the active context id while dropping stale audio
	stateMu    sync.Mutex
	contextID  string
	textBuffer strings.Builder

	speaking   bool
	speakingMu sync.Mutex
}

// TTSConfig holds configuration for Cartesia TTS
type TTSConfig struct {
	APIKey          string
	VoiceID         string // e.g., "a0e99841-438c-4a64-b679-ae501e7d6091"
	Model           string // e.g., "sonic-3"
	CartesiaVersion string // e.g., "2025-04-16"
	Language        string // e.g., "en"
	SampleRate      int    // e.g., 16000, 24000, 48000
	BaseURL         string // override for tests
}

// NewTTSService creates a new Cartesia TTS service
func NewTTSService(config TTSConfig) *TTSService {
	if config.Model == "" {
		config.Model = "sonic-3"
	}
	if config.CartesiaVersion == "" {
		config.CartesiaVersion = "2025-04-16"
	}
	if config.Language == "" {
		config.Language = "en"
	}
	if config.SampleRate == 0 {
		config.SampleRate = 24000
	}
	if config.BaseURL == "" {
		config.BaseURL = defaultWSURL
	}

	s := &TTSService{
		apiKey:          config.APIKey,
		voiceID:         config.VoiceID,
		model:           config.Model,
		cartesiaVersion: config.CartesiaVersion,
		language:        config.Language,
		sampleRate:      config.SampleRate,
		baseURL:         config.BaseURL,
	}
	s.BaseProcessor = processors.NewBaseProcessor("CartesiaTTS", s)
	return s
}

func (s *TTSService) SetVoice(voiceID string) {
	s.voiceID = voiceID
}

func (s *TTSService) SetModel(model string) {
	s.model = model
}

// Initialize opens the synthesis connection and starts the receive loop
func (s *TTSService) Initialize(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	wsURL := fmt.Sprintf("%s?api_key=%s&cartesia_version=%s", s.baseURL, s.apiKey, s.cartesiaVersion)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to Cartesia: %w", err)
	}
	s.connMu.Lock()
	s.conn = conn
	s.connMu.Unlock()

	go s.receiveAudio(s.ctx, conn)

	s.Log().Info("Connected and initialized (model=%s, voice=%s)", s.model, s.voiceID)
	return nil
}

func (s *TTSService) Cleanup() error {
	if s.cancel != nil {
		s.cancel()
	}
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	return nil
}

func (s *TTSService) connected() bool {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	return s.conn != nil
}

// HandleFrame synthesizes text frames and passes everything else through
func (s *TTSService) HandleFrame(ctx context.Context, frame frames.Frame, direction frames.FrameDirection) error {
	switch f := frame.(type) {
	case *frames.EndFrame:
		if err := s.Cleanup(); err != nil {
			s.Log().Error("Error during cleanup: %v", err)
		}
		return s.PushFrame(frame, direction)

	case *frames.InterruptionFrame:
		s.cancelContext()
		s.stateMu.Lock()
		s.textBuffer.Reset()
		s.stateMu.Unlock()
		s.setSpeaking(false)
		return s.PushFrame(frame, direction)

	case *frames.LLMFullResponseStartFrame:
		s.stateMu.Lock()
		s.contextID = uuid.NewString()
		s.textBuffer.Reset()
		s.stateMu.Unlock()
		return s.PushFrame(frame, direction)

	case *frames.LLMFullResponseEndFrame:
		// Flush whatever is left and finalize the synthesis context
		if err := s.flush(ctx, true); err != nil {
			s.Log().Error("Error flushing text: %v", err)
		}
		return s.PushFrame(frame, direction)

	case *frames.TextFrame:
		s.stateMu.Lock()
		s.textBuffer.WriteString(f.Text)
		boundary := endsWithSentenceBoundary(s.textBuffer.String())
		s.stateMu.Unlock()
		if boundary {
			if err := s.flush(ctx, false); err != nil {
				s.Log().Error("Error sending sentence: %v", err)
			}
		}
		return nil

	case *frames.SpeakFrame:
		// Scripted speech gets its own one-shot context
		s.stateMu.Lock()
		s.contextID = uuid.NewString()
		s.stateMu.Unlock()
		if err := s.sendTranscript(ctx, f.Text, false); err != nil {
			s.Log().Error("Error speaking: %v", err)
			return s.PushFrame(frames.NewErrorFrame(err), frames.Upstream)
		}
		return s.PushFrame(frame, direction)
	}

	return s.PushFrame(frame, direction)
}

// flush sends buffered text; cont indicates whether more text will follow
// in the same context
func (s *TTSService) flush(ctx context.Context, finalize bool) error {
	s.stateMu.Lock()
	text := strings.TrimSpace(s.textBuffer.String())
	s.textBuffer.Reset()
	s.stateMu.Unlock()
	if text == "" && !finalize {
		return nil
	}
	return s.sendTranscript(ctx, text, !finalize)
}

func (s *TTSService) sendTranscript(ctx context.Context, text string, cont bool) error {
	if !s.connected() {
		if err := s.Initialize(ctx); err != nil {
			return err
		}
	}
	s.stateMu.Lock()
	if s.contextID == "" {
		s.contextID = uuid.NewString()
	}
	contextID := s.contextID
	s.stateMu.Unlock()

	request := map[string]interface{}{
		"context_id": contextID,
		"model_id":   s.model,
		"transcript": text,
		"continue":   cont,
		"language":   s.language,
		"voice": map[string]string{
			"mode": "id",
			"id":   s.voiceID,
		},
		"output_format": map[string]interface{}{
			"container":   "raw",
			"encoding":    "pcm_s16le",
			"sample_rate": s.sampleRate,
		},
	}

	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.conn == nil {
		return fmt.Errorf("not connected")
	}
	return s.conn.WriteJSON(request)
}

// cancelContext tells Cartesia to stop producing audio for the active context
func (s *TTSService) cancelContext() {
	s.stateMu.Lock()
	contextID := s.contextID
	s.contextID = ""
	s.stateMu.Unlock()
	if contextID == "" || !s.connected() {
		return
	}
	s.connMu.Lock()
	var err error
	if s.conn != nil {
		err = s.conn.WriteJSON(map[string]interface{}{
			"context_id": contextID,
			"cancel":     true,
		})
	}
	s.connMu.Unlock()
	if err != nil {
		s.Log().Error("Error cancelling context: %v", err)
	}
}

func (s *TTSService) activeContextID() string {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.contextID
}

func (s *TTSService) receiveAudio(ctx context.Context, conn *websocket.Conn) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, message, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) ||
					strings.Contains(err.Error(), "use of closed network connection") {
					return
				}
				s.Log().Error("Error reading message: %v", err)
				s.PushFrame(frames.NewErrorFrame(err), frames.Upstream)
				return
			}

			var response struct {
				Type      string `json:"type"`
				Data      string `json:"data"`
				ContextID string `json:"context_id"`
				Error     string `json:"error"`
			}
			if err := json.Unmarshal(message, &response); err != nil {
				s.Log().Error("Error parsing response: %v", err)
				continue
			}

			switch response.Type {
			case "chunk":
				if response.ContextID != s.activeContextID() {
					// Audio from a cancelled context, drop it
					continue
				}
				audio, err := base64.StdEncoding.DecodeString(response.Data)
				if err != nil {
					s.Log().Error("Error decoding audio: %v", err)
					continue
				}
				if !s.isSpeaking() {
					s.setSpeaking(true)
					// Both directions: downstream for the room output,
					// upstream so the user aggregator knows the agent
					// is audible
					s.PushFrame(frames.NewTTSStartedFrame(), frames.Downstream)
					s.PushFrame(frames.NewTTSStartedFrame(), frames.Upstream)
				}
				s.PushFrame(frames.NewTTSAudioFrame(audio, s.sampleRate, 1), frames.Downstream)

			case "done":
				if s.isSpeaking() {
					s.setSpeaking(false)
					s.PushFrame(frames.NewTTSStoppedFrame(), frames.Downstream)
					s.PushFrame(frames.NewTTSStoppedFrame(), frames.Upstream)
				}

			case "error":
				s.Log().Error("Cartesia error: %s", response.Error)
				s.PushFrame(frames.NewErrorFrame(fmt.Errorf("cartesia: %s", response.Error)), frames.Upstream)
			}
		}
	}
}

func (s *TTSService) isSpeaking() bool {
	s.speakingMu.Lock()
	defer s.speakingMu.Unlock()
	return s.speaking
}

func (s *TTSService) setSpeaking(speaking bool) {
	s.speakingMu.Lock()
	defer s.speakingMu.Unlock()
	s.speaking = speaking
}

// endsWithSentenceBoundary reports whether text ends at a natural pause
func endsWithSentenceBoundary(text string) bool {
	trimmed := strings.TrimRightFunc(text, unicode.IsSpace)
	if trimmed == "" {
		return false
	}
	switch trimmed[len(trimmed)-1] {
	case '.', '!', '?', ':', ';':
		return true
	}
	return false
}
