package deepgram

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/voxkit-labs/voxkit-ai/src/frames"
	"github.com/voxkit-labs/voxkit-ai/src/processors"
)

const defaultListenURL = "wss://api.deepgram.com/v1/listen"

// STTService provides streaming speech-to-text using Deepgram
type STTService struct {
	*processors.BaseProcessor
	apiKey     string
	language   string
	model      string
	sampleRate int
	baseURL    string

	conn   *websocket.Conn
	connMu sync.Mutex // guards conn for writes, reconnects and teardown
	ctx    context.Context
	cancel context.CancelFunc
}

// STTConfig holds configuration for Deepgram
type STTConfig struct {
	APIKey     string
	Language   string // e.g., "en-US"
	Model      string // e.g., "nova-2"
	SampleRate int    // PCM sample rate (default: 16000)
	BaseURL    string // override for tests
}

// NewSTTService creates a new Deepgram STT service
func NewSTTService(config STTConfig) *STTService {
	if config.Language == "" {
		config.Language = "en"
	}
	if config.Model == "" {
		config.Model = "nova-2"
	}
	if config.SampleRate == 0 {
		config.SampleRate = 16000
	}
	if config.BaseURL == "" {
		config.BaseURL = defaultListenURL
	}

	s := &STTService{
		apiKey:     config.APIKey,
		language:   config.Language,
		model:      config.Model,
		sampleRate: config.SampleRate,
		baseURL:    config.BaseURL,
	}
	s.BaseProcessor = processors.NewBaseProcessor("DeepgramSTT", s)
	return s
}

func (s *STTService) SetLanguage(lang string) {
	s.language = lang
}

func (s *STTService) SetModel(model string) {
	s.model = model
}

// Initialize opens the streaming connection and starts the receive loop
func (s *STTService) Initialize(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	params := url.Values{}
	params.Set("language", s.language)
	params.Set("model", s.model)
	params.Set("encoding", "linear16")
	params.Set("sample_rate", strconv.Itoa(s.sampleRate))
	params.Set("channels", "1")
	params.Set("interim_results", "true")

	wsURL := fmt.Sprintf("%s?%s", s.baseURL, params.Encode())
	header := map[string][]string{
		"Authorization": {"Token " + s.apiKey},
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, header)
	if err != nil {
		return fmt.Errorf("failed to connect to Deepgram: %w", err)
	}
	s.connMu.Lock()
	s.conn = conn
	s.connMu.Unlock()

	go s.receiveTranscriptions(s.ctx, conn)
	go s.keepaliveTask(s.ctx)

	s.Log().Info("Connected and initialized (model=%s, sample_rate=%d)", s.model, s.sampleRate)
	return nil
}

func (s *STTService) Cleanup() error {
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

func (s *STTService) connected() bool {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	return s.conn != nil
}

func (s *STTService) writeJSON(v interface{}) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.conn == nil {
		return fmt.Errorf("not connected")
	}
	return s.conn.WriteJSON(v)
}

func (s *STTService) writeBinary(data []byte) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.conn == nil {
		return fmt.Errorf("not connected")
	}
	return s.conn.WriteMessage(websocket.BinaryMessage, data)
}

// HandleFrame streams audio to Deepgram and passes everything else through
func (s *STTService) HandleFrame(ctx context.Context, frame frames.Frame, direction frames.FrameDirection) error {
	switch f := frame.(type) {
	case *frames.StartFrame:
		// Deepgram fixes sample_rate at connect time, so a pipeline
		// running at a different rate forces a renegotiation. Streaming
		// mismatched PCM would transcribe garbage.
		if f.SampleRate > 0 && f.SampleRate != s.sampleRate {
			s.sampleRate = f.SampleRate
			if s.connected() {
				s.Cleanup()
				if err := s.Initialize(ctx); err != nil {
					s.Log().Error("Failed to reconnect at %d Hz: %v", f.SampleRate, err)
					return s.PushFrame(frames.NewErrorFrame(err), frames.Upstream)
				}
			}
		}
		return s.PushFrame(frame, direction)

	case *frames.EndFrame:
		if err := s.Cleanup(); err != nil {
			s.Log().Error("Error during cleanup: %v", err)
		}
		return s.PushFrame(frame, direction)

	case *frames.InterruptionFrame:
		// Finalize flushes the current utterance so stale fragments of
		// the interrupted turn don't leak into the next one
		if s.connected() {
			if err := s.writeJSON(map[string]interface{}{"type": "Finalize"}); err != nil {
				s.Log().Error("Error sending finalize: %v", err)
			}
		}
		return s.PushFrame(frame, direction)

	case *frames.AudioFrame:
		// Lazy connect on first audio so the session can be constructed
		// before credentials are exercised
		if !s.connected() {
			if err := s.Initialize(ctx); err != nil {
				s.Log().Error("Failed to initialize: %v", err)
				return s.PushFrame(frames.NewErrorFrame(err), frames.Upstream)
			}
		}

		if err := s.writeBinary(f.Data); err != nil {
			s.Log().Error("Error sending audio: %v", err)
			return s.PushFrame(frames.NewErrorFrame(err), frames.Upstream)
		}

		// Audio continues downstream for audio-based interruption analysis
		return s.PushFrame(frame, direction)
	}

	return s.PushFrame(frame, direction)
}

func (s *STTService) receiveTranscriptions(ctx context.Context, conn *websocket.Conn) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, message, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) ||
					strings.Contains(err.Error(), "use of closed network connection") {
					s.Log().Debug("Connection closed")
					return
				}
				s.Log().Error("Error reading message: %v", err)
				s.PushFrame(frames.NewErrorFrame(err), frames.Upstream)
				return
			}

			var response struct {
				IsFinal bool `json:"is_final"`
				Channel struct {
					Alternatives []struct {
						Transcript string  `json:"transcript"`
						Confidence float64 `json:"confidence"`
					} `json:"alternatives"`
				} `json:"channel"`
			}
			if err := json.Unmarshal(message, &response); err != nil {
				s.Log().Error("Error parsing response: %v", err)
				continue
			}

			if len(response.Channel.Alternatives) > 0 {
				transcript := response.Channel.Alternatives[0].Transcript
				if transcript != "" {
					s.Log().Debug("Transcription (final=%v): %s", response.IsFinal, transcript)
					s.PushFrame(frames.NewTranscriptionFrame(transcript, response.IsFinal), frames.Downstream)
				}
			}
		}
	}
}

// keepaliveTask keeps the stream open; Deepgram times out after ~10s of silence
func (s *STTService) keepaliveTask(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.writeJSON(map[string]string{"type": "KeepAlive"}); err != nil {
				s.Log().Error("Error sending keepalive: %v", err)
				return
			}
		}
	}
}
