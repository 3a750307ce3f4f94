package room

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"
	"github.com/pion/webrtc/v3/pkg/media"
	"github.com/voxkit-labs/voxkit-ai/src/audio"
	"github.com/voxkit-labs/voxkit-ai/src/logger"
)

const (
	// Opus on WebRTC is always 48kHz; one 20ms frame is 960 samples
	mediaSampleRate  = 48000
	opusFrameSamples = 960
	opusFrameBytes   = opusFrameSamples * 2
)

// mediaEngine owns the peer connection: one published opus track for the
// agent's voice and a subscription to the remote participant's audio.
type mediaEngine struct {
	pc      *webrtc.PeerConnection
	track   *webrtc.TrackLocalStaticSample
	encoder *audio.OpusEncoder
	decoder *audio.OpusDecoder

	onPCM func(pcm []byte, sampleRate int)

	pcmBuf  []byte
	writeMu sync.Mutex

	connected chan struct{}
	connOnce  sync.Once
	log       *logger.Logger
}

func newMediaEngine() (*mediaEngine, error) {
	me := &webrtc.MediaEngine{}
	if err := me.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("failed to register codecs: %w", err)
	}

	api := webrtc.NewAPI(webrtc.WithMediaEngine(me))
	pc, err := api.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		return nil, fmt.Errorf("failed to create peer connection: %w", err)
	}

	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{
			MimeType:  webrtc.MimeTypeOpus,
			ClockRate: mediaSampleRate,
			Channels:  1,
		},
		"audio", "voxkit-agent",
	)
	if err != nil {
		pc.Close()
		return nil, fmt.Errorf("failed to create local track: %w", err)
	}
	if _, err := pc.AddTrack(track); err != nil {
		pc.Close()
		return nil, fmt.Errorf("failed to add local track: %w", err)
	}

	encoder, err := audio.NewOpusEncoder(mediaSampleRate, 1)
	if err != nil {
		pc.Close()
		return nil, err
	}

	m := &mediaEngine{
		pc:        pc,
		track:     track,
		encoder:   encoder,
		decoder:   audio.NewOpusDecoder(),
		connected: make(chan struct{}),
		log:       logger.WithPrefix("Media"),
	}

	pc.OnTrack(m.handleRemoteTrack)
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		m.log.Debug("Connection state: %s", state)
		if state == webrtc.PeerConnectionStateConnected {
			m.connOnce.Do(func() { close(m.connected) })
		}
	})

	return m, nil
}

// handleRemoteTrack decodes inbound opus into PCM and hands it to onPCM
func (m *mediaEngine) handleRemoteTrack(remote *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
	if remote.Kind() != webrtc.RTPCodecTypeAudio {
		return
	}
	m.log.Info("Subscribed to remote audio track %s", remote.ID())

	for {
		packet, _, err := remote.ReadRTP()
		if err != nil {
			if err != io.EOF {
				m.log.Debug("Remote track ended: %v", err)
			}
			return
		}
		m.handleRTPPacket(packet)
	}
}

func (m *mediaEngine) handleRTPPacket(packet *rtp.Packet) {
	if len(packet.Payload) == 0 {
		return
	}
	pcm, err := m.decoder.Decode(packet.Payload)
	if err != nil {
		m.log.Debug("Opus decode error: %v", err)
		return
	}
	if m.onPCM != nil {
		m.onPCM(pcm, mediaSampleRate)
	}
}

// CreateOffer produces the local SDP offer
func (m *mediaEngine) CreateOffer() (string, error) {
	offer, err := m.pc.CreateOffer(nil)
	if err != nil {
		return "", fmt.Errorf("failed to create offer: %w", err)
	}
	if err := m.pc.SetLocalDescription(offer); err != nil {
		return "", fmt.Errorf("failed to set local description: %w", err)
	}
	return offer.SDP, nil
}

// HandleAnswer applies the remote SDP answer
func (m *mediaEngine) HandleAnswer(sdp string) error {
	return m.pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  sdp,
	})
}

// OnICECandidate registers a callback receiving serialized local candidates
func (m *mediaEngine) OnICECandidate(send func(candidate string)) {
	m.pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		payload, err := json.Marshal(c.ToJSON())
		if err != nil {
			m.log.Error("Failed to serialize candidate: %v", err)
			return
		}
		send(string(payload))
	})
}

// AddRemoteCandidate applies a serialized remote ICE candidate
func (m *mediaEngine) AddRemoteCandidate(candidate string) error {
	var init webrtc.ICECandidateInit
	if err := json.Unmarshal([]byte(candidate), &init); err != nil {
		return fmt.Errorf("malformed ICE candidate: %w", err)
	}
	return m.pc.AddICECandidate(init)
}

// WaitConnected blocks until the peer connection is established
func (m *mediaEngine) WaitConnected(ctx context.Context) error {
	select {
	case <-m.connected:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("media connection not established: %w", ctx.Err())
	}
}

// WriteAudio publishes PCM audio on the local track. Input is resampled
// to 48kHz and sliced into 20ms opus frames; a trailing partial frame is
// kept until the next write.
func (m *mediaEngine) WriteAudio(pcmBytes []byte, sampleRate int) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	if sampleRate != mediaSampleRate {
		pcm, err := audio.BytesToPCM(pcmBytes)
		if err != nil {
			return err
		}
		pcmBytes = audio.PCMToBytes(audio.Resample(pcm, sampleRate, mediaSampleRate))
	}

	m.pcmBuf = append(m.pcmBuf, pcmBytes...)

	for len(m.pcmBuf) >= opusFrameBytes {
		frame := m.pcmBuf[:opusFrameBytes]
		m.pcmBuf = m.pcmBuf[opusFrameBytes:]

		packet, err := m.encoder.Encode(frame)
		if err != nil {
			return err
		}
		if err := m.track.WriteSample(media.Sample{
			Data:     packet,
			Duration: 20 * time.Millisecond,
		}); err != nil {
			return fmt.Errorf("failed to write sample: %w", err)
		}
	}
	return nil
}

// Close tears down the peer connection
func (m *mediaEngine) Close() error {
	return m.pc.Close()
}
