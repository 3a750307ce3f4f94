package audio

import (
	"fmt"

	pionopus "github.com/pion/opus"
	hraban "gopkg.in/hraban/opus.v2"
)

// OpusEncoder encodes 16-bit PCM into opus packets for room publication.
// Backed by libopus; one encoder per published track.
type OpusEncoder struct {
	enc        *hraban.Encoder
	sampleRate int
	channels   int
	packetBuf  []byte
}

// NewOpusEncoder creates an encoder for the given sample rate and channel
// count. Opus only accepts 8, 12, 16, 24 or 48 kHz input.
func NewOpusEncoder(sampleRate, channels int) (*OpusEncoder, error) {
	enc, err := hraban.NewEncoder(sampleRate, channels, hraban.AppVoIP)
	if err != nil {
		return nil, fmt.Errorf("failed to create opus encoder: %w", err)
	}
	return &OpusEncoder{
		enc:        enc,
		sampleRate: sampleRate,
		channels:   channels,
		packetBuf:  make([]byte, 4000),
	}, nil
}

// Encode compresses one frame of little-endian PCM bytes into an opus
// packet. The input must contain a whole opus frame (2.5-60ms of audio).
func (e *OpusEncoder) Encode(pcmBytes []byte) ([]byte, error) {
	pcm, err := BytesToPCM(pcmBytes)
	if err != nil {
		return nil, err
	}

	n, err := e.enc.Encode(pcm, e.packetBuf)
	if err != nil {
		return nil, fmt.Errorf("opus encode failed: %w", err)
	}

	packet := make([]byte, n)
	copy(packet, e.packetBuf[:n])
	return packet, nil
}

// SampleRate returns the encoder's input sample rate
func (e *OpusEncoder) SampleRate() int {
	return e.sampleRate
}

// OpusDecoder decodes incoming opus packets to 16-bit PCM using the
// pure-Go pion decoder, so subscribing to remote audio needs no cgo.
type OpusDecoder struct {
	dec pionopus.Decoder
	out []byte
}

// NewOpusDecoder creates a decoder for mono voice streams
func NewOpusDecoder() *OpusDecoder {
	return &OpusDecoder{
		dec: pionopus.NewDecoder(),
		// 120ms at 48kHz stereo is the largest possible opus frame
		out: make([]byte, 1920*2*2*3),
	}
}

// Decode decompresses one opus packet into little-endian PCM bytes
func (d *OpusDecoder) Decode(packet []byte) ([]byte, error) {
	_, _, err := d.dec.Decode(packet, d.out)
	if err != nil {
		return nil, fmt.Errorf("opus decode failed: %w", err)
	}

	// pion's decoder always produces one 20ms 48kHz mono frame
	n := 960 * 2
	pcm := make([]byte, n)
	copy(pcm, d.out[:n])
	return pcm, nil
}
