package audio

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/voxkit-labs/voxkit-ai/src/frames"
	"github.com/voxkit-labs/voxkit-ai/src/processors"
)

// AudioConverterProcessor converts audio between codecs and sample rates.
// Sits between the room transport and the STT/TTS stages when their native
// formats disagree (e.g. 48kHz room audio vs 16kHz STT input).
type AudioConverterProcessor struct {
	*processors.BaseProcessor
	inputSampleRate  int
	inputCodec       string
	outputSampleRate int
	outputCodec      string
}

// AudioConverterConfig holds configuration for audio conversion
type AudioConverterConfig struct {
	InputSampleRate  int    // e.g., 8000, 16000, 24000, 48000
	InputCodec       string // "mulaw"/"ulaw"/"PCMU", "alaw"/"PCMA", "linear16"/"pcm"
	OutputSampleRate int
	OutputCodec      string
}

// NewAudioConverterProcessor creates a new audio converter
func NewAudioConverterProcessor(config AudioConverterConfig) *AudioConverterProcessor {
	ac := &AudioConverterProcessor{
		inputSampleRate:  config.InputSampleRate,
		inputCodec:       config.InputCodec,
		outputSampleRate: config.OutputSampleRate,
		outputCodec:      config.OutputCodec,
	}
	ac.BaseProcessor = processors.NewBaseProcessor("AudioConverter", ac)
	return ac
}

func (p *AudioConverterProcessor) HandleFrame(ctx context.Context, frame frames.Frame, direction frames.FrameDirection) error {
	switch f := frame.(type) {
	case *frames.AudioFrame:
		converted, err := p.convertAudio(f.Data, f.SampleRate)
		if err != nil {
			p.Log().Error("Error converting audio: %v", err)
			return p.PushFrame(frames.NewErrorFrame(err), frames.Upstream)
		}
		newFrame := frames.NewAudioFrame(converted, p.outputSampleRate, f.Channels)
		for k, v := range f.Metadata() {
			newFrame.SetMetadata(k, v)
		}
		return p.PushFrame(newFrame, direction)

	case *frames.TTSAudioFrame:
		converted, err := p.convertAudio(f.Data, f.SampleRate)
		if err != nil {
			p.Log().Error("Error converting TTS audio: %v", err)
			return p.PushFrame(frames.NewErrorFrame(err), frames.Upstream)
		}
		return p.PushFrame(frames.NewTTSAudioFrame(converted, p.outputSampleRate, f.Channels), direction)
	}

	return p.PushFrame(frame, direction)
}

func (p *AudioConverterProcessor) convertAudio(data []byte, inputRate int) ([]byte, error) {
	if inputRate == 0 {
		inputRate = p.inputSampleRate
	}

	var pcm []int16
	var err error

	switch normalizeCodecName(p.inputCodec) {
	case "mulaw":
		pcm = MulawToPCM(data)
	case "alaw":
		pcm = AlawToPCM(data)
	case "linear16":
		pcm, err = BytesToPCM(data)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported input codec: %s", p.inputCodec)
	}

	if inputRate != p.outputSampleRate {
		pcm = Resample(pcm, inputRate, p.outputSampleRate)
	}

	switch normalizeCodecName(p.outputCodec) {
	case "linear16":
		return PCMToBytes(pcm), nil
	case "mulaw":
		return PCMToMulaw(pcm), nil
	case "alaw":
		return PCMToAlaw(pcm), nil
	default:
		return nil, fmt.Errorf("unsupported output codec: %s", p.outputCodec)
	}
}

// normalizeCodecName maps codec name variations to a standard form
func normalizeCodecName(codec string) string {
	switch codec {
	case "mulaw", "ulaw", "PCMU":
		return "mulaw"
	case "alaw", "PCMA":
		return "alaw"
	case "linear16", "pcm", "PCM", "":
		return "linear16"
	default:
		return codec
	}
}

// MulawToPCM converts G.711 mu-law audio to linear PCM int16
func MulawToPCM(mulaw []byte) []int16 {
	pcm := make([]int16, len(mulaw))
	for i, val := range mulaw {
		pcm[i] = mulawDecode(val)
	}
	return pcm
}

// PCMToMulaw converts linear PCM int16 to G.711 mu-law
func PCMToMulaw(pcm []int16) []byte {
	mulaw := make([]byte, len(pcm))
	for i, val := range pcm {
		mulaw[i] = mulawEncode(val)
	}
	return mulaw
}

// AlawToPCM converts G.711 A-law audio to linear PCM int16
func AlawToPCM(alaw []byte) []int16 {
	pcm := make([]int16, len(alaw))
	for i, val := range alaw {
		pcm[i] = alawDecode(val)
	}
	return pcm
}

// PCMToAlaw converts linear PCM int16 to G.711 A-law
func PCMToAlaw(pcm []int16) []byte {
	alaw := make([]byte, len(pcm))
	for i, val := range pcm {
		alaw[i] = alawEncode(val)
	}
	return alaw
}

// BytesToPCM converts little-endian bytes to int16 PCM samples
func BytesToPCM(data []byte) ([]int16, error) {
	if len(data)%2 != 0 {
		return nil, fmt.Errorf("invalid PCM data length: %d", len(data))
	}
	pcm := make([]int16, len(data)/2)
	for i := range pcm {
		pcm[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return pcm, nil
}

// PCMToBytes converts int16 PCM samples to little-endian bytes
func PCMToBytes(pcm []int16) []byte {
	data := make([]byte, len(pcm)*2)
	for i, val := range pcm {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(val))
	}
	return data
}

// Resample performs linear interpolation resampling. Good enough for voice;
// swap in a polyphase resampler if fidelity ever matters.
func Resample(input []int16, inputRate, outputRate int) []int16 {
	if inputRate == outputRate || len(input) == 0 {
		return input
	}

	ratio := float64(inputRate) / float64(outputRate)
	outputLen := int(float64(len(input)) / ratio)
	output := make([]int16, outputLen)

	for i := 0; i < outputLen; i++ {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := srcPos - float64(srcIdx)

		if srcIdx+1 < len(input) {
			sample1 := float64(input[srcIdx])
			sample2 := float64(input[srcIdx+1])
			output[i] = int16(sample1 + (sample2-sample1)*frac)
		} else if srcIdx < len(input) {
			output[i] = input[srcIdx]
		}
	}

	return output
}

// G.711 companding, computed rather than table-driven

const (
	mulawBias = 0x84
	mulawClip = 32635
)

func mulawEncode(sample int16) byte {
	sign := byte(0)
	s := int32(sample)
	if s < 0 {
		s = -s
		sign = 0x80
	}
	if s > mulawClip {
		s = mulawClip
	}
	s += mulawBias

	exponent := byte(7)
	for mask := int32(0x4000); exponent > 0 && s&mask == 0; mask >>= 1 {
		exponent--
	}
	mantissa := byte((s >> (exponent + 3)) & 0x0F)
	return ^(sign | (exponent << 4) | mantissa)
}

func mulawDecode(u byte) int16 {
	u = ^u
	sign := u & 0x80
	exponent := (u >> 4) & 0x07
	mantissa := u & 0x0F

	magnitude := ((int32(mantissa) << 3) + mulawBias) << exponent
	magnitude -= mulawBias

	if sign != 0 {
		return int16(-magnitude)
	}
	return int16(magnitude)
}

func alawEncode(sample int16) byte {
	sign := byte(0)
	s := int32(sample)
	if s >= 0 {
		sign = 0x80
	} else {
		s = -s - 1
	}
	if s > mulawClip {
		s = mulawClip
	}

	var compressed byte
	if s >= 256 {
		exponent := byte(1)
		for tmp := s >> 9; tmp != 0 && exponent < 7; tmp >>= 1 {
			exponent++
		}
		mantissa := byte((s >> (exponent + 3)) & 0x0F)
		compressed = (exponent << 4) | mantissa
	} else {
		compressed = byte(s >> 4)
	}
	return (compressed | sign) ^ 0x55
}

func alawDecode(a byte) int16 {
	a ^= 0x55
	sign := a & 0x80
	exponent := (a >> 4) & 0x07
	mantissa := a & 0x0F

	var magnitude int32
	if exponent == 0 {
		magnitude = int32(mantissa)<<4 + 8
	} else {
		magnitude = (int32(mantissa)<<4 + 0x108) << (exponent - 1)
	}

	if sign == 0 {
		return int16(-magnitude)
	}
	return int16(magnitude)
}
