package room

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/voxkit-labs/voxkit-ai/src/frames"
	"github.com/voxkit-labs/voxkit-ai/src/logger"
	"github.com/voxkit-labs/voxkit-ai/src/processors"
	"golang.org/x/sync/errgroup"
)

// Room is the transport a session exchanges audio over. Input() yields the
// processor that feeds remote participant audio into the pipeline; Output()
// yields the processor that plays synthesized audio back into the room.
type Room interface {
	Name() string
	Input() processors.FrameProcessor
	Output() processors.FrameProcessor
	Close() error
}

// ConnectOptions configures a room connection
type ConnectOptions struct {
	URL       string // signaling endpoint, e.g. wss://host/rtc
	APIKey    string
	APISecret string
	RoomName  string
	Identity  string // defaults to a generated agent identity
}

// RTCRoom is a Room connected over the signaling socket and a WebRTC
// peer connection
type RTCRoom struct {
	name   string
	signal *SignalClient
	engine *mediaEngine
	input  *InputProcessor
	output *OutputProcessor

	cancel context.CancelFunc
	log    *logger.Logger
}

// Connect joins a room: it mints an access token, performs the signaling
// handshake and blocks until the media transport is established.
func Connect(ctx context.Context, opts ConnectOptions) (*RTCRoom, error) {
	if opts.RoomName == "" {
		return nil, fmt.Errorf("room name is required")
	}
	identity := opts.Identity
	if identity == "" {
		identity = "agent-" + uuid.NewString()[:8]
	}

	token, err := NewAccessToken(opts.APIKey, opts.APISecret).
		WithIdentity(identity).
		WithGrant(RoomGrant{
			Room:         opts.RoomName,
			CanPublish:   true,
			CanSubscribe: true,
			Agent:        true,
		}).
		ToJWT()
	if err != nil {
		return nil, err
	}

	signal, err := DialSignal(ctx, opts.URL, token)
	if err != nil {
		return nil, err
	}

	engine, err := newMediaEngine()
	if err != nil {
		signal.Close()
		return nil, err
	}

	r := &RTCRoom{
		name:   opts.RoomName,
		signal: signal,
		engine: engine,
		log:    logger.WithPrefix("Room:" + opts.RoomName),
	}
	r.input = NewInputProcessor(r)
	r.output = NewOutputProcessor(r)

	engine.onPCM = r.input.emitAudio

	answered := make(chan string, 1)
	signal.OnMessage(func(msg *SignalMessage) {
		switch msg.Type {
		case SignalAnswer:
			select {
			case answered <- msg.SDP:
			default:
			}
		case SignalTrickle:
			if err := engine.AddRemoteCandidate(msg.Candidate); err != nil {
				r.log.Error("Error adding remote candidate: %v", err)
			}
		case SignalParticipantJoin:
			r.log.Info("Participant joined: %s", msg.Participant)
		case SignalParticipantLeft:
			r.log.Info("Participant left: %s", msg.Participant)
		}
	})

	engine.OnICECandidate(func(candidate string) {
		if err := signal.Send(&SignalMessage{Type: SignalTrickle, Candidate: candidate}); err != nil {
			r.log.Error("Error sending candidate: %v", err)
		}
	})

	runCtx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	group, _ := errgroup.WithContext(runCtx)
	group.Go(func() error { return signal.Run(runCtx) })

	if err := signal.Send(&SignalMessage{Type: SignalJoin, Room: opts.RoomName, Identity: identity}); err != nil {
		r.Close()
		return nil, err
	}

	offer, err := engine.CreateOffer()
	if err != nil {
		r.Close()
		return nil, err
	}
	if err := signal.Send(&SignalMessage{Type: SignalOffer, SDP: offer}); err != nil {
		r.Close()
		return nil, err
	}

	select {
	case sdp := <-answered:
		if err := engine.HandleAnswer(sdp); err != nil {
			r.Close()
			return nil, err
		}
	case <-ctx.Done():
		r.Close()
		return nil, fmt.Errorf("no answer from signaling server: %w", ctx.Err())
	}

	if err := engine.WaitConnected(ctx); err != nil {
		r.Close()
		return nil, err
	}

	r.log.Info("Connected as %s", identity)
	return r, nil
}

func (r *RTCRoom) Name() string {
	return r.name
}

// Input returns the processor feeding room audio into the pipeline
func (r *RTCRoom) Input() processors.FrameProcessor {
	return r.input
}

// Output returns the processor playing pipeline audio into the room
func (r *RTCRoom) Output() processors.FrameProcessor {
	return r.output
}

// Close leaves the room and tears down transport state
func (r *RTCRoom) Close() error {
	if r.cancel != nil {
		r.cancel()
	}
	r.signal.Send(&SignalMessage{Type: SignalLeave})
	r.signal.Close()
	return r.engine.Close()
}

// InputProcessor is the pipeline entry for room audio. Audio does not
// arrive via HandleFrame; the media engine calls emitAudio from the
// decode loop and frames flow downstream from there.
type InputProcessor struct {
	*processors.BaseProcessor
	room *RTCRoom
}

// NewInputProcessor creates the room input processor
func NewInputProcessor(room *RTCRoom) *InputProcessor {
	p := &InputProcessor{room: room}
	p.BaseProcessor = processors.NewBaseProcessor("RoomInput", p)
	return p
}

// HandleFrame passes pipeline lifecycle frames through
func (p *InputProcessor) HandleFrame(ctx context.Context, frame frames.Frame, direction frames.FrameDirection) error {
	return p.PushFrame(frame, direction)
}

func (p *InputProcessor) emitAudio(pcm []byte, sampleRate int) {
	if err := p.PushFrame(frames.NewAudioFrame(pcm, sampleRate, 1), frames.Downstream); err != nil {
		p.Log().Error("Error pushing audio: %v", err)
	}
}

// OutputProcessor is the pipeline exit toward the room: synthesized audio
// frames are published on the local track, everything else passes through.
type OutputProcessor struct {
	*processors.BaseProcessor
	room *RTCRoom
}

// NewOutputProcessor creates the room output processor
func NewOutputProcessor(room *RTCRoom) *OutputProcessor {
	p := &OutputProcessor{room: room}
	p.BaseProcessor = processors.NewBaseProcessor("RoomOutput", p)
	return p
}

func (p *OutputProcessor) HandleFrame(ctx context.Context, frame frames.Frame, direction frames.FrameDirection) error {
	if ttsFrame, ok := frame.(*frames.TTSAudioFrame); ok {
		if err := p.room.engine.WriteAudio(ttsFrame.Data, ttsFrame.SampleRate); err != nil {
			p.Log().Error("Error publishing audio: %v", err)
			return p.PushFrame(frames.NewErrorFrame(err), frames.Upstream)
		}
		// Audio terminates here
		return nil
	}
	return p.PushFrame(frame, direction)
}
