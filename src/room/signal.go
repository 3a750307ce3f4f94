package room

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"
	"github.com/voxkit-labs/voxkit-ai/src/logger"
)

// Signal message types exchanged over the room signaling socket
const (
	SignalJoin            = "join"
	SignalJoined          = "joined"
	SignalOffer           = "offer"
	SignalAnswer          = "answer"
	SignalTrickle         = "trickle"
	SignalParticipantJoin = "participant_joined"
	SignalParticipantLeft = "participant_left"
	SignalLeave           = "leave"
)

// SignalMessage is the msgpack envelope for all signaling traffic
type SignalMessage struct {
	Type        string `msgpack:"type"`
	Room        string `msgpack:"room,omitempty"`
	Identity    string `msgpack:"identity,omitempty"`
	SDP         string `msgpack:"sdp,omitempty"`
	Candidate   string `msgpack:"candidate,omitempty"`
	Participant string `msgpack:"participant,omitempty"`
	Error       string `msgpack:"error,omitempty"`
}

// SignalClient is a msgpack-over-websocket client for the room signaling
// protocol. Reads are pumped into a handler callback; writes are
// serialized with a mutex because gorilla connections allow only one
// concurrent writer.
type SignalClient struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	handler func(*SignalMessage)
	log     *logger.Logger

	closeOnce sync.Once
	done      chan struct{}
}

// DialSignal connects to the signaling endpoint, authenticating with the
// given bearer token
func DialSignal(ctx context.Context, url, token string) (*SignalClient, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, fmt.Errorf("failed to dial signaling server: %w", err)
	}

	return &SignalClient{
		conn: conn,
		log:  logger.WithPrefix("Signal"),
		done: make(chan struct{}),
	}, nil
}

// OnMessage sets the handler invoked for every inbound message.
// Must be called before Run.
func (c *SignalClient) OnMessage(handler func(*SignalMessage)) {
	c.handler = handler
}

// Send writes one signaling message
func (c *SignalClient) Send(msg *SignalMessage) error {
	payload, err := msgpack.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode signal message: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.WriteMessage(websocket.BinaryMessage, payload); err != nil {
		return fmt.Errorf("failed to send signal message: %w", err)
	}
	return nil
}

// Run pumps inbound messages into the handler until the connection closes
// or ctx is cancelled
func (c *SignalClient) Run(ctx context.Context) error {
	defer c.Close()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.done:
			return nil
		default:
		}

		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("signal read failed: %w", err)
		}

		var msg SignalMessage
		if err := msgpack.Unmarshal(payload, &msg); err != nil {
			c.log.Error("Dropping malformed signal message: %v", err)
			continue
		}

		if c.handler != nil {
			c.handler(&msg)
		}
	}
}

// Close tears down the connection
func (c *SignalClient) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.conn.Close()
	})
	return err
}
