package worker

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
	"github.com/voxkit-labs/voxkit-ai/src/processors"
	"github.com/voxkit-labs/voxkit-ai/src/room"
)

// fakeRoom satisfies room.Room without any transport
type fakeRoom struct {
	name   string
	closed bool
}

func (r *fakeRoom) Name() string { return r.name }
func (r *fakeRoom) Input() processors.FrameProcessor {
	return processors.NewBaseProcessor("FakeInput", nil)
}
func (r *fakeRoom) Output() processors.FrameProcessor {
	return processors.NewBaseProcessor("FakeOutput", nil)
}
func (r *fakeRoom) Close() error {
	r.closed = true
	return nil
}

// dispatcher is a fake job server: it records what the worker sends and
// lets tests push messages down to it
type dispatcher struct {
	*httptest.Server

	upgrader websocket.Upgrader

	mu       sync.Mutex
	conn     *websocket.Conn
	inbox    chan *dispatchMessage
	auth     chan string
	connOpen chan struct{}
}

func newDispatcher(t *testing.T) *dispatcher {
	t.Helper()
	d := &dispatcher{
		inbox:    make(chan *dispatchMessage, 16),
		auth:     make(chan string, 1),
		connOpen: make(chan struct{}),
	}
	d.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d.auth <- r.Header.Get("Authorization")

		conn, err := d.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		d.mu.Lock()
		d.conn = conn
		d.mu.Unlock()
		close(d.connOpen)

		for {
			_, payload, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var msg dispatchMessage
			if err := msgpack.Unmarshal(payload, &msg); err != nil {
				continue
			}
			d.inbox <- &msg
		}
	}))
	t.Cleanup(d.Close)
	return d
}

func (d *dispatcher) wsURL() string {
	return "ws" + strings.TrimPrefix(d.URL, "http")
}

func (d *dispatcher) send(t *testing.T, msg *dispatchMessage) {
	t.Helper()
	select {
	case <-d.connOpen:
	case <-time.After(2 * time.Second):
		t.Fatal("worker never connected")
	}

	payload, err := msgpack.Marshal(msg)
	require.NoError(t, err)

	d.mu.Lock()
	defer d.mu.Unlock()
	require.NoError(t, d.conn.WriteMessage(websocket.BinaryMessage, payload))
}

func (d *dispatcher) expect(t *testing.T, msgType string) *dispatchMessage {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case msg := <-d.inbox:
			if msg.Type == msgType {
				return msg
			}
		case <-deadline:
			t.Fatalf("dispatcher never received %q", msgType)
			return nil
		}
	}
}

func dispatcherConfig(d *dispatcher) *Config {
	return &Config{
		URL:       d.wsURL(),
		APIKey:    "key",
		APISecret: "secret",
		AgentName: "assistant",
	}
}

func TestWorker_RegistersWithSignedToken(t *testing.T) {
	d := newDispatcher(t)

	w, err := NewWorker(Options{
		Config:     dispatcherConfig(d),
		Entrypoint: func(ctx *JobContext) error { return nil },
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	select {
	case auth := <-d.auth:
		token := strings.TrimPrefix(auth, "Bearer ")
		require.NotEqual(t, auth, token, "expected a bearer token")

		claims, err := room.VerifyToken(token, "secret")
		require.NoError(t, err)
		assert.Equal(t, "key", claims.Issuer)
		assert.Equal(t, w.ID(), claims.Subject)
		assert.True(t, claims.Grant.Agent)
	case <-time.After(2 * time.Second):
		t.Fatal("worker never dialed")
	}

	reg := d.expect(t, msgRegister)
	assert.Equal(t, w.ID(), reg.WorkerID)
	assert.Equal(t, "assistant", reg.AgentName)

	cancel()
	assert.NoError(t, <-done)
}

func TestWorker_RunsAssignedJob(t *testing.T) {
	d := newDispatcher(t)

	jobs := make(chan *Job, 1)
	w, err := NewWorker(Options{
		Config: dispatcherConfig(d),
		Entrypoint: func(ctx *JobContext) error {
			jobs <- ctx.Job()
			return nil
		},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	d.expect(t, msgRegister)
	d.send(t, &dispatchMessage{
		Type:        msgAssignment,
		JobID:       "job-42",
		Room:        "lobby",
		Participant: "caller-1",
	})

	select {
	case job := <-jobs:
		assert.Equal(t, "job-42", job.ID)
		assert.Equal(t, "lobby", job.RoomName)
		assert.Equal(t, "caller-1", job.Participant)
	case <-time.After(2 * time.Second):
		t.Fatal("entrypoint never ran")
	}

	finished := d.expect(t, msgJobDone)
	assert.Equal(t, "job-42", finished.JobID)
	assert.Empty(t, finished.Error)

	cancel()
	<-done
}

func TestWorker_ReportsJobFailure(t *testing.T) {
	d := newDispatcher(t)

	w, err := NewWorker(Options{
		Config: dispatcherConfig(d),
		Entrypoint: func(ctx *JobContext) error {
			return assert.AnError
		},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	d.expect(t, msgRegister)
	d.send(t, &dispatchMessage{Type: msgAssignment, JobID: "job-9", Room: "lobby"})

	failed := d.expect(t, msgJobDone)
	assert.Equal(t, "job-9", failed.JobID)
	assert.Equal(t, assert.AnError.Error(), failed.Error)

	cancel()
	<-done
}

func TestWorker_AnswersAvailability(t *testing.T) {
	d := newDispatcher(t)

	block := make(chan struct{})
	cfg := dispatcherConfig(d)
	cfg.MaxJobs = 1

	w, err := NewWorker(Options{
		Config: cfg,
		Entrypoint: func(ctx *JobContext) error {
			<-block
			return nil
		},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	d.expect(t, msgRegister)

	d.send(t, &dispatchMessage{Type: msgAvailability, JobID: "job-1"})
	avail := d.expect(t, msgAvailability)
	assert.True(t, avail.Available)

	// Fill the single job slot, then ask again
	d.send(t, &dispatchMessage{Type: msgAssignment, JobID: "job-1", Room: "lobby"})
	waitForActiveJobs(t, w, 1)

	d.send(t, &dispatchMessage{Type: msgAvailability, JobID: "job-2"})
	busy := d.expect(t, msgAvailability)
	assert.False(t, busy.Available)

	close(block)
	d.expect(t, msgJobDone)

	cancel()
	<-done
}

func TestWorker_RequiresConfigAndEntrypoint(t *testing.T) {
	_, err := NewWorker(Options{})
	assert.Error(t, err)

	_, err = NewWorker(Options{Config: testConfig()})
	assert.Error(t, err)

	_, err = NewWorker(Options{
		Config:     &Config{URL: "wss://x"},
		Entrypoint: func(ctx *JobContext) error { return nil },
	})
	assert.Error(t, err)
}

func waitForActiveJobs(t *testing.T, w *Worker, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if w.ActiveJobs() == n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("worker never reached %d active jobs", n)
}
