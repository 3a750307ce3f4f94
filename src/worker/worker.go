package worker

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"
	"github.com/voxkit-labs/voxkit-ai/src/logger"
	"github.com/voxkit-labs/voxkit-ai/src/room"
	"golang.org/x/sync/errgroup"
)

// Message types exchanged with the job dispatcher
const (
	msgRegister     = "register"
	msgRegistered   = "registered"
	msgAvailability = "availability"
	msgAssignment   = "assignment"
	msgJobDone      = "job_done"
	msgPing         = "ping"
	msgPong         = "pong"
)

// dispatchMessage is the msgpack envelope for dispatcher traffic
type dispatchMessage struct {
	Type        string `msgpack:"type"`
	WorkerID    string `msgpack:"worker_id,omitempty"`
	AgentName   string `msgpack:"agent_name,omitempty"`
	JobID       string `msgpack:"job_id,omitempty"`
	Room        string `msgpack:"room,omitempty"`
	Participant string `msgpack:"participant,omitempty"`
	Available   bool   `msgpack:"available,omitempty"`
	Error       string `msgpack:"error,omitempty"`
}

// JobHandler is the per-job entrypoint supplied by the application
type JobHandler func(ctx *JobContext) error

// Options configures a Worker
type Options struct {
	Config     *Config
	Entrypoint JobHandler

	// PingInterval between keepalive pings. Defaults to 15s.
	PingInterval time.Duration

	// DrainTimeout bounds how long shutdown waits for running jobs.
	// Defaults to 60s.
	DrainTimeout time.Duration
}

// Worker registers with the job dispatcher over a websocket and runs the
// entrypoint for every job it is assigned, one goroutine per job. On
// shutdown it stops accepting assignments and drains running jobs.
type Worker struct {
	id   string
	opts Options
	log  *logger.Logger

	conn    *websocket.Conn
	writeMu sync.Mutex

	mu     sync.Mutex
	active map[string]context.CancelFunc
}

// NewWorker creates a worker from the given options
func NewWorker(opts Options) (*Worker, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("worker requires a config")
	}
	if err := opts.Config.Validate(); err != nil {
		return nil, err
	}
	if opts.Entrypoint == nil {
		return nil, fmt.Errorf("worker requires an entrypoint")
	}
	if opts.PingInterval == 0 {
		opts.PingInterval = 15 * time.Second
	}
	if opts.DrainTimeout == 0 {
		opts.DrainTimeout = 60 * time.Second
	}

	id := "worker-" + uuid.NewString()[:8]
	return &Worker{
		id:     id,
		opts:   opts,
		log:    logger.WithPrefix("Worker:" + id),
		active: make(map[string]context.CancelFunc),
	}, nil
}

// ID returns the worker's generated identifier
func (w *Worker) ID() string {
	return w.id
}

// ActiveJobs returns the number of jobs currently running
func (w *Worker) ActiveJobs() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.active)
}

// Run connects to the dispatcher, registers, and serves assignments until
// ctx is cancelled. Running jobs are drained before Run returns.
func (w *Worker) Run(ctx context.Context) error {
	cfg := w.opts.Config

	token, err := room.NewAccessToken(cfg.APIKey, cfg.APISecret).
		WithIdentity(w.id).
		WithGrant(room.RoomGrant{Agent: true}).
		ToJWT()
	if err != nil {
		return fmt.Errorf("failed to mint worker token: %w", err)
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, cfg.URL, header)
	if err != nil {
		return fmt.Errorf("failed to dial dispatcher: %w", err)
	}
	w.conn = conn
	defer conn.Close()

	if err := w.send(&dispatchMessage{
		Type:      msgRegister,
		WorkerID:  w.id,
		AgentName: cfg.AgentName,
	}); err != nil {
		return err
	}
	w.log.Info("Registered with dispatcher at %s", cfg.URL)

	jobs, jobCtx := errgroup.WithContext(context.Background())

	pingDone := make(chan struct{})
	go w.pingTask(ctx, pingDone)

	readErr := make(chan error, 1)
	go func() {
		readErr <- w.readLoop(ctx, jobs, jobCtx)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		// Drain: stop taking assignments but let running jobs finish,
		// up to the drain timeout.
		w.log.Info("Shutting down, draining %d active jobs", w.ActiveJobs())
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "draining"),
			time.Now().Add(time.Second))

		drained := make(chan struct{})
		go func() {
			select {
			case <-time.After(w.opts.DrainTimeout):
				w.log.Warn("Drain timeout reached, cancelling %d jobs", w.ActiveJobs())
				w.cancelJobs()
			case <-drained:
			}
		}()
		defer close(drained)

	case runErr = <-readErr:
		w.cancelJobs()
	}

	close(pingDone)
	if err := jobs.Wait(); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

func (w *Worker) readLoop(ctx context.Context, jobs *errgroup.Group, jobCtx context.Context) error {
	for {
		_, payload, err := w.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("dispatcher read failed: %w", err)
		}

		var msg dispatchMessage
		if err := msgpack.Unmarshal(payload, &msg); err != nil {
			w.log.Error("Dropping malformed dispatcher message: %v", err)
			continue
		}

		switch msg.Type {
		case msgRegistered:
			w.log.Info("Dispatcher acknowledged registration")

		case msgAvailability:
			avail := ctx.Err() == nil &&
				(w.opts.Config.MaxJobs == 0 || w.ActiveJobs() < w.opts.Config.MaxJobs)
			if err := w.send(&dispatchMessage{
				Type:      msgAvailability,
				WorkerID:  w.id,
				JobID:     msg.JobID,
				Available: avail,
			}); err != nil {
				return err
			}

		case msgAssignment:
			if ctx.Err() != nil {
				continue
			}
			w.startJob(jobs, jobCtx, &Job{
				ID:          msg.JobID,
				RoomName:    msg.Room,
				Participant: msg.Participant,
			})

		case msgPong:
			// keepalive reply, nothing to do

		default:
			w.log.Debug("Ignoring dispatcher message type %q", msg.Type)
		}
	}
}

func (w *Worker) startJob(jobs *errgroup.Group, parent context.Context, job *Job) {
	ctx, cancel := context.WithCancel(parent)

	w.mu.Lock()
	w.active[job.ID] = cancel
	w.mu.Unlock()

	w.log.Info("Starting job %s for room %s", job.ID, job.RoomName)

	jobs.Go(func() error {
		defer func() {
			cancel()
			w.mu.Lock()
			delete(w.active, job.ID)
			w.mu.Unlock()
		}()

		jc := NewJobContext(ctx, job, w.opts.Config)
		err := w.opts.Entrypoint(jc)

		done := &dispatchMessage{Type: msgJobDone, WorkerID: w.id, JobID: job.ID}
		if err != nil {
			w.log.Error("Job %s failed: %v", job.ID, err)
			done.Error = err.Error()
		} else {
			w.log.Info("Job %s finished", job.ID)
		}
		w.send(done)

		if rm, rerr := jc.Room(); rerr == nil {
			rm.Close()
		}
		return nil
	})
}

func (w *Worker) cancelJobs() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, cancel := range w.active {
		cancel()
	}
}

func (w *Worker) pingTask(ctx context.Context, done chan struct{}) {
	ticker := time.NewTicker(w.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case <-ticker.C:
			if err := w.send(&dispatchMessage{Type: msgPing, WorkerID: w.id}); err != nil {
				return
			}
		}
	}
}

func (w *Worker) send(msg *dispatchMessage) error {
	payload, err := msgpack.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode dispatcher message: %w", err)
	}

	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	if err := w.conn.WriteMessage(websocket.BinaryMessage, payload); err != nil {
		return fmt.Errorf("failed to send dispatcher message: %w", err)
	}
	return nil
}
