package worker

import (
	"context"
	"fmt"
	"sync"

	"github.com/voxkit-labs/voxkit-ai/src/room"
)

// Job describes one unit of work assigned by the dispatcher: serve a
// single room.
type Job struct {
	ID          string
	RoomName    string
	Participant string // identity of the participant that triggered the job, if any
}

type connectFunc func(ctx context.Context, opts room.ConnectOptions) (room.Room, error)

// JobContext is handed to the entrypoint for each assigned job. It carries
// the job description and owns the room connection: Connect dials the room
// at most once, and every later call returns the first result.
type JobContext struct {
	ctx    context.Context
	job    *Job
	config *Config

	connectOnce sync.Once
	room        room.Room
	connectErr  error

	dial connectFunc
}

// NewJobContext creates a job context bound to ctx. The context is
// cancelled when the job should stop.
func NewJobContext(ctx context.Context, job *Job, cfg *Config) *JobContext {
	return &JobContext{
		ctx:    ctx,
		job:    job,
		config: cfg,
		dial: func(ctx context.Context, opts room.ConnectOptions) (room.Room, error) {
			return room.Connect(ctx, opts)
		},
	}
}

// Job returns the job description
func (jc *JobContext) Job() *Job {
	return jc.job
}

// Context returns the job's lifetime context
func (jc *JobContext) Context() context.Context {
	return jc.ctx
}

// Connect joins the job's room using the worker's credentials. The
// connection is established exactly once; repeated calls are idempotent
// and return the outcome of the first attempt.
func (jc *JobContext) Connect(ctx context.Context) error {
	jc.connectOnce.Do(func() {
		jc.room, jc.connectErr = jc.dial(ctx, room.ConnectOptions{
			URL:       jc.config.URL,
			APIKey:    jc.config.APIKey,
			APISecret: jc.config.APISecret,
			RoomName:  jc.job.RoomName,
		})
	})
	return jc.connectErr
}

// Room returns the connected room, or an error if Connect has not
// succeeded yet
func (jc *JobContext) Room() (room.Room, error) {
	if jc.room == nil {
		return nil, fmt.Errorf("job %s: room not connected", jc.job.ID)
	}
	return jc.room, nil
}
