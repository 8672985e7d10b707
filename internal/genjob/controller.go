package genjob

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"genmoji/internal/catalog"
	"genmoji/internal/gateway"
)

// State is the lifecycle position of the current generation job.
type State int

const (
	StateIdle State = iota
	StateSubmitting
	StateInProgress
	StateSucceeded
	StateFailed
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSubmitting:
		return "submitting"
	case StateInProgress:
		return "in_progress"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether the state admits no further transitions except
// an explicit Reset.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed || s == StateCancelled
}

// ErrorClass splits failures into retryable and not.
type ErrorClass int

const (
	// Transient failures may succeed on a user-initiated resubmit.
	Transient ErrorClass = iota
	// Permanent failures (policy rejections, malformed responses) will not.
	Permanent
)

// JobError is the classified failure of a generation job.
type JobError struct {
	Class   ErrorClass
	Code    string
	Message string
}

// Result references the produced genmoji.
type Result struct {
	Slug     string
	ImageURL string
}

// Snapshot is the observable value of the job store. It is a plain copy;
// observers cannot mutate controller state through it.
type Snapshot struct {
	State    State
	Prompt   string
	Progress int
	Result   *Result
	Err      *JobError
}

var (
	// ErrEmptyPrompt rejects a submit whose prompt is blank after trimming.
	ErrEmptyPrompt = errors.New("genjob: prompt is empty")
	// ErrJobActive rejects Reset while a job is still running.
	ErrJobActive = errors.New("genjob: job still active")
)

// API is the slice of the catalog client the controller needs.
type API interface {
	Generate(ctx context.Context, prompt string, opts catalog.GenerateOptions) (catalog.GenerateAccepted, error)
	JobStatus(ctx context.Context, jobID string) (catalog.JobStatusResponse, error)
}

// Options configures a Controller.
type Options struct {
	PollInterval time.Duration
	Logger       *zerolog.Logger
}

// Controller owns the single live generation job. It is constructed once at
// application start and injected into every surface that submits, cancels
// or observes generation; all of them see the same store.
//
// Submitting while a job is active cancels the previous job ("last request
// wins"): its sequence token goes stale, so any response it still produces
// is discarded at apply time.
type Controller struct {
	api          API
	pollInterval time.Duration
	logger       zerolog.Logger

	mu        sync.Mutex
	seq       uint64
	snap      Snapshot
	cancel    context.CancelFunc
	observers map[int]func(Snapshot)
	nextObs   int
}

func NewController(api API, opts Options) *Controller {
	interval := opts.PollInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	return &Controller{
		api:          api,
		pollInterval: interval,
		logger:       logger,
		snap:         Snapshot{State: StateIdle},
		observers:    make(map[int]func(Snapshot)),
	}
}

// Submit starts a new generation job. A currently active job is cancelled
// first. Returns ErrEmptyPrompt without touching state when the prompt is
// blank.
func (c *Controller) Submit(ctx context.Context, prompt string, opts catalog.GenerateOptions) error {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return ErrEmptyPrompt
	}

	c.mu.Lock()
	c.seq++
	token := c.seq
	if c.cancel != nil {
		c.cancel()
	}
	jobCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.snap = Snapshot{State: StateSubmitting, Prompt: prompt}
	c.notifyLocked()
	c.mu.Unlock()

	c.logger.Debug().Uint64("job_seq", token).Str("prompt", prompt).Msg("genjob: submitted")
	go c.run(jobCtx, token, prompt, opts)
	return nil
}

// Cancel moves a non-terminal job to Cancelled and invalidates its token.
// Calling it while Idle or already terminal is a no-op.
func (c *Controller) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.snap.State != StateSubmitting && c.snap.State != StateInProgress {
		return
	}
	c.seq++ // responses for the old token are now stale
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.snap.State = StateCancelled
	c.notifyLocked()
}

// Reset returns a terminal job to Idle. Calling it while a job is active
// returns ErrJobActive and leaves state untouched.
func (c *Controller) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.snap.State {
	case StateIdle:
		return nil
	case StateSubmitting, StateInProgress:
		return ErrJobActive
	}
	c.snap = Snapshot{State: StateIdle}
	c.notifyLocked()
	return nil
}

// Snapshot returns the current job state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap
}

// Subscribe registers an observer called with every state change, starting
// with the current snapshot. The returned func unsubscribes.
func (c *Controller) Subscribe(fn func(Snapshot)) func() {
	c.mu.Lock()
	id := c.nextObs
	c.nextObs++
	c.observers[id] = fn
	snap := c.snap
	c.mu.Unlock()

	fn(snap)
	return func() {
		c.mu.Lock()
		delete(c.observers, id)
		c.mu.Unlock()
	}
}

// notifyLocked delivers the current snapshot to all observers. Called with
// the mutex held so every observer sees the same ordered sequence of
// snapshots; observers must not call back into the controller.
func (c *Controller) notifyLocked() {
	for _, fn := range c.observers {
		fn(c.snap)
	}
}

// run drives one job: submit, then poll until terminal. Every mutation goes
// through apply, which drops it when token no longer matches the live job.
func (c *Controller) run(ctx context.Context, token uint64, prompt string, opts catalog.GenerateOptions) {
	acc, err := c.api.Generate(ctx, prompt, opts)
	if err != nil {
		c.fail(token, classify(err))
		return
	}

	c.apply(token, func(s *Snapshot) {
		s.State = StateInProgress
	})

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if ctx.Err() != nil {
			// Both channels can be ready at once; a superseded job must
			// never issue another poll.
			return
		}

		status, err := c.api.JobStatus(ctx, acc.JobID)
		if err != nil {
			// Poll failures during a transient blip would otherwise kill a
			// healthy job; only non-transient errors terminate it.
			if gateway.IsTransient(err) {
				c.logger.Debug().Uint64("job_seq", token).Err(err).Msg("genjob: poll failed, will retry")
				continue
			}
			c.fail(token, classify(err))
			return
		}

		switch status.Status {
		case catalog.JobSucceeded:
			result := &Result{Slug: acc.Slug}
			if status.Result != nil {
				result.Slug = status.Result.Slug
				result.ImageURL = status.Result.ImageURL
			}
			c.apply(token, func(s *Snapshot) {
				s.State = StateSucceeded
				s.Progress = 100
				s.Result = result
			})
			return
		case catalog.JobFailed:
			c.fail(token, remoteFailure(status.Error))
			return
		default:
			progress := status.Progress
			c.apply(token, func(s *Snapshot) {
				// Progress is monotonic; a lagging poll never moves it back.
				if progress > s.Progress {
					s.Progress = progress
				}
			})
		}
	}
}

// apply runs mutate under the lock only when token still identifies the
// live job. This is the stale-response guard: responses from a cancelled or
// superseded job arrive here and are dropped unconditionally.
func (c *Controller) apply(token uint64, mutate func(*Snapshot)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if token != c.seq {
		c.logger.Debug().Uint64("job_seq", token).Uint64("live_seq", c.seq).Msg("genjob: stale response discarded")
		return
	}
	before := c.snap
	mutate(&c.snap)
	if c.snap != before {
		c.notifyLocked()
	}
}

func (c *Controller) fail(token uint64, jerr *JobError) {
	c.apply(token, func(s *Snapshot) {
		s.State = StateFailed
		s.Err = jerr
	})
}

// classify maps a gateway failure onto the retry taxonomy.
func classify(err error) *JobError {
	if ge := gateway.AsError(err); ge != nil {
		class := Permanent
		if ge.Transient() {
			class = Transient
		}
		return &JobError{Class: class, Code: ge.Kind.String(), Message: ge.Error()}
	}
	if errors.Is(err, context.Canceled) {
		// The job was superseded; the stale guard drops this anyway.
		return &JobError{Class: Transient, Message: err.Error()}
	}
	return &JobError{Class: Permanent, Message: err.Error()}
}

// remoteFailure maps the service's job failure payload. Content-policy
// rejections are permanent; everything else is worth a resubmit.
func remoteFailure(je *catalog.JobError) *JobError {
	if je == nil {
		return &JobError{Class: Transient, Message: "generation failed"}
	}
	class := Transient
	if je.Code == catalog.ErrCodeContentPolicy {
		class = Permanent
	}
	return &JobError{Class: class, Code: je.Code, Message: je.Message}
}
