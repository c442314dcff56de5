package analysis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/Tutortoise/ovaquick/models"
	"github.com/Tutortoise/ovaquick/preview"
	"github.com/rs/zerolog"
)

type State int

const (
	Idle State = iota
	Loading
	Success
	Failure
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Loading:
		return "loading"
	case Success:
		return "success"
	case Failure:
		return "failure"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(text []byte) error {
	for _, st := range []State{Idle, Loading, Success, Failure} {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown state %q", text)
}

// StaleResultPolicy decides what a failed submission does to the previous result.
type StaleResultPolicy string

const (
	// KeepStale leaves the last successful result on screen until the next success.
	KeepStale  StaleResultPolicy = "keep"
	ClearStale StaleResultPolicy = "clear"
)

func ParseStaleResultPolicy(s string) (StaleResultPolicy, error) {
	switch p := StaleResultPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "", KeepStale:
		return KeepStale, nil
	case ClearStale:
		return ClearStale, nil
	default:
		return "", fmt.Errorf("unsupported stale result policy %q", s)
	}
}

const DefaultFailureMessage = "Error while predicting"

var ErrBusy = errors.New("analysis: a prediction is already in progress")

type Predictor interface {
	Predict(ctx context.Context, img models.Image) (*models.PredictionResult, error)
}

type Option func(*Controller)

func WithStaleResultPolicy(p StaleResultPolicy) Option {
	return func(c *Controller) {
		c.policy = p
	}
}

func WithPreviewMaxDim(n int) Option {
	return func(c *Controller) {
		c.previewMaxDim = n
	}
}

// WithFailureMessage sets the notification shown after any failed submission.
func WithFailureMessage(msg string) Option {
	return func(c *Controller) {
		if msg != "" {
			c.failureMessage = msg
		}
	}
}

// Controller holds the upload/result state of one analysis page. Only one submission can be
// outstanding; results of requests that are no longer the latest are dropped.
type Controller struct {
	predictor      Predictor
	policy         StaleResultPolicy
	previewMaxDim  int
	failureMessage string

	mu      sync.Mutex
	state   State
	staged  *models.Image
	preview string
	result  *models.PredictionResult
	errMsg  string
	seq     uint64
	// latest is the id of the request whose answer will be applied, 0 when none is.
	latest uint64
}

// Outcome describes what Submit did.
type Outcome struct {
	RequestID  uint64
	State      State
	Submitted  bool
	Superseded bool
}

func NewController(p Predictor, opts ...Option) *Controller {
	c := &Controller{
		predictor:      p,
		policy:         KeepStale,
		previewMaxDim:  preview.DefaultMaxDim,
		failureMessage: DefaultFailureMessage,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Stage replaces the selected file and its preview. It is allowed in every state; an empty
// image clears the selection.
func (c *Controller) Stage(img models.Image) {
	var staged *models.Image
	var dataURL string
	if !img.Empty() {
		cp := img
		cp.Data = append([]byte(nil), img.Data...)
		staged = &cp
		dataURL = preview.DataURL(cp, c.previewMaxDim)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.staged = staged
	c.preview = dataURL
}

// Submit sends the staged file to the predictor and blocks until it answers. Without a staged
// file it does nothing. While another submission is outstanding it returns ErrBusy. A failed
// prediction moves the controller to Failure and returns the predictor's error.
func (c *Controller) Submit(ctx context.Context) (Outcome, error) {
	c.mu.Lock()
	if c.staged == nil {
		st := c.state
		c.mu.Unlock()
		return Outcome{State: st}, nil
	}
	if c.state == Loading {
		c.mu.Unlock()
		return Outcome{State: Loading}, ErrBusy
	}
	c.seq++
	id := c.seq
	c.latest = id
	c.state = Loading
	img := *c.staged
	c.mu.Unlock()

	logger := zerolog.Ctx(ctx).With().Uint64("submission", id).Str("file", img.Filename).Logger()
	logger.Debug().Int("bytes", len(img.Data)).Msg("submitting image")

	res, err := c.predictor.Predict(ctx, img)

	c.mu.Lock()
	defer c.mu.Unlock()

	if id != c.latest {
		logger.Debug().Msg("discarding superseded prediction")
		return Outcome{RequestID: id, State: c.state, Submitted: true, Superseded: true}, nil
	}
	c.latest = 0

	if err != nil {
		c.state = Failure
		c.errMsg = c.failureMessage
		if c.policy == ClearStale {
			c.result = nil
		}
		logger.Warn().Err(err).Msg("prediction failed")
		return Outcome{RequestID: id, State: c.state, Submitted: true}, err
	}

	c.state = Success
	c.result = res
	c.errMsg = ""
	return Outcome{RequestID: id, State: c.state, Submitted: true}, nil
}

// Reset returns to Idle with nothing staged. An outstanding submission keeps running but its
// answer is ignored.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = Idle
	c.staged = nil
	c.preview = ""
	c.result = nil
	c.errMsg = ""
	c.latest = 0
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) Result() *models.PredictionResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.result
}
