// Package playback implements the stream fallback policy applied while a
// channel is playing. The client reports player events; the Controller
// decides whether to retry the current stream, let the player recover, or
// move on to the next alternative.
package playback

import (
	"errors"
	"fmt"

	"github.com/voyagen/primecast/internal/metrics"
	"github.com/voyagen/primecast/internal/models"
)

// Event is a player outcome reported by the client.
type Event string

const (
	EventStarted      Event = "started"
	EventNetworkError Event = "network_error"
	EventMediaError   Event = "media_error"
	EventFatalError   Event = "fatal_error"
	EventTimeout      Event = "timeout"
)

// Action tells the client what to do next.
type Action string

const (
	ActionNone      Action = "none"      // keep playing
	ActionRetry     Action = "retry"     // reload the current stream
	ActionRecover   Action = "recover"   // ask the player to recover in place
	ActionAdvance   Action = "advance"   // switch to Decision.Index
	ActionExhausted Action = "exhausted" // nothing left to try
)

// MaxNetworkRetries is how often a network error is retried in place before
// the controller advances.
const MaxNetworkRetries = 2

// ExhaustedMessage is shown once every alternative stream has failed.
const ExhaustedMessage = "All streams failed. Try another channel."

var (
	ErrUnknownEvent = errors.New("unknown playback event")
	ErrNoStream     = errors.New("stream index out of range")
)

// ParseEvent validates a client-supplied event name.
func ParseEvent(s string) (Event, error) {
	switch e := Event(s); e {
	case EventStarted, EventNetworkError, EventMediaError, EventFatalError, EventTimeout:
		return e, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownEvent, s)
}

// Decision is the outcome of one Handle call.
type Decision struct {
	Action  Action `json:"action"`
	Index   int    `json:"index"` // stream to play after the action
	Retries int    `json:"retries"`
	Message string `json:"message,omitempty"`
}

// State is a read-only view of the controller.
type State struct {
	Index   int    `json:"index"`
	Total   int    `json:"total"`
	Retries int    `json:"retries"`
	Loading bool   `json:"loading"`
	Error   string `json:"error,omitempty"`
}

// Controller tracks the stream being played for one channel. It is not safe
// for concurrent use; callers serialise access.
type Controller struct {
	streams []models.Stream
	index   int
	retries int
	loading bool
	err     string
}

// NewController starts playback on the first of streams.
func NewController(streams []models.Stream) *Controller {
	return &Controller{streams: streams, loading: len(streams) > 0}
}

// Current returns the stream being played and its index.
func (c *Controller) Current() (models.Stream, int, bool) {
	if c.index >= len(c.streams) {
		return models.Stream{}, c.index, false
	}
	return c.streams[c.index], c.index, true
}

// Select switches to an explicitly chosen stream and clears retries and
// errors.
func (c *Controller) Select(index int) error {
	if index < 0 || index >= len(c.streams) {
		return fmt.Errorf("%w: %d", ErrNoStream, index)
	}
	c.index = index
	c.retries = 0
	c.loading = true
	c.err = ""
	return nil
}

// Handle applies the fallback policy to ev.
func (c *Controller) Handle(ev Event) Decision {
	var d Decision
	switch ev {
	case EventStarted:
		c.retries = 0
		c.loading = false
		c.err = ""
		d = c.decision(ActionNone)
	case EventNetworkError:
		if c.retries < MaxNetworkRetries {
			c.retries++
			d = c.decision(ActionRetry)
		} else {
			d = c.advance()
		}
	case EventMediaError:
		d = c.decision(ActionRecover)
	default:
		d = c.advance()
	}
	metrics.RecordPlaybackEvent(string(ev), string(d.Action))
	return d
}

// State returns a snapshot for rendering.
func (c *Controller) State() State {
	return State{
		Index:   c.index,
		Total:   len(c.streams),
		Retries: c.retries,
		Loading: c.loading,
		Error:   c.err,
	}
}

func (c *Controller) advance() Decision {
	next := c.index + 1
	if next >= len(c.streams) {
		c.loading = false
		c.err = ExhaustedMessage
		d := c.decision(ActionExhausted)
		d.Message = ExhaustedMessage
		return d
	}
	c.index = next
	c.retries = 0
	c.loading = true
	c.err = ""
	return c.decision(ActionAdvance)
}

func (c *Controller) decision(a Action) Decision {
	return Decision{Action: a, Index: c.index, Retries: c.retries}
}
