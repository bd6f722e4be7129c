package duckchat

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/papercomputeco/freedom/pkg/llm"
	"github.com/papercomputeco/freedom/pkg/sse"
	"github.com/papercomputeco/freedom/pkg/utils"
)

// StreamState is the lifecycle state of a FragmentStream.
type StreamState int

const (
	StateReading StreamState = iota
	StateDone
	StateErrored
)

func (s StreamState) String() string {
	switch s {
	case StateReading:
		return "reading"
	case StateDone:
		return "done"
	case StateErrored:
		return "errored"
	default:
		return fmt.Sprintf("StreamState(%d)", int(s))
	}
}

// upstreamEvent is the JSON payload of a content-bearing upstream event.
// Other fields (role, id, created, model, action) are ignored.
type upstreamEvent struct {
	Message string `json:"message"`
}

// FragmentStream turns an upstream SSE body into an ordered sequence of
// content fragments.
//
// Events whose data is not valid JSON, or that carry no non-empty string
// "message" field, are skipped silently. The sentinel event moves the stream
// to StateDone, as does a body that ends without one. A read failure moves it
// to StateErrored. Both terminal states are sticky.
//
// A FragmentStream is not safe for concurrent use.
type FragmentStream struct {
	events *sse.Reader
	state  StreamState
	err    error

	fragments int
	size      int

	// onEvent is called for every raw event read, before it is decoded.
	onEvent func()

	// cause explains a read failure triggered by the client side, such as
	// the idle read timeout.
	cause func() error

	logger *slog.Logger
}

// NewFragmentStream reads upstream events from src.
func NewFragmentStream(src io.Reader, logger *slog.Logger) *FragmentStream {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &FragmentStream{
		events: sse.NewReader(src),
		state:  StateReading,
		logger: logger,
	}
}

// Next returns the next non-empty content fragment. It returns io.EOF once
// the stream is done, or the stored error once it has errored.
func (s *FragmentStream) Next() (string, error) {
	for {
		fragment, ok, err := s.NextEvent()
		if err != nil {
			return "", err
		}
		if ok {
			return fragment, nil
		}
	}
}

// NextEvent consumes exactly one upstream event. ok is false when the event
// carried no content. Relays use those events as a liveness signal toward
// their own caller. It returns io.EOF once the stream is done, or the stored
// error once it has errored.
func (s *FragmentStream) NextEvent() (fragment string, ok bool, err error) {
	switch s.state {
	case StateDone:
		return "", false, io.EOF
	case StateErrored:
		return "", false, s.err
	}

	ev, err := s.events.Next()
	if err != nil {
		s.fail(err)
		return "", false, s.err
	}
	if ev == nil {
		s.logger.Debug("upstream stream ended without sentinel", "fragments", s.fragments)
		s.state = StateDone
		return "", false, io.EOF
	}

	if s.onEvent != nil {
		s.onEvent()
	}

	if ev.Data == llm.DoneSentinel {
		s.state = StateDone
		return "", false, io.EOF
	}

	fragment, ok = decodeFragment(ev.Data)
	if !ok {
		s.logger.Debug("skipping non-content upstream event", "data", utils.Truncate(ev.Data, 80))
		return "", false, nil
	}

	s.fragments++
	s.size += len(fragment)
	return fragment, true, nil
}

// Collect drains the stream and returns the fragments concatenated in
// arrival order. On error no partial content is returned.
func (s *FragmentStream) Collect() (string, error) {
	var b strings.Builder
	for {
		fragment, err := s.Next()
		if errors.Is(err, io.EOF) {
			return b.String(), nil
		}
		if err != nil {
			return "", err
		}
		b.WriteString(fragment)
	}
}

// State reports the current lifecycle state.
func (s *FragmentStream) State() StreamState {
	return s.state
}

// Err returns the error that moved the stream to StateErrored, if any.
func (s *FragmentStream) Err() error {
	return s.err
}

// Fragments is the number of fragments yielded so far.
func (s *FragmentStream) Fragments() int {
	return s.fragments
}

// Size is the total byte length of the fragments yielded so far.
func (s *FragmentStream) Size() int {
	return s.size
}

func (s *FragmentStream) fail(err error) {
	if s.cause != nil {
		if cause := s.cause(); cause != nil && errors.Is(cause, ErrReadTimeout) {
			err = cause
		}
	}
	s.state = StateErrored
	s.err = fmt.Errorf("reading upstream stream: %w", err)
}

func decodeFragment(data string) (string, bool) {
	var ev upstreamEvent
	if err := json.Unmarshal([]byte(data), &ev); err != nil {
		return "", false
	}
	if ev.Message == "" {
		return "", false
	}
	return ev.Message, true
}
