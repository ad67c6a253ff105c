// internal/llm/llm.go
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"nutrimood/internal/apperr"
	"nutrimood/internal/models"
)

// Intent tells the prompt builder what kind of answer the turn needs.
type Intent string

const (
	IntentRecommend Intent = "recommend"
	IntentGreeting  Intent = "greeting"
	IntentFollowUp  Intent = "follow_up"
	IntentDetail    Intent = "detail"
)

// Request carries everything a backend needs to write one reply.
type Request struct {
	UserMessage  string
	ContextBlock string
	History      []models.Turn
	CustomerName string
	Preferences  map[string]any
	Intent       Intent
}

// Generator produces a reply as a sequence of text fragments. Stream calls
// emit for every fragment in order and returns once the reply is complete.
// A non-nil return is terminal; backends that answer in one piece emit once.
// Errors wrap apperr.ErrRateLimited or apperr.ErrBackendUnavailable.
type Generator interface {
	Name() string
	Stream(ctx context.Context, req Request, emit func(fragment string) error) error
}

// Accumulator gathers fragments until the terminal event. Its text is only
// available once Finish has been called without an error.
type Accumulator struct {
	b        strings.Builder
	finished bool
	err      error
}

func (a *Accumulator) Add(fragment string) {
	a.b.WriteString(fragment)
}

func (a *Accumulator) Finish(err error) {
	a.finished = true
	a.err = err
}

// Partial returns whatever has arrived so far.
func (a *Accumulator) Partial() string {
	return a.b.String()
}

// Text returns the complete reply, or the terminal error.
func (a *Accumulator) Text() (string, error) {
	if !a.finished {
		return "", errors.New("reply still streaming")
	}
	if a.err != nil {
		return "", a.err
	}
	return a.b.String(), nil
}

// Collect streams a reply from g, forwarding each fragment to sink when it
// is not nil, and returns the full text after the terminal event.
func Collect(ctx context.Context, g Generator, req Request, sink func(string) error) (string, error) {
	var acc Accumulator
	err := g.Stream(ctx, req, func(fragment string) error {
		if fragment == "" {
			return nil
		}
		acc.Add(fragment)
		if sink != nil {
			return sink(fragment)
		}
		return nil
	})
	acc.Finish(err)
	return acc.Text()
}

// unavailable wraps err as a backend failure unless it is already classified
// or is a context cancellation.
func unavailable(backend string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, apperr.ErrRateLimited) || errors.Is(err, apperr.ErrBackendUnavailable) ||
		errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%s: %w: %v", backend, apperr.ErrBackendUnavailable, err)
}

func rateLimited(backend string, err error) error {
	return fmt.Errorf("%s: %w: %v", backend, apperr.ErrRateLimited, err)
}
