package client

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
)

type State string

const (
	StateWaiting         State = "WAITING"
	StateTerminalSuccess State = "TERMINAL_SUCCESS"
	StateTerminalFailure State = "TERMINAL_FAILURE"
	StateTimedOut        State = "TIMED_OUT"
)

const TimeoutMessage = "timed out, check later"

// ErrTimeout is returned by Await when no terminal response arrived in time.
// The transaction keeps its server-side state.
var ErrTimeout = errors.New(TimeoutMessage)

type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

type API interface {
	GetTransaction(ctx context.Context, id string) (*Transaction, error)
	GetProfile(ctx context.Context) (*Profile, error)
}

type Result struct {
	State       State
	Message     string
	Transaction *Transaction
	Profile     *Profile
}

type Poller struct {
	api      API
	clock    Clock
	interval time.Duration
	timeout  time.Duration
	logger   *logrus.Logger
}

type PollerOption func(*Poller)

func WithClock(c Clock) PollerOption {
	return func(p *Poller) { p.clock = c }
}

func NewPoller(api API, interval, timeout time.Duration, logger *logrus.Logger, opts ...PollerOption) *Poller {
	p := &Poller{
		api:      api,
		clock:    realClock{},
		interval: interval,
		timeout:  timeout,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Classify maps a resolved status to the terminal client state.
func Classify(status string) State {
	switch status {
	case "SUCCESS", "ACTIVATE":
		return StateTerminalSuccess
	default:
		return StateTerminalFailure
	}
}

// Await polls the transaction until the executor response is recorded or the timeout elapses.
// On a terminal state the caller profile is refreshed so the new balance is visible.
func (p *Poller) Await(ctx context.Context, id string) (*Result, error) {
	deadline := p.clock.Now().Add(p.timeout)
	log := p.logger.WithField("transaction_id", id)

	for {
		select {
		case <-ctx.Done():
			return &Result{State: StateWaiting}, ctx.Err()
		case <-p.clock.After(p.interval):
		}

		tx, err := p.api.GetTransaction(ctx, id)
		switch {
		case err == nil && tx.RawResponse != "":
			return p.terminal(ctx, tx), nil
		case err != nil && IsNotFound(err):
			return &Result{State: StateWaiting}, err
		case err != nil:
			log.WithError(err).Warn("Poll failed, retrying")
		}

		if !p.clock.Now().Before(deadline) {
			log.Info("Stopped polling without a response")
			return &Result{State: StateTimedOut, Message: TimeoutMessage, Transaction: tx}, ErrTimeout
		}
	}
}

func (p *Poller) terminal(ctx context.Context, tx *Transaction) *Result {
	result := &Result{
		State:       Classify(tx.Status),
		Message:     tx.CustomerMessage,
		Transaction: tx,
	}
	if result.Message == "" {
		result.Message = tx.RawResponse
	}

	profile, err := p.api.GetProfile(ctx)
	if err != nil {
		p.logger.WithError(err).Warn("Failed to refresh profile")
		return result
	}
	result.Profile = profile
	return result
}
