package client

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grigta/simgate/pkg/testutil"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// After advances virtual time and fires immediately.
func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	c.now = c.now.Add(d)
	now := c.now
	c.mu.Unlock()

	ch := make(chan time.Time, 1)
	ch <- now
	return ch
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newTestClient(srv *testutil.MockGatewayServer) *Client {
	return NewClient(&Config{URL: srv.URL(), Token: "tok"}, quietLogger())
}

func TestPoller_ActivationResolvesAfterThreePolls(t *testing.T) {
	srv := testutil.NewMockGatewayServer("tok", 95)
	defer srv.Close()

	c := newTestClient(srv)
	tx, err := c.SubmitActivation(context.Background(), ActivationRequest{
		Operator:    "inwi",
		PhoneNumber: "0612345678",
		Code:        "1234",
	})
	require.NoError(t, err)
	assert.Equal(t, "PENDING", tx.Status)

	srv.ResolveOnPoll(tx.ID, 3, "ACTIVATE", "Activation reussie")

	p := NewPoller(c, 2*time.Second, 60*time.Second, quietLogger(), WithClock(newFakeClock()))
	result, err := p.Await(context.Background(), tx.ID)
	require.NoError(t, err)

	assert.Equal(t, StateTerminalSuccess, result.State)
	assert.Equal(t, "Activation reussie", result.Message)
	assert.Equal(t, 3, srv.Polls(tx.ID))
	require.NotNil(t, result.Profile)
	assert.Equal(t, 95.0, result.Profile.Balance)

	last := srv.RequestLog()[len(srv.RequestLog())-1]
	assert.Equal(t, "/api/v1/profile", last.Path)
}

func TestPoller_FailureIsTerminal(t *testing.T) {
	srv := testutil.NewMockGatewayServer("tok", 100)
	defer srv.Close()

	srv.AddPending("tx-9", "topup")
	srv.ResolveOnPoll("tx-9", 1, "REFUSED", "Request cancelled by administrator")

	p := NewPoller(newTestClient(srv), 2*time.Second, 60*time.Second, quietLogger(), WithClock(newFakeClock()))
	result, err := p.Await(context.Background(), "tx-9")
	require.NoError(t, err)
	assert.Equal(t, StateTerminalFailure, result.State)
	assert.Equal(t, "Request cancelled by administrator", result.Message)
}

func TestPoller_TimesOutWithoutResponse(t *testing.T) {
	srv := testutil.NewMockGatewayServer("tok", 100)
	defer srv.Close()
	srv.AddPending("tx-1", "activation")

	p := NewPoller(newTestClient(srv), 2*time.Second, 60*time.Second, quietLogger(), WithClock(newFakeClock()))
	result, err := p.Await(context.Background(), "tx-1")

	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, StateTimedOut, result.State)
	assert.Equal(t, TimeoutMessage, result.Message)
	assert.Equal(t, 30, srv.Polls("tx-1"))
	assert.Equal(t, "PENDING", srv.Transactions["tx-1"].Status)
	for _, req := range srv.RequestLog() {
		assert.Equal(t, "GET", req.Method)
	}
}

func TestPoller_UnknownTransaction(t *testing.T) {
	srv := testutil.NewMockGatewayServer("tok", 100)
	defer srv.Close()

	p := NewPoller(newTestClient(srv), 2*time.Second, 60*time.Second, quietLogger(), WithClock(newFakeClock()))
	_, err := p.Await(context.Background(), "nope")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestPoller_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := NewPoller(nil, time.Hour, time.Hour, quietLogger())
	result, err := p.Await(ctx, "tx-1")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateWaiting, result.State)
}

func TestClassify(t *testing.T) {
	tests := map[string]State{
		"SUCCESS":  StateTerminalSuccess,
		"ACTIVATE": StateTerminalSuccess,
		"FAILED":   StateTerminalFailure,
		"REFUSED":  StateTerminalFailure,
		"PENDING":  StateTerminalFailure,
		"":         StateTerminalFailure,
	}
	for status, want := range tests {
		assert.Equal(t, want, Classify(status), status)
	}
}

func TestClient_Unauthorized(t *testing.T) {
	srv := testutil.NewMockGatewayServer("tok", 100)
	defer srv.Close()

	c := NewClient(&Config{URL: srv.URL(), Token: "wrong"}, quietLogger())
	_, err := c.GetProfile(context.Background())

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 401, apiErr.StatusCode)
	assert.Equal(t, "Invalid token", apiErr.Message)
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("SIMGATE_URL", "http://gateway:8080")
	t.Setenv("SIMGATE_POLL_INTERVAL", "500ms")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "http://gateway:8080", cfg.URL)
	assert.Equal(t, 500*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, 60*time.Second, cfg.PollTimeout)
}
