package control

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"icinga-passive-checks/internal/models"
	"icinga-passive-checks/internal/monitor"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type recordingSubmitter struct {
	mu   sync.Mutex
	subs []models.Submission
	err  error
}

func (r *recordingSubmitter) Submit(_ context.Context, sub models.Submission) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs = append(r.subs, sub)
	return r.err
}

func (r *recordingSubmitter) submissions() []models.Submission {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.Submission(nil), r.subs...)
}

type fixedStatus monitor.Status

func (f fixedStatus) Status() monitor.Status { return monitor.Status(f) }

// socketPath stays short enough for the sun_path limit
func socketPath(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "ipc")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	return filepath.Join(dir, "c.sock")
}

func startServer(t *testing.T, srv *Server) {
	t.Helper()
	require.NoError(t, srv.Listen())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Error("Serve did not return after cancel")
		}
	})
}

func TestDispatch(t *testing.T) {
	lastRun := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name     string
		status   StatusSource
		command  string
		expected string
	}{
		{name: "ping", command: "ping", expected: "pong"},
		{name: "ping with newline", command: "ping\n", expected: "pong"},
		{name: "status without monitor", command: "status", expected: "running"},
		{
			name:     "status before first cycle",
			status:   fixedStatus{Targets: 2, Interval: time.Minute},
			command:  "status",
			expected: "running, 2 targets, interval 1m0s, 0 cycles, last run never",
		},
		{
			name:     "status after cycles",
			status:   fixedStatus{Targets: 3, Interval: 30 * time.Second, Cycles: 4, LastRun: lastRun},
			command:  "status",
			expected: "running, 3 targets, interval 30s, 4 cycles, last run 2024-05-01T12:00:00Z",
		},
		{name: "empty", command: "", expected: UnknownCommand},
		{name: "unknown", command: "restart", expected: UnknownCommand},
		{name: "report missing fields", command: "report|web01|backup|0", expected: UnknownCommand},
		{name: "report keyword only", command: "report", expected: UnknownCommand},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := NewServer("unused", &recordingSubmitter{}, tt.status, zap.NewNop())
			assert.Equal(t, tt.expected, srv.Dispatch(context.Background(), tt.command))
		})
	}
}

func TestDispatchReport(t *testing.T) {
	sub := &recordingSubmitter{}
	srv := NewServer("unused", sub, nil, zap.NewNop())

	reply := srv.Dispatch(context.Background(), "report|web01|backup|1|WARNING - disk 91% | 2 volumes\n")
	assert.Equal(t, "report sent", reply)

	subs := sub.submissions()
	require.Len(t, subs, 1)
	assert.Equal(t, models.Submission{
		Source: "web01",
		Name:   "backup",
		Host:   models.ManualCheckHost,
		Type:   models.CheckTypeCommand,
		Result: models.CheckResult{
			ExitStatus:   "1",
			PluginOutput: "WARNING - disk 91% | 2 volumes",
		},
	}, subs[0])
}

func TestDispatchReportFailure(t *testing.T) {
	sub := &recordingSubmitter{err: errors.New("icinga returned status 500")}
	srv := NewServer("unused", sub, nil, zap.NewNop())

	reply := srv.Dispatch(context.Background(), "report|web01|backup|2|CRITICAL")
	assert.Equal(t, "report failed: icinga returned status 500", reply)
}

func TestServerRoundTrip(t *testing.T) {
	path := socketPath(t)
	sub := &recordingSubmitter{}
	startServer(t, NewServer(path, sub, fixedStatus{Targets: 1, Interval: time.Minute}, zap.NewNop()))

	ctx := context.Background()

	reply, err := Send(ctx, path, "ping")
	require.NoError(t, err)
	assert.Equal(t, "pong", reply)

	reply, err = Send(ctx, path, "report|web01|cron|0|OK - done")
	require.NoError(t, err)
	assert.Equal(t, "report sent", reply)
	require.Len(t, sub.submissions(), 1)
	assert.Equal(t, "cron", sub.submissions()[0].Name)

	reply, err = Send(ctx, path, "bogus")
	require.NoError(t, err)
	assert.Equal(t, UnknownCommand, reply)
}

func TestServerRemovesStaleSocket(t *testing.T) {
	path := socketPath(t)
	require.NoError(t, os.WriteFile(path, []byte("stale"), 0o600))

	startServer(t, NewServer(path, &recordingSubmitter{}, nil, zap.NewNop()))

	reply, err := Send(context.Background(), path, "ping")
	require.NoError(t, err)
	assert.Equal(t, "pong", reply)
}

func TestServerCloseRemovesSocket(t *testing.T) {
	path := socketPath(t)
	srv := NewServer(path, &recordingSubmitter{}, nil, zap.NewNop())
	require.NoError(t, srv.Listen())

	done := make(chan error, 1)
	go func() { done <- srv.Serve(context.Background()) }()

	require.NoError(t, srv.Close())
	require.NoError(t, <-done)

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
	assert.NoError(t, srv.Close())
}

func TestServeWithoutListen(t *testing.T) {
	srv := NewServer(socketPath(t), &recordingSubmitter{}, nil, zap.NewNop())
	assert.Error(t, srv.Serve(context.Background()))
}

func TestSendNoServer(t *testing.T) {
	_, err := Send(context.Background(), socketPath(t), "ping")
	assert.ErrorContains(t, err, "failed to connect to control socket")
}

func TestReadCommand(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
		err      error
	}{
		{name: "newline terminated", input: "ping\nignored", expected: "ping\n"},
		{name: "eof terminated", input: "status", expected: "status"},
		{name: "exactly at limit", input: strings.Repeat("x", maxCommandSize), expected: strings.Repeat("x", maxCommandSize)},
		{name: "over limit", input: strings.Repeat("x", maxCommandSize+1), err: errCommandTooLong},
		{name: "newline past limit", input: strings.Repeat("x", maxCommandSize) + "\n", err: errCommandTooLong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			line, err := readCommand(strings.NewReader(tt.input))
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, line)
		})
	}
}

func TestServerRejectsOversizedReport(t *testing.T) {
	path := socketPath(t)
	sub := &recordingSubmitter{}
	startServer(t, NewServer(path, sub, nil, zap.NewNop()))

	command := "report|web01|backup|0|" + strings.Repeat("a", 2*maxCommandSize)
	reply, err := Send(context.Background(), path, command)
	require.NoError(t, err)
	assert.Equal(t, "command rejected: command longer than 4096 bytes", reply)
	assert.Empty(t, sub.submissions())

	// the server keeps serving afterwards
	reply, err = Send(context.Background(), path, "ping")
	require.NoError(t, err)
	assert.Equal(t, "pong", reply)
}

// failingListener fails Accept a fixed number of times, then reports closed
type failingListener struct {
	mu       sync.Mutex
	failures int
	calls    []time.Time
}

func (l *failingListener) Accept() (net.Conn, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, time.Now())
	if len(l.calls) <= l.failures {
		return nil, errors.New("accept: too many open files")
	}
	return nil, net.ErrClosed
}

func (l *failingListener) Close() error   { return nil }
func (l *failingListener) Addr() net.Addr { return &net.UnixAddr{Name: "test", Net: "unix"} }

func TestServeBacksOffOnAcceptErrors(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	ln := &failingListener{failures: 4}
	srv := NewServer(filepath.Join(t.TempDir(), "unused.sock"), &recordingSubmitter{}, nil, zap.New(core))
	srv.listener = ln

	require.NoError(t, srv.Serve(context.Background()))

	require.Len(t, ln.calls, 5)
	// 5ms + 10ms + 20ms + 40ms between the first and last attempt
	assert.GreaterOrEqual(t, ln.calls[4].Sub(ln.calls[0]), 75*time.Millisecond)

	entries := logs.FilterMessage("Failed to accept control connection").All()
	require.Len(t, entries, 4)
	assert.Equal(t, minAcceptDelay, entries[0].ContextMap()["retry_in"])
	assert.Equal(t, 8*minAcceptDelay, entries[3].ContextMap()["retry_in"])
}

func TestServeBackoffStopsOnCancel(t *testing.T) {
	ln := &failingListener{failures: 1000}
	srv := NewServer(filepath.Join(t.TempDir(), "unused.sock"), &recordingSubmitter{}, nil, zap.NewNop())
	srv.listener = ln

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
