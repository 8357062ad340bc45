// Package control implements the local control channel: a Unix socket that
// accepts one line-oriented command per connection.
package control

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"icinga-passive-checks/internal/models"
	"icinga-passive-checks/internal/monitor"
)

const (
	// UnknownCommand is the reply to anything the server does not understand
	UnknownCommand = "unknown command (valid: status, ping, report|<source>|<name>|<exit_status>|<output>)"

	maxCommandSize = 4096
	maxDiscard     = 1 << 20
	readTimeout    = 5 * time.Second
	writeTimeout   = 5 * time.Second

	minAcceptDelay = 5 * time.Millisecond
	maxAcceptDelay = time.Second
)

var errCommandTooLong = fmt.Errorf("command longer than %d bytes", maxCommandSize)

// StatusSource reports the state of the running monitor
type StatusSource interface {
	Status() monitor.Status
}

// Server answers control commands on a Unix socket. Connections are served
// one at a time.
type Server struct {
	path      string
	submitter models.Submitter
	status    StatusSource
	logger    *zap.Logger

	listener  net.Listener
	closeOnce sync.Once
	closeErr  error
}

// NewServer creates a control server bound to path once Listen is called.
// status may be nil when no monitor is running.
func NewServer(path string, submitter models.Submitter, status StatusSource, logger *zap.Logger) *Server {
	return &Server{
		path:      path,
		submitter: submitter,
		status:    status,
		logger:    logger,
	}
}

// Listen removes a stale socket file and binds the socket
func (s *Server) Listen() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove stale socket %s: %w", s.path, err)
	}

	ln, err := net.Listen("unix", s.path)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.path, err)
	}
	s.listener = ln

	s.logger.Info("Control socket listening", zap.String("socket", s.path))
	return nil
}

// Serve accepts connections until ctx is done or the server is closed.
// Listen must have been called first.
func (s *Server) Serve(ctx context.Context) error {
	if s.listener == nil {
		return errors.New("control server is not listening")
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = s.Close()
		case <-done:
		}
	}()

	var delay time.Duration
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			if delay == 0 {
				delay = minAcceptDelay
			} else {
				delay = min(2*delay, maxAcceptDelay)
			}
			s.logger.Warn("Failed to accept control connection", zap.Error(err), zap.Duration("retry_in", delay))

			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return nil
			}
			continue
		}
		delay = 0
		s.handleConn(ctx, conn)
	}
}

// Close stops the listener and removes the socket file
func (s *Server) Close() error {
	s.closeOnce.Do(func() {
		if s.listener == nil {
			return
		}
		// the unix listener unlinks its socket file on close
		s.closeErr = s.listener.Close()
		if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) && s.closeErr == nil {
			s.closeErr = err
		}
	})
	return s.closeErr
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	var reply string
	command, err := readCommand(conn)
	switch {
	case errors.Is(err, errCommandTooLong):
		s.logger.Warn("Rejected control command", zap.Error(err))
		// unread input would reset the connection before the client reads
		// the reply
		_, _ = io.Copy(io.Discard, io.LimitReader(conn, maxDiscard))
		reply = "command rejected: " + err.Error()
	case err != nil:
		s.logger.Warn("Failed to read control command", zap.Error(err))
		return
	default:
		reply = s.Dispatch(ctx, command)
	}

	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if _, err := io.WriteString(conn, reply); err != nil {
		s.logger.Warn("Failed to write control reply", zap.Error(err))
	}
}

// readCommand reads up to the first newline or EOF. A command that does not
// fit in maxCommandSize bytes is rejected rather than cut short.
func readCommand(r io.Reader) (string, error) {
	line, err := bufio.NewReader(io.LimitReader(r, maxCommandSize+1)).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	if len(line) > maxCommandSize {
		return "", errCommandTooLong
	}
	return line, nil
}

// Dispatch executes one control command and returns the reply text
func (s *Server) Dispatch(ctx context.Context, command string) string {
	command = strings.TrimSpace(command)
	s.logger.Debug("Control command received", zap.String("command", command))

	switch {
	case command == "ping":
		return "pong"
	case command == "status":
		return s.statusReply()
	case strings.HasPrefix(command, "report|"):
		return s.report(ctx, command)
	default:
		return UnknownCommand
	}
}

// report handles report|<source>|<name>|<exit_status>|<output>. The output
// is the remainder of the line and may itself contain '|'.
func (s *Server) report(ctx context.Context, command string) string {
	parts := strings.SplitN(command, "|", 5)
	if len(parts) != 5 {
		return UnknownCommand
	}

	err := s.submitter.Submit(ctx, models.Submission{
		Source: parts[1],
		Name:   parts[2],
		Host:   models.ManualCheckHost,
		Type:   models.CheckTypeCommand,
		Result: models.CheckResult{
			ExitStatus:   parts[3],
			PluginOutput: parts[4],
		},
	})
	if err != nil {
		return "report failed: " + err.Error()
	}
	return "report sent"
}

func (s *Server) statusReply() string {
	if s.status == nil {
		return "running"
	}

	st := s.status.Status()
	lastRun := "never"
	if !st.LastRun.IsZero() {
		lastRun = st.LastRun.Format(time.RFC3339)
	}
	return fmt.Sprintf("running, %d targets, interval %s, %d cycles, last run %s",
		st.Targets, st.Interval, st.Cycles, lastRun)
}
