package control

import (
	"context"
	"fmt"
	"io"
	"net"
	"time"
)

const defaultClientTimeout = 60 * time.Second

// Send delivers one command to the control socket at path and returns the
// server's reply
func Send(ctx context.Context, path, command string) (string, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultClientTimeout)
		defer cancel()
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", path)
	if err != nil {
		return "", fmt.Errorf("failed to connect to control socket %s: %w", path, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	if _, err := io.WriteString(conn, command+"\n"); err != nil {
		return "", fmt.Errorf("failed to send command: %w", err)
	}
	if uc, ok := conn.(*net.UnixConn); ok {
		_ = uc.CloseWrite()
	}

	reply, err := io.ReadAll(conn)
	if err != nil {
		return "", fmt.Errorf("failed to read reply: %w", err)
	}
	return string(reply), nil
}
