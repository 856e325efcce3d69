package control

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"
)

// Socket talks to the daemon over its local unix control socket. Each query
// uses a fresh connection.
type Socket struct {
	path    string
	timeout time.Duration
}

func NewSocket(path string, timeout time.Duration) *Socket {
	return &Socket{path: path, timeout: timeout}
}

// Query writes cmd and reads until the final reply line. The greeting the
// daemon sends on connect is part of the returned text.
func (s *Socket) Query(ctx context.Context, cmd string) (string, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", s.path)
	if err != nil {
		return "", fmt.Errorf("dialing control socket %s: %w", s.path, err)
	}
	defer conn.Close()

	// Closing the connection unblocks a pending read once ctx is done.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	if _, err := io.WriteString(conn, cmd+"\n"); err != nil {
		return "", fmt.Errorf("writing command: %w", wrapCtx(ctx, err))
	}

	reply, err := readReply(bufio.NewReader(conn))
	if err != nil {
		return reply, fmt.Errorf("reading reply to %q: %w", cmd, wrapCtx(ctx, err))
	}
	return reply, nil
}

func (s *Socket) Close() error { return nil }

// readReply collects lines up to and including the final one.
func readReply(r *bufio.Reader) (string, error) {
	var b strings.Builder
	for {
		line, err := r.ReadString('\n')
		if len(line) > 0 {
			b.WriteString(line)
			if !strings.HasSuffix(line, "\n") {
				b.WriteByte('\n')
			}
			if IsFinalLine(strings.TrimRight(line, "\r\n")) {
				return b.String(), nil
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return b.String(), io.ErrUnexpectedEOF
			}
			return b.String(), err
		}
	}
}

// wrapCtx prefers the context's error over the I/O error it caused.
func wrapCtx(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}
