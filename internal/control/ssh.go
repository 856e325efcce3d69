package control

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

type SSHOptions struct {
	Host                  string
	Port                  int
	User                  string
	Password              string
	KeyFile               string
	KnownHostsFile        string
	InsecureIgnoreHostKey bool
	DialTimeout           time.Duration

	// Timeout bounds one Query; zero means none.
	Timeout time.Duration

	// BirdCmd is the birdc binary on the remote host; SocketPath is passed
	// to it with -s.
	BirdCmd    string
	SocketPath string
}

// SSH runs birdc on a remote host, one session per command. The SSH
// connection is dialed on first use and redialed after it breaks.
type SSH struct {
	opts   SSHOptions
	logger *zap.Logger
	exec   func(ctx context.Context, command, stdin string) (string, error)

	mu     sync.Mutex
	client *ssh.Client
}

func NewSSH(opts SSHOptions, logger *zap.Logger) *SSH {
	if opts.Port == 0 {
		opts.Port = 22
	}
	if opts.BirdCmd == "" {
		opts.BirdCmd = "birdc"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &SSH{opts: opts, logger: logger}
	s.exec = s.Exec
	return s
}

// Query runs birdc in verbose mode so reply codes are kept. birdc exits
// after the reply without printing a final line, so one is appended when
// missing.
func (s *SSH) Query(ctx context.Context, cmd string) (string, error) {
	if s.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}

	out, err := s.exec(ctx, remoteCommand(s.opts.BirdCmd, s.opts.SocketPath, cmd), "")
	if err != nil {
		return out, err
	}
	return completeReply(out), nil
}

// Exec runs command on the remote host with stdin as its input and
// returns its standard output.
func (s *SSH) Exec(ctx context.Context, command, stdin string) (string, error) {
	client, err := s.connect()
	if err != nil {
		return "", err
	}

	session, err := client.NewSession()
	if err != nil {
		s.reset(client)
		return "", fmt.Errorf("SSH session: %w", err)
	}
	defer session.Close()

	if stdin != "" {
		session.Stdin = strings.NewReader(stdin)
	}

	type result struct {
		out []byte
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := session.Output(command)
		done <- result{out, err}
	}()

	select {
	case <-ctx.Done():
		session.Close()
		return "", ctx.Err()
	case r := <-done:
		if r.err != nil {
			return string(r.out), fmt.Errorf("SSH exec '%s': %w", command, r.err)
		}
		return string(r.out), nil
	}
}

func (s *SSH) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == nil {
		return nil
	}
	err := s.client.Close()
	s.client = nil
	return err
}

func (s *SSH) connect() (*ssh.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil {
		return s.client, nil
	}

	config, err := s.clientConfig()
	if err != nil {
		return nil, err
	}

	address := net.JoinHostPort(s.opts.Host, strconv.Itoa(s.opts.Port))
	conn, err := net.DialTimeout("tcp", address, s.opts.DialTimeout)
	if err != nil {
		return nil, fmt.Errorf("SSH dial %s: %w", address, err)
	}
	clientConn, chans, reqs, err := ssh.NewClientConn(conn, address, config)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("SSH handshake %s: %w", address, err)
	}

	s.client = ssh.NewClient(clientConn, chans, reqs)
	s.logger.Info("SSH connection established", zap.String("address", address), zap.String("user", s.opts.User))
	return s.client, nil
}

// reset drops a client that failed to open a session.
func (s *SSH) reset(client *ssh.Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == client {
		s.client.Close()
		s.client = nil
		s.logger.Warn("SSH connection dropped, will redial")
	}
}

func (s *SSH) clientConfig() (*ssh.ClientConfig, error) {
	var auth []ssh.AuthMethod
	if s.opts.KeyFile != "" {
		key, err := os.ReadFile(s.opts.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("reading SSH key: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, fmt.Errorf("parsing SSH key: %w", err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if s.opts.Password != "" {
		auth = append(auth, ssh.Password(s.opts.Password))
	}

	var hostKeyCallback ssh.HostKeyCallback
	if s.opts.InsecureIgnoreHostKey {
		hostKeyCallback = ssh.InsecureIgnoreHostKey()
	} else {
		path := s.opts.KnownHostsFile
		if path == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return nil, fmt.Errorf("known hosts path not set and home dir unavailable")
			}
			path = filepath.Join(home, ".ssh", "known_hosts")
		}
		callback, err := knownhosts.New(path)
		if err != nil {
			return nil, fmt.Errorf("loading known hosts: %w", err)
		}
		hostKeyCallback = callback
	}

	return &ssh.ClientConfig{
		User:            s.opts.User,
		Auth:            auth,
		HostKeyCallback: hostKeyCallback,
		Timeout:         s.opts.DialTimeout,
	}, nil
}

// remoteCommand builds: birdc -v -s /run/bird.ctl 'show protocols all'
func remoteCommand(birdCmd, socket, cmd string) string {
	var b strings.Builder
	b.WriteString(birdCmd)
	b.WriteString(" -v")
	if socket != "" {
		b.WriteString(" -s ")
		b.WriteString(ShellQuote(socket))
	}
	b.WriteByte(' ')
	b.WriteString(ShellQuote(cmd))
	return b.String()
}

// ShellQuote wraps s in single quotes for a POSIX shell.
func ShellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func completeReply(out string) string {
	out = strings.TrimRight(out, "\r\n")
	if out != "" {
		lines := strings.Split(out, "\n")
		if IsFinalLine(strings.TrimRight(lines[len(lines)-1], "\r")) {
			return out + "\n"
		}
		out += "\n"
	}
	return out + "0000 \n"
}
