package control

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRemoteCommand(t *testing.T) {
	got := remoteCommand("birdc", "/run/bird/bird.ctl", `show protocols all "bgp1"`)
	want := `birdc -v -s '/run/bird/bird.ctl' 'show protocols all "bgp1"'`
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}

	got = remoteCommand("birdc6", "", "show status")
	if got != "birdc6 -v 'show status'" {
		t.Errorf("expected socket flag to be omitted, got %q", got)
	}
}

func TestShellQuote(t *testing.T) {
	if got := ShellQuote("it's"); got != `'it'\''s'` {
		t.Errorf("expected embedded quote to be escaped, got %q", got)
	}
}

func TestCompleteReply(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"appends final line", "0001 BIRD 2.0.8 ready.\n1007-10.0.0.0/24 unicast [bgp1 12:00]\n", "0001 BIRD 2.0.8 ready.\n1007-10.0.0.0/24 unicast [bgp1 12:00]\n0000 \n"},
		{"keeps existing final line", "0001 BIRD 2.0.8 ready.\n0013 Daemon is up and running\n", "0001 BIRD 2.0.8 ready.\n0013 Daemon is up and running\n"},
		{"missing trailing newline", "1002-bgp1 BGP --- up 10:00 Established", "1002-bgp1 BGP --- up 10:00 Established\n0000 \n"},
		{"empty output", "", "0000 \n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := completeReply(tt.in); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestNewSSH_Defaults(t *testing.T) {
	s := NewSSH(SSHOptions{Host: "rs1"}, nil)
	if s.opts.Port != 22 {
		t.Errorf("expected default port 22, got %d", s.opts.Port)
	}
	if s.opts.BirdCmd != "birdc" {
		t.Errorf("expected default bird_cmd 'birdc', got %q", s.opts.BirdCmd)
	}
	if err := s.Close(); err != nil {
		t.Errorf("expected Close on an unused transport to succeed, got %v", err)
	}
}

func TestSSHQuery_Timeout(t *testing.T) {
	s := NewSSH(SSHOptions{Host: "rs1", Timeout: 20 * time.Millisecond}, nil)
	s.exec = func(ctx context.Context, command, stdin string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}

	start := time.Now()
	_, err := s.Query(context.Background(), "show status")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("expected query to give up after its timeout, took %v", elapsed)
	}
}

func TestSSHQuery_NoTimeoutKeepsCallerContext(t *testing.T) {
	s := NewSSH(SSHOptions{Host: "rs1"}, nil)
	s.exec = func(ctx context.Context, command, stdin string) (string, error) {
		if _, ok := ctx.Deadline(); ok {
			t.Error("expected no deadline without a configured timeout")
		}
		return "0001 BIRD 2.0.8 ready.\n0013 Daemon is up and running\n", nil
	}

	reply, err := s.Query(context.Background(), "show status")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply != "0001 BIRD 2.0.8 ready.\n0013 Daemon is up and running\n" {
		t.Errorf("unexpected reply %q", reply)
	}
}
