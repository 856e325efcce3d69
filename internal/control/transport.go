// Package control moves commands to the BIRD control interface and complete
// replies back. It knows where a reply ends but nothing about what it means.
package control

import (
	"context"
	"strings"

	"github.com/route-beacon/bird-collector/internal/birdc"
)

// Transport sends one command and returns the full reply text, up to and
// including the line that terminates it.
type Transport interface {
	Query(ctx context.Context, cmd string) (string, error)
	Close() error
}

// IsFinalLine reports whether raw closes a reply: a terminal reply code
// followed by a space rather than the "-" continuation marker.
func IsFinalLine(raw string) bool {
	line := birdc.ParseLine(raw)
	if !line.HasCode || !birdc.IsTerminal(line.Code) {
		return false
	}
	i := strings.IndexAny(raw, " -")
	return i > 0 && raw[i] == ' '
}
