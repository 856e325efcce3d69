// Package client builds control commands, sends them through a transport
// and decodes the replies.
package client

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/route-beacon/bird-collector/internal/birdc"
	"github.com/route-beacon/bird-collector/internal/configfile"
	"github.com/route-beacon/bird-collector/internal/control"
	"github.com/route-beacon/bird-collector/internal/metrics"
	"go.uber.org/zap"
)

var (
	ErrNoConfigFile  = errors.New("client: config file is not known")
	ErrPeerNotFound  = errors.New("client: peer not found")
	ErrInvalidName   = errors.New("client: name is empty after sanitation")
	ErrInvalidPrefix = errors.New("client: invalid prefix")
)

type Options struct {
	// ConfigFile seeds the remembered config path.
	ConfigFile string
	// Store reads and writes the config file. Nil disables GetConfig and
	// PutConfig.
	Store configfile.Store
	// Now is the reference time for relative timestamps. Defaults to time.Now.
	Now func() time.Time
}

type Client struct {
	transport control.Transport
	store     configfile.Store
	now       func() time.Time
	logger    *zap.Logger

	mu         sync.Mutex
	configFile string
}

func New(transport control.Transport, opts Options, logger *zap.Logger) *Client {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Client{
		transport:  transport,
		store:      opts.Store,
		now:        now,
		logger:     logger,
		configFile: opts.ConfigFile,
	}
}

// Raw sends cmd as is and returns the undecoded reply.
func (c *Client) Raw(ctx context.Context, cmd string) (string, error) {
	return c.query(ctx, cmd)
}

func (c *Client) query(ctx context.Context, cmd string) (string, error) {
	label := commandLabel(cmd)
	c.logger.Debug("query", zap.String("command", cmd))

	start := time.Now()
	reply, err := c.transport.Query(ctx, cmd)
	metrics.QueryDuration.WithLabelValues(label).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.QueriesTotal.WithLabelValues(label, "error").Inc()
		return "", fmt.Errorf("query %q: %w", cmd, err)
	}
	metrics.QueriesTotal.WithLabelValues(label, "ok").Inc()

	if c.logger.Core().Enabled(zap.DebugLevel) {
		lines := birdc.NewLines(reply)
		for {
			raw, ok := lines.Next()
			if !ok {
				break
			}
			l := birdc.ParseLine(raw)
			c.logger.Debug("reply line",
				zap.String("command", label),
				zap.Int("code", l.Code),
				zap.Bool("coded", l.HasCode),
				zap.String("text", l.Text),
			)
		}
	}
	return reply, nil
}

// decodeFailed counts a decoder error by kind and passes it through.
func decodeFailed(decoder string, err error) error {
	kind := "other"
	switch {
	case errors.Is(err, birdc.ErrStructural):
		kind = "structural"
	case errors.Is(err, birdc.ErrTimestamp):
		kind = "timestamp"
	case errors.Is(err, birdc.ErrReply):
		kind = "reply"
	}
	metrics.DecodeErrorsTotal.WithLabelValues(decoder, kind).Inc()
	return err
}

// Status runs "show status".
func (c *Client) Status(ctx context.Context) (*birdc.Status, error) {
	reply, err := c.query(ctx, "show status")
	if err != nil {
		return nil, err
	}
	st, err := birdc.DecodeStatus(reply, c.now())
	if err != nil {
		return nil, decodeFailed("status", err)
	}
	return st, nil
}

// ConfigFile returns the remembered config path, or "" when none is known
// yet.
func (c *Client) ConfigFile() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.configFile
}

// learnConfigFile remembers path unless one is already known.
func (c *Client) learnConfigFile(path string) {
	if path == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.configFile == "" {
		c.configFile = path
		c.logger.Info("learned config file path", zap.String("path", path))
	}
}

var nonWordRe = regexp.MustCompile(`\W+`)

// SanitizeName strips everything but letters, digits and underscores, so a
// protocol name can be embedded in a command.
func SanitizeName(name string) string {
	return strings.TrimSpace(nonWordRe.ReplaceAllString(name, ""))
}

func cleanName(name string) (string, error) {
	clean := SanitizeName(name)
	if clean == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return clean, nil
}

// cleanPrefix accepts a prefix or a bare address.
func cleanPrefix(prefix string) (string, error) {
	prefix = strings.TrimSpace(prefix)
	if p, err := netip.ParsePrefix(prefix); err == nil {
		return p.String(), nil
	}
	if a, err := netip.ParseAddr(prefix); err == nil {
		return a.String(), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidPrefix, prefix)
}

// commandLabel keeps metric cardinality bounded: "show route all protocol
// bgp1" becomes "show route".
func commandLabel(cmd string) string {
	fields := strings.Fields(cmd)
	if len(fields) > 2 {
		fields = fields[:2]
	}
	return strings.Join(fields, " ")
}
