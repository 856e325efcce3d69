package client

import (
	"context"
	"fmt"
	"time"

	"github.com/route-beacon/bird-collector/internal/birdc"
	"go.uber.org/zap"
)

type ConfigureOptions struct {
	// Soft keeps running protocols when only their filters changed.
	Soft bool
	// Timeout arms an automatic undo unless "configure confirm" follows
	// within it. Zero disables.
	Timeout time.Duration
}

func (o ConfigureOptions) command() string {
	cmd := "configure"
	if o.Soft {
		cmd += " soft"
	}
	if secs := int(o.Timeout / time.Second); secs > 0 {
		cmd += fmt.Sprintf(" timeout %d", secs)
	}
	return cmd
}

// Configure reloads the daemon configuration. A rejected configuration is
// reported in the result, not as an error.
func (c *Client) Configure(ctx context.Context, opts ConfigureOptions) (birdc.ConfigureResult, error) {
	return c.configure(ctx, opts.command())
}

// CheckConfig parses the configuration file without applying it.
func (c *Client) CheckConfig(ctx context.Context) (birdc.ConfigureResult, error) {
	return c.configure(ctx, "configure check")
}

// ConfirmConfig cancels the undo armed by a configure with a timeout.
func (c *Client) ConfirmConfig(ctx context.Context) (birdc.ConfigureResult, error) {
	return c.configure(ctx, "configure confirm")
}

// UndoConfig rolls back to the previous configuration.
func (c *Client) UndoConfig(ctx context.Context) (birdc.ConfigureResult, error) {
	return c.configure(ctx, "configure undo")
}

func (c *Client) configure(ctx context.Context, cmd string) (birdc.ConfigureResult, error) {
	reply, err := c.query(ctx, cmd)
	if err != nil {
		return birdc.ConfigureResult{}, err
	}
	res, path, err := birdc.ClassifyConfigure(reply)
	c.learnConfigFile(path)
	if err != nil {
		return birdc.ConfigureResult{}, decodeFailed("configure", err)
	}
	if !res.OK {
		c.logger.Warn("configure rejected by daemon", zap.String("command", cmd), zap.String("message", res.Message))
	}
	return res, nil
}

// GetConfig returns the content of the remembered config file.
func (c *Client) GetConfig(ctx context.Context) (string, error) {
	path, err := c.configPath()
	if err != nil {
		return "", err
	}
	return c.store.Read(ctx, path)
}

// PutConfig replaces the remembered config file. The daemon does not see
// the change until CommitConfig.
func (c *Client) PutConfig(ctx context.Context, content string) error {
	path, err := c.configPath()
	if err != nil {
		return err
	}
	return c.store.Write(ctx, path, content)
}

// CommitConfig applies the config file with a plain configure.
func (c *Client) CommitConfig(ctx context.Context) (birdc.ConfigureResult, error) {
	return c.Configure(ctx, ConfigureOptions{})
}

func (c *Client) configPath() (string, error) {
	if c.store == nil {
		return "", fmt.Errorf("%w: no config file store", ErrNoConfigFile)
	}
	path := c.ConfigFile()
	if path == "" {
		return "", ErrNoConfigFile
	}
	return path, nil
}
