// Package daemon assembles the pieces of a running ferry: the locked
// workspace, the mirror manager and the optional status API, under one
// lifecycle.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/openferry/ferry/internal/config"
	"github.com/openferry/ferry/internal/mirror"
	"github.com/openferry/ferry/internal/statusapi"
	"github.com/openferry/ferry/internal/transfer"
	"github.com/openferry/ferry/internal/workspace"
)

const shutdownTimeout = 10 * time.Second

type Daemon struct {
	ws  *workspace.Workspace
	mgr *mirror.Manager
	api *statusapi.Server
}

func New(cfg *config.Config, watchDir string) (*Daemon, error) {
	ws, err := workspace.NewWorkspace(watchDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve workspace: %w", err)
	}

	dialer, err := transfer.NewDialer(transfer.Config{
		Host:     cfg.Host,
		Port:     cfg.Port,
		User:     cfg.User,
		Password: cfg.Password,
		Secure:   cfg.Secure,
		Backend:  cfg.Backend,
		Bucket:   cfg.Bucket,
		Region:   cfg.Region,
	})
	if err != nil {
		return nil, err
	}

	mgr := mirror.NewManager(ws, dialer, mirror.Config{
		Policy: mirror.RetryPolicy{
			MaxRetries:        cfg.MaxRetries,
			InitialDelay:      cfg.InitialDelay,
			MaxDelay:          cfg.MaxDelay,
			BackoffMultiplier: cfg.BackoffMultiplier,
		},
		MaxConcurrent: int64(cfg.MaxConcurrent),
		RemoteDir:     cfg.RemoteDir,
		Include:       cfg.Include,
	})

	var api *statusapi.Server
	if cfg.StatusEnabled() {
		api = statusapi.NewServer(&statusapi.Config{
			Addr:      cfg.StatusAddr,
			AuthToken: cfg.StatusToken,
		}, mgr)
	}

	return &Daemon{
		ws:  ws,
		mgr: mgr,
		api: api,
	}, nil
}

// Start runs the daemon until the context is cancelled or a component fails.
// The workspace stays locked for the whole run.
func (d *Daemon) Start(ctx context.Context) error {
	slog.Info("ferry daemon start", "dir", d.ws.Root)

	if err := d.ws.Setup(); err != nil {
		return err
	}
	defer func() {
		if err := d.ws.Unlock(); err != nil {
			slog.Warn("workspace unlock", "error", err)
		}
	}()

	// Create errgroup with derived context
	eg, egCtx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		if err := d.mgr.Start(ctx); err != nil {
			return fmt.Errorf("failed to start mirror manager: %w", err)
		}
		return nil
	})

	if d.api != nil {
		eg.Go(func() error {
			if err := d.api.Start(ctx); err != nil {
				return fmt.Errorf("failed to start status api: %w", err)
			}
			return nil
		})
	}

	// Launch goroutine to handle shutdown on context cancellation
	eg.Go(func() error {
		<-egCtx.Done()
		slog.Info("received interrupt signal, stopping daemon")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		return d.Stop(shutdownCtx)
	})

	if err := eg.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("ferry daemon failure", "error", err)
		return err
	}

	slog.Info("ferry daemon stopped")
	return nil
}

// Stop drains in-flight uploads and shuts the API down. The context bounds
// the drain.
func (d *Daemon) Stop(ctx context.Context) error {
	if err := d.mgr.Stop(ctx); err != nil {
		slog.Warn("mirror manager stop", "error", err)
	}
	if d.api != nil {
		if err := d.api.Stop(ctx); err != nil {
			return fmt.Errorf("failed to stop status api: %w", err)
		}
	}
	return nil
}
