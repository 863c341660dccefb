package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/BTreeMap/LoopPipe/internal/api"
	"github.com/BTreeMap/LoopPipe/internal/config"
	"github.com/BTreeMap/LoopPipe/internal/lockfile"
	"github.com/BTreeMap/LoopPipe/internal/messaging"
	"github.com/BTreeMap/LoopPipe/internal/models"
	"github.com/BTreeMap/LoopPipe/internal/scheduler"
	"github.com/BTreeMap/LoopPipe/internal/store"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the invite delivery worker",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts.cfg, opts.logger)
		},
	}
	f := cmd.Flags()
	f.String("addr", "", "HTTP listen address")
	f.String("base-url", "", "public origin for smart links")
	f.String("delivery", "", "delivery backend (log, twilio, whatsapp)")
	f.String("qr-output", "", "write the WhatsApp login QR code to this file")
	f.Bool("numeric", false, "print the WhatsApp login code instead of a QR code")
	bindFlags(opts.v, f, map[string]string{
		"server.addr":                    "addr",
		"server.base_url":                "base-url",
		"delivery.service":               "delivery",
		"delivery.whatsapp.qr_output":    "qr-output",
		"delivery.whatsapp.numeric_code": "numeric",
	})
	return cmd
}

func runServe(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	dsn := cfg.StoreDSN()
	if err := ensureDirectoriesExist(dsn); err != nil {
		return err
	}
	st, kind, err := store.Open(dsn)
	if err != nil {
		return err
	}
	defer st.Close()

	if kind == store.KindSQLite {
		lock, err := lockfile.AcquireLock(filepath.Dir(dsn), cfg.Server.Addr)
		if err != nil {
			var lockErr *lockfile.LockError
			if errors.As(err, &lockErr) {
				return fmt.Errorf("another LoopPipe instance holds the state directory: %w", err)
			}
			return err
		}
		defer func() {
			if err := lock.Release(); err != nil {
				logger.Error("runServe: failed to release lock", "error", err)
			}
		}()
	}

	a, err := buildApp(cfg, st, logger)
	if err != nil {
		return err
	}

	router, err := buildRouter(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if err := router.Start(ctx); err != nil {
		return fmt.Errorf("failed to start messaging services: %w", err)
	}
	defer func() {
		if err := router.Stop(); err != nil {
			logger.Error("runServe: failed to stop messaging services", "error", err)
		}
	}()

	a.bus.Subscribe(models.EventInviteGenerated, messaging.NewInviteDelivery(st))
	sender := store.NewOutboxSender(st, router.SendFunc(), buildOutboxOptions(cfg)...)
	recoverStale := func() {
		if err := sender.RecoverStaleMessages(); err != nil {
			logger.Warn("runServe: failed to recover stale outbox messages", "error", err)
		}
	}
	recoverStale()
	sched := scheduler.NewScheduler()
	defer sched.Stop()
	if err := sched.AddJob("outbox-recover", cfg.Delivery.RecoverSchedule, recoverStale); err != nil {
		return err
	}

	srv := api.NewServer(a.pipeline, a.links, buildAPIOptions(cfg, a, logger)...)

	logger.Info("runServe: LoopPipe starting", "addr", cfg.Server.Addr, "store", kind, "delivery", cfg.Delivery.Service,
		"loops", len(a.pipeline.Loops().All()), "actions", len(a.pipeline.Orchestrator().All()))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		sender.Run(gctx)
		return nil
	})
	g.Go(func() error {
		return srv.Run(gctx)
	})
	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("runServe: LoopPipe exited")
	return nil
}
