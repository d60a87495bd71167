package main

import (
	"context"
	"errors"
	"os"
	"syscall"

	"github.com/oklog/run"
	"github.com/rs/zerolog/log"

	"github.com/yairfalse/converge/internal/reconciler"
	"github.com/yairfalse/converge/pkg/group"
)

// reconcileWithSignals runs the reconcile next to a signal handler. SIGINT
// or SIGTERM cancels the reconcile's context.
func reconcileWithSignals(ctx context.Context, rec *reconciler.Reconciler, spec group.Spec) (group.Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		result       group.Result
		reconcileErr error
		g            run.Group
	)

	g.Add(func() error {
		result, reconcileErr = rec.Reconcile(ctx, spec)
		return reconcileErr
	}, func(error) {
		cancel()
	})

	g.Add(run.SignalHandler(ctx, os.Interrupt, syscall.SIGTERM))

	if err := g.Run(); err != nil {
		var sigErr run.SignalError
		if errors.As(err, &sigErr) {
			log.Warn().Str("signal", sigErr.Signal.String()).Msg("interrupted")
		}
	}
	return result, reconcileErr
}
