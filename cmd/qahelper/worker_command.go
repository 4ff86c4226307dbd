package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"github.com/cjhyy/interview-QA-help/internal/app"
)

func newWorkerCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Resume tasks whose run was interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			lockPath := ctx.ensureConfig().Worker.LockPath
			if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
				return fmt.Errorf("ensure lock dir: %w", err)
			}
			lock := flock.New(lockPath)
			ok, err := lock.TryLock()
			if err != nil {
				return fmt.Errorf("acquire worker lock: %w", err)
			}
			if !ok {
				return fmt.Errorf("another worker holds %s", lockPath)
			}
			defer func() { _ = lock.Unlock() }()

			return ctx.withApp(cmd, func(a *app.Application) error {
				reclaimer := a.Reclaimer()
				if err := reclaimer.Start(cmd.Context()); err != nil {
					return err
				}
				a.Logger().Info("worker started", "lock", lockPath)

				<-cmd.Context().Done()

				stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer cancel()
				a.Logger().Info("worker stopping")
				return reclaimer.Stop(stopCtx)
			})
		},
	}
}
