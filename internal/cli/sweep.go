package cli

import (
	"context"

	"github.com/spf13/cobra"
	"quiz-participation-service/internal/config"
)

// NewSweepCmd submits every attempt whose deadline has passed, once.
func NewSweepCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Submit expired attempts once and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSweep(cmd.Context(), *configPath)
		},
	}
}

func runSweep(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log := newLogger(cfg)

	d, err := buildDeps(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer d.Close()

	n, err := newSweeper(d, cfg).Sweep(ctx)
	d.service.Wait()
	if err != nil {
		return err
	}
	log.WithField("submitted", n).Info("sweep finished")
	return nil
}
