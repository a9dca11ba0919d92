package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/content-harvester/internal/app"
	"github.com/JakeFAU/content-harvester/internal/config"
	"github.com/JakeFAU/content-harvester/internal/dispatcher"
	"github.com/JakeFAU/content-harvester/internal/harvest"
)

// harvester is the part of *app.App the run command drives.
type harvester interface {
	Run(ctx context.Context, seeds []any) (dispatcher.Summary, error)
	Close(ctx context.Context) error
}

// buildHarvester is a variable so tests can swap in a fake.
var buildHarvester = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (harvester, error) {
	return app.Build(ctx, cfg, logger)
}

type runOptions struct {
	seeds     []string
	platforms []string
	budget    int
	dryRun    bool
}

// newRunCmd creates the 'run' subcommand.
func newRunCmd() *cobra.Command {
	var opts runOptions
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Harvests the configured and flagged seed addresses",
		Long: `Normalizes seeds from the config file and --seed flags, then processes
each address in its lane until every admitted address has finished. The run
summary is printed as JSON on stdout.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runHarvest(cmd, opts)
		},
	}
	cmd.Flags().StringArrayVar(&opts.seeds, "seed", nil, "seed address (repeatable)")
	cmd.Flags().StringSliceVar(&opts.platforms, "platform", nil, "restrict to these platforms (video, photo, aggregator, generic)")
	cmd.Flags().IntVar(&opts.budget, "budget", 0, "maximum addresses to admit (overrides budget.max_addresses)")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "print the lane plan without fetching anything")
	return cmd
}

func runHarvest(cmd *cobra.Command, opts runOptions) error {
	e, err := resolveEnv(cmd.Context())
	if err != nil {
		return err
	}
	cfg := e.cfg
	if len(opts.platforms) > 0 {
		cfg.Platforms = opts.platforms
	}
	if opts.budget > 0 {
		cfg.Budget.MaxAddresses = opts.budget
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}
	seeds := make([]any, 0, len(cfg.Seeds)+len(opts.seeds))
	seeds = append(seeds, cfg.Seeds...)
	for _, s := range opts.seeds {
		seeds = append(seeds, s)
	}

	if opts.dryRun {
		plan, err := app.Plan(cfg, seeds, e.logger)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), plan)
	}

	h, err := buildHarvester(cmd.Context(), cfg, e.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize harvester: %w", err)
	}
	defer func() {
		if cerr := h.Close(context.WithoutCancel(cmd.Context())); cerr != nil {
			e.logger.Warn("failed to close harvester", zap.Error(cerr))
		}
	}()

	summary, err := h.Run(cmd.Context(), seeds)
	if errors.Is(err, harvest.ErrInvalidInput) {
		return err
	}
	if perr := printJSON(cmd.OutOrStdout(), summary); perr != nil {
		return perr
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("run harvest: %w", err)
	}
	e.logger.Info("harvest finished",
		zap.String("run_id", summary.RunID),
		zap.Int("records", summary.Records),
		zap.Int("failures", len(summary.Failures)),
	)
	return nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}
