package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/keboola/processing-plant/internal/pkg/log"
	"github.com/keboola/processing-plant/internal/pkg/service/common/servicectx"
	"github.com/keboola/processing-plant/internal/pkg/service/plant/config"
	"github.com/keboola/processing-plant/internal/pkg/service/plant/dependencies"
	"github.com/keboola/processing-plant/internal/pkg/service/plant/service"
	"github.com/keboola/processing-plant/internal/pkg/telemetry"
	"github.com/keboola/processing-plant/internal/pkg/telemetry/metric/prometheus"
	"github.com/keboola/processing-plant/internal/pkg/utils/errors"
)

const ServiceName = "plant-node"

func main() {
	cmd := &cobra.Command{
		Use:   ServiceName,
		Short: "Processing plant node, coordinates job cards of the work unit processors.",
		// Flags are generated from the configuration structure, see config.Bind
		DisableFlagParsing: true,
		SilenceUsage:       true,
		SilenceErrors:      true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), args)
		},
	}

	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %s\n", err.Error()) // nolint:forbidigo
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Load configuration.
	cfg, err := config.Bind(args, os.LookupEnv)
	if errors.Is(err, pflag.ErrHelp) {
		// Stop on --help flag
		return nil
	} else if err != nil {
		return err
	}
	if err := cfg.Validate(ctx); err != nil {
		return err
	}

	// Create logger.
	logFormat, err := log.NewLogFormat(cfg.LogFormat)
	if err != nil {
		return err
	}
	logger := log.NewServiceLogger(os.Stderr, cfg.DebugLog, logFormat)

	// Create process abstraction.
	proc, err := servicectx.New(ctx, cancel, servicectx.WithLogger(logger), servicectx.WithUniqueID(cfg.NodeID))
	if err != nil {
		return err
	}

	// Setup telemetry
	meterProvider, err := prometheus.ServeMetrics(ctx, ServiceName, cfg.Metrics.Listen, logger, proc)
	if err != nil {
		return err
	}
	tel := telemetry.New(nil, meterProvider)

	// Create dependencies.
	d, err := dependencies.NewServiceScope(ctx, proc, cfg, logger, tel)
	if err != nil {
		return err
	}

	logger.Infof(ctx, `starting processing plant node "%s", cluster "%s"`, cfg.NodeID, cfg.ClusterName)
	service.New(d).Start(ctx)

	// Wait for the service shutdown.
	proc.WaitForShutdown()
	return nil
}
