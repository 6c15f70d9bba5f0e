package main

import (
	"Go2NetTimeline/internal/config"
	"Go2NetTimeline/internal/metrics"
	"Go2NetTimeline/internal/timeline"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "ns-timeline",
		Short:         "Packet timeline engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd(), newReplayCmd())
	return root
}

// engineOptions maps the timeline section of the configuration onto engine options.
func engineOptions(cfg config.TimelineConfig, logger *zap.Logger, m *metrics.Metrics) timeline.Options {
	return timeline.Options{
		MaxBufferSize:     cfg.MaxBufferSize,
		SegmentDuration:   cfg.SegmentDuration.Std(),
		AnomalyThreshold:  cfg.AnomalyThreshold,
		AnomalyCooldown:   cfg.AnomalyCooldown.Std(),
		AutoCleanup:       cfg.AutoCleanup,
		CleanupInterval:   cfg.CleanupInterval.Std(),
		Retention:         cfg.Retention.Std(),
		StorageKey:        cfg.StorageKey,
		NearestTolerance:  cfg.NearestTolerance,
		DefaultMaxResults: cfg.MaxResults,
		Logger:            logger,
		Metrics:           m,
	}
}
