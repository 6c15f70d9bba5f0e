package main

import (
	"Go2NetTimeline/internal/config"
	"Go2NetTimeline/internal/logging"
	"Go2NetTimeline/internal/model"
	"Go2NetTimeline/internal/timeline"
	"Go2NetTimeline/pkg/pcap"
	"fmt"
	"io"
	"log"
	"math"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type replayOptions struct {
	file   string
	format string
	start  float64
	end    float64
}

func newReplayCmd() *cobra.Command {
	opts := replayOptions{start: math.NaN(), end: math.NaN()}
	cmd := &cobra.Command{
		Use:   "replay --file capture.pcap",
		Short: "Load a pcap capture into an in-memory timeline and print an export",
		Example: `  ns-timeline replay --file capture.pcap
  ns-timeline replay --file capture.pcap --format csv --start 1700000000 --end 1700000060`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := logging.New(config.LoggingConfig{Level: "warn", Format: "console"})
			if err != nil {
				log.Fatalf("Failed to create logger: %v", err)
			}
			defer func() { _ = logger.Sync() }()
			return replay(cmd.OutOrStdout(), opts, logger)
		},
	}
	cmd.Flags().StringVarP(&opts.file, "file", "f", "", "pcap file to replay")
	cmd.Flags().StringVar(&opts.format, "format", timeline.FormatJSON, "export format: json or csv")
	cmd.Flags().Float64Var(&opts.start, "start", opts.start, "range start in epoch seconds (default: first packet)")
	cmd.Flags().Float64Var(&opts.end, "end", opts.end, "range end in epoch seconds (default: last packet)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func replay(out io.Writer, opts replayOptions, logger *zap.Logger) error {
	reader, err := pcap.NewReader(opts.file, logger)
	if err != nil {
		return err
	}
	defer reader.Close()

	engine := timeline.New(nil, timeline.Options{
		MaxBufferSize: math.MaxInt32,
		AutoCleanup:   timeline.DisableAutoCleanup(),
		Logger:        logger,
	})
	defer engine.Close()

	packets := make(chan model.RawPacket, 1024)
	go reader.ReadPackets(packets)
	batch := make([]model.RawPacket, 0, 512)
	for p := range packets {
		batch = append(batch, p)
		if len(batch) == cap(batch) {
			engine.AddPackets(batch)
			batch = batch[:0]
		}
	}
	engine.AddPackets(batch)

	bounds := engine.Bounds()
	if bounds.StartTime == nil {
		return fmt.Errorf("no IP packets found in %s", opts.file)
	}
	start, end := opts.start, opts.end
	if math.IsNaN(start) {
		start = *bounds.StartTime
	}
	if math.IsNaN(end) {
		end = *bounds.EndTime
	}

	data, err := engine.ExportSegment(start, end, opts.format)
	if err != nil {
		return err
	}
	if _, err := out.Write(data); err != nil {
		return err
	}
	_, err = fmt.Fprintln(out)
	logger.Info("replay finished", zap.Int("packets", engine.PacketCount()), zap.String("file", opts.file))
	return err
}
