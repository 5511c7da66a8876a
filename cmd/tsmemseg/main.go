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
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zsiec/tsmemseg/internal/config"
	"github.com/zsiec/tsmemseg/internal/ingest"
	"github.com/zsiec/tsmemseg/internal/pacing"
	"github.com/zsiec/tsmemseg/internal/ring"
	"github.com/zsiec/tsmemseg/internal/segmenter"
	"github.com/zsiec/tsmemseg/internal/stats"
)

// fragMaxBytesSafetyCap bounds a single fragment/segment buffer
// independent of the user-facing -m flag, so a pathological stream (no
// key frame, no PAT/PMT-sized boundary) can't grow the accumulating
// buffer without limit between forced-segmentation checks.
const fragMaxBytesSafetyCap = 64 * 1024 * 1024

func main() {
	os.Exit(run())
}

func run() int {
	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	cfg, err := config.Parse(os.Args[1:], os.Stderr)
	if err != nil {
		var perr *config.ParseError
		if errors.As(err, &perr) {
			if perr.ExitCode != config.ExitUsage {
				fmt.Fprintln(os.Stderr, perr.Error())
			}
			return perr.ExitCode
		}
		fmt.Fprintln(os.Stderr, err)
		return config.ExitArgError
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	go func() {
		for sig := range sigCh {
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
			return
		}
	}()

	counters := stats.New()
	limiter := pacing.NewLimiter(cfg.FillReadRatePerMille, cfg.ReadRatePerMille)
	idle := pacing.NewIdleTracker(cfg.AccessTimeout)

	pipe := ingest.New(ingest.Params{
		SegCfg: segmenter.Config{
			InitialTargetDurationMsec: uint32(cfg.InitialTargetDuration.Milliseconds()),
			TargetDurationMsec:        uint32(cfg.TargetDuration.Milliseconds()),
			TargetFragDurationMsec:    uint32(cfg.TargetFragDuration.Milliseconds()),
			SegMaxBytes:               uint64(cfg.SegMaxBytes),
			FragMaxBytes:              fragMaxBytesSafetyCap,
			Mp4Mode:                   cfg.Mp4Mode,
		},
		SegNum:  cfg.SegNum,
		Mp4Mode: cfg.Mp4Mode,
		Limiter: limiter,
		Idle:    idle,
		Stats:   counters,
		Logger:  slog.Default(),
	})

	g, gctx := errgroup.WithContext(ctx)

	if cfg.StreamMode {
		g.Go(func() error {
			return pipe.Run(gctx, os.Stdin)
		})
	} else {
		endpoints, err := makeEndpoints(cfg.EndpointBaseName, cfg.SegNum)
		if err != nil {
			slog.Error("failed to create endpoints", "error", err)
			return config.ExitArgError
		}
		defer destroyAll(endpoints)

		for i, ep := range endpoints {
			slotIndex := i
			endpoint := ep
			d := ring.NewDispatcher(pipe.Ring(), slotIndex, endpoint, idle.Touch, slog.Default())
			g.Go(func() error {
				return d.Run(gctx)
			})
		}

		g.Go(func() error {
			err := pipe.Run(gctx, os.Stdin)
			pipe.Ring().SetEndList()
			return err
		})

		if cfg.AccessTimeout > 0 {
			g.Go(func() error {
				return watchIdle(gctx, idle, cfg.AccessTimeout, cfg.ClosingCommand, cfg.EndpointBaseName, cancel)
			})
		}
	}

	waitErr := g.Wait()
	counters.WriteSummary(os.Stderr)
	if waitErr != nil && !errors.Is(waitErr, context.Canceled) {
		slog.Error("exiting with error", "error", waitErr)
		return config.ExitArgError
	}
	return config.ExitOK
}

// watchIdle polls the shared idle tracker and, once the configured
// timeout has elapsed with no reader connecting to any endpoint, runs
// the closing command (if configured) and cancels the run.
func watchIdle(ctx context.Context, idle *pacing.IdleTracker, timeout time.Duration, closingCmd, endpointName string, cancel context.CancelFunc) error {
	ticker := time.NewTicker(timeout / 4)
	defer ticker.Stop()
	start := time.Now()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if idle.Expired() {
				pacing.RunClosingCommand(context.Background(), closingCmd, endpointName, time.Since(start))
				cancel()
				return nil
			}
		}
	}
}

func makeEndpoints(baseName string, segNum int) ([]ring.SegmentEndpoint, error) {
	endpoints := make([]ring.SegmentEndpoint, segNum+1)
	for i := 0; i <= segNum; i++ {
		path := endpointPath(baseName, i)
		ep, err := ring.NewFIFOEndpoint(path)
		if err != nil {
			destroyAll(endpoints[:i])
			return nil, fmt.Errorf("endpoint %s: %w", path, err)
		}
		endpoints[i] = ep
	}
	return endpoints, nil
}

func destroyAll(endpoints []ring.SegmentEndpoint) {
	for _, ep := range endpoints {
		if ep != nil {
			_ = ep.Destroy()
		}
	}
}

// endpointPath builds /tmp/tsmemseg_<name><NN>.fifo for slot (NN = the
// two-digit zero-padded slot index, 00 for the index slot), per spec
// §6's POSIX ring-mode naming convention.
func endpointPath(baseName string, slot int) string {
	return filepath.Join("/tmp", fmt.Sprintf("tsmemseg_%s%02d.fifo", baseName, slot))
}
