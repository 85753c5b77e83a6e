// Package main provides the CLI entry point for previewkit.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/ideamans/go-l10n"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/urfave/cli/v2"

	"github.com/user/previewkit/pkg/adapters/filesink"
	"github.com/user/previewkit/pkg/adapters/ggrenderer"
	"github.com/user/previewkit/pkg/adapters/logger"
	"github.com/user/previewkit/pkg/adapters/mediasource"
	"github.com/user/previewkit/pkg/adapters/nullsink"
	"github.com/user/previewkit/pkg/adapters/osfilesystem"
	"github.com/user/previewkit/pkg/adapters/scaler"
	"github.com/user/previewkit/pkg/config"
	"github.com/user/previewkit/pkg/decode"
	"github.com/user/previewkit/pkg/filmstrip"
	"github.com/user/previewkit/pkg/metrics"
	"github.com/user/previewkit/pkg/ports"
	"github.com/user/previewkit/pkg/preview"
	"github.com/user/previewkit/pkg/thumbnail"
)

var version = "dev"

func main() {
	app := &cli.App{
		Name:    "previewkit",
		Usage:   l10n.T("Decode preview frames and thumbnail filmstrips from video files"),
		Version: version,
		Flags:   commonFlags(),
		Commands: []*cli.Command{
			frameCommand(),
			stripCommand(),
			scrubCommand(),
			{
				Name:  "version",
				Usage: l10n.T("Show version information"),
				Action: func(c *cli.Context) error {
					fmt.Println(l10n.F("previewkit version %s", version))
					return nil
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func commonFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: l10n.T("YAML configuration file"), Category: l10n.T("Configuration")},
		&cli.StringFlag{Name: "ffmpeg-path", Usage: l10n.T("Path to the ffmpeg executable"), EnvVars: []string{"FFMPEG_PATH"}, Category: l10n.T("Configuration")},
		&cli.StringFlag{Name: "log-level", Aliases: []string{"l"}, Usage: l10n.T("Log level (debug, info, warn, error)"), Category: l10n.T("Logging")},
		&cli.BoolFlag{Name: "quiet", Aliases: []string{"Q"}, Usage: l10n.T("Suppress all log output"), Category: l10n.T("Logging")},
		&cli.BoolFlag{Name: "debug", Aliases: []string{"d"}, Usage: l10n.T("Save decoded frames and thumbnails for inspection"), Category: l10n.T("Debug")},
		&cli.StringFlag{Name: "debug-dir", Usage: l10n.T("Directory for debug output"), Category: l10n.T("Debug")},
		&cli.BoolFlag{Name: "metrics", Usage: l10n.T("Print collected metrics on exit"), Category: l10n.T("Debug")},
	}
}

func frameCommand() *cli.Command {
	return &cli.Command{
		Name:      "frame",
		Usage:     l10n.T("Decode one preview frame as PNG"),
		ArgsUsage: "<video>",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "at", Aliases: []string{"t"}, Usage: l10n.T("Timestamp in milliseconds")},
			&cli.IntFlag{Name: "width", Aliases: []string{"W"}, Value: 640, Usage: l10n.T("Output width")},
			&cli.IntFlag{Name: "height", Aliases: []string{"H"}, Value: 360, Usage: l10n.T("Output height")},
			&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Required: true, Usage: l10n.T("Output PNG file path (required)")},
		},
		Action: func(c *cli.Context) error {
			return withApp(c, func(ctx context.Context, a *appContext) error {
				h, err := a.service.Open(c.Args().First(), c.Int("width"), c.Int("height"))
				if err != nil {
					return err
				}
				frame, err := a.service.RequestFrame(ctx, h, c.Int("at"), decode.ModeScrub)
				if err != nil {
					return err
				}
				data, err := a.renderer.EncodeImage(frame.Image, ports.FormatPNG, 0)
				if err != nil {
					return err
				}
				if err := a.fs.WriteFile(c.String("output"), data); err != nil {
					return err
				}
				a.log.Info(l10n.F("Frame at %d ms saved to %s", frame.TimestampMs, c.String("output")))
				return nil
			})
		},
	}
}

func stripCommand() *cli.Command {
	return &cli.Command{
		Name:      "strip",
		Usage:     l10n.T("Render a thumbnail filmstrip of a clip as PNG"),
		ArgsUsage: "<video>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "tier", Usage: l10n.T("Thumbnail tier (low, medium, high); picked from --zoom when empty")},
			&cli.Float64Flag{Name: "zoom", Value: 0.05, Usage: l10n.T("Timeline zoom in pixels per millisecond")},
			&cli.IntFlag{Name: "start", Usage: l10n.T("Clip start in source milliseconds")},
			&cli.IntFlag{Name: "end", Usage: l10n.T("Clip end in source milliseconds (default: end of file)")},
			&cli.IntFlag{Name: "height", Aliases: []string{"H"}, Value: 45, Usage: l10n.T("Filmstrip height")},
			&cli.DurationFlag{Name: "wait", Value: 30 * time.Second, Usage: l10n.T("How long to wait for thumbnails")},
			&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Required: true, Usage: l10n.T("Output PNG file path (required)")},
		},
		Action: func(c *cli.Context) error {
			return withApp(c, func(ctx context.Context, a *appContext) error {
				h, err := a.service.Open(c.Args().First(), 16, 16)
				if err != nil {
					return err
				}

				tier := thumbnail.TierForZoom(c.Float64("zoom"))
				if name := c.String("tier"); name != "" {
					if tier, err = thumbnail.ParseTier(name); err != nil {
						return err
					}
				}

				clip := filmstrip.Clip{
					HeightPx:      c.Int("height"),
					SourceStartMs: c.Int("start"),
					SourceEndMs:   c.Int("end"),
				}
				if clip.SourceEndMs <= clip.SourceStartMs {
					clip.SourceEndMs = h.Info().DurationMs
				}
				clip.WidthPx = int(float64(clip.SourceEndMs-clip.SourceStartMs) * c.Float64("zoom"))

				strip := a.service.GetOrRequestStrip(h, tier)
				a.log.Info(l10n.F("Waiting for %s thumbnails of %s...", tier, h.FileID()))
				waitStrip(ctx, a.service, strip, c.Duration("wait"))
				if err := strip.Err(); err != nil {
					a.log.Warn(l10n.F("Filmstrip is incomplete: %v", err))
				}

				img := filmstrip.RenderStrip(a.renderer, clip, strip, filmstrip.Options{Background: config.ParseColor(a.cfg.Background)})
				if a.sink.Enabled() {
					_ = a.sink.SaveFilmstrip(fmt.Sprintf("%s-%s", h.FileID(), tier), img)
				}
				data, err := a.renderer.EncodeImage(img, ports.FormatPNG, 0)
				if err != nil {
					return err
				}
				if err := a.fs.WriteFile(c.String("output"), data); err != nil {
					return err
				}
				a.log.Info(l10n.F("Filmstrip of %d thumbnails saved to %s", strip.Len(), c.String("output")))
				return nil
			})
		},
	}
}

func scrubCommand() *cli.Command {
	return &cli.Command{
		Name:      "scrub",
		Usage:     l10n.T("Replay scrub positions and report what was rendered"),
		ArgsUsage: "<video>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "targets", Required: true, Usage: l10n.T("Comma separated scrub positions in milliseconds")},
			&cli.DurationFlag{Name: "interval", Value: 10 * time.Millisecond, Usage: l10n.T("Delay between scrub positions")},
			&cli.IntFlag{Name: "width", Aliases: []string{"W"}, Value: 640, Usage: l10n.T("Output width")},
			&cli.IntFlag{Name: "height", Aliases: []string{"H"}, Value: 360, Usage: l10n.T("Output height")},
		},
		Action: func(c *cli.Context) error {
			targets, err := parseTargets(c.String("targets"))
			if err != nil {
				return err
			}
			return withApp(c, func(ctx context.Context, a *appContext) error {
				h, err := a.service.Open(c.Args().First(), c.Int("width"), c.Int("height"))
				if err != nil {
					return err
				}

				results := make(chan preview.Result, len(targets))
				sc := a.service.NewScrubber(h, func(r preview.Result) { results <- r })
				for _, ts := range targets {
					sc.Set(ts)
					time.Sleep(c.Duration("interval"))
				}

				last := targets[len(targets)-1]
				for done := false; !done; {
					select {
					case r := <-results:
						if r.Err != nil {
							a.log.Warn(l10n.F("Scrub to %d ms failed: %v", r.TimestampMs, r.Err))
						}
						done = r.TimestampMs == last
					case <-ctx.Done():
						done = true
					}
				}
				sc.Stop()

				stats := sc.Stats()
				a.log.Info(l10n.F("Scrubbed %d targets: %d rendered, %d superseded", stats.Requested, stats.Rendered, stats.Superseded))
				return nil
			})
		},
	}
}

type appContext struct {
	cfg      config.Config
	log      ports.Logger
	registry *prometheus.Registry
	service  *preview.Service
	renderer *ggrenderer.Renderer
	fs       *osfilesystem.FileSystem
	sink     ports.DebugSink
}

// withApp builds the service from flags and configuration, runs fn and shuts everything down.
func withApp(c *cli.Context, fn func(ctx context.Context, a *appContext) error) error {
	if c.Args().Len() < 1 {
		return errors.New(l10n.T("A video argument is required"))
	}

	cfg := config.Defaults()
	if path := c.String("config"); path != "" {
		var err error
		if cfg, err = config.LoadFromFile(path); err != nil {
			return err
		}
	}
	if v := c.String("ffmpeg-path"); v != "" {
		cfg.Decode.FFmpegPath = v
	}
	if v := c.String("log-level"); v != "" {
		cfg.LogLevel = v
	}
	if c.Bool("debug") {
		cfg.Debug = true
	}
	if v := c.String("debug-dir"); v != "" {
		cfg.DebugDir = v
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	var log ports.Logger
	if c.Bool("quiet") {
		log = logger.NewNoop()
	} else {
		log = logger.NewConsole(ports.ParseLogLevel(cfg.LogLevel))
	}

	ctx, cancel := context.WithCancel(c.Context)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			log.Warn(l10n.T("Interrupted, shutting down..."))
			cancel()
		case <-ctx.Done():
		}
	}()

	fs := osfilesystem.New()
	renderer := ggrenderer.New()

	var sink ports.DebugSink
	if cfg.Debug {
		if err := fs.MkdirAll(cfg.DebugDir); err != nil {
			return fmt.Errorf("create debug directory: %w", err)
		}
		sink = filesink.New(cfg.DebugDir, fs, renderer)
	} else {
		sink = nullsink.New()
	}

	reg := prometheus.NewRegistry()
	opts := cfg.ToServiceOptions()
	opts.Logger = log
	opts.Metrics = metrics.New(reg)
	opts.Sink = sink

	svc := preview.New(mediasource.New(cfg.ToMediaOptions()), scaler.New(), opts)

	a := &appContext{
		cfg:      cfg,
		log:      log,
		registry: reg,
		service:  svc,
		renderer: renderer,
		fs:       fs,
		sink:     sink,
	}
	err := fn(ctx, a)
	if serr := svc.Shutdown(); err == nil {
		err = serr
	}

	if c.Bool("metrics") {
		if merr := printMetrics(reg); err == nil {
			err = merr
		}
	}
	return err
}

// waitStrip blocks until strip is complete, ctx is done or wait elapses.
func waitStrip(ctx context.Context, svc *preview.Service, strip *thumbnail.Strip, wait time.Duration) {
	timeout := time.After(wait)
	for !strip.Complete() {
		select {
		case <-svc.ThumbnailReady():
		case <-time.After(100 * time.Millisecond):
		case <-timeout:
			return
		case <-ctx.Done():
			return
		}
	}
}

func parseTargets(s string) ([]int, error) {
	var out []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		ts, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("invalid scrub target %q: %w", part, err)
		}
		out = append(out, ts)
	}
	if len(out) == 0 {
		return nil, errors.New(l10n.T("At least one scrub target is required"))
	}
	return out, nil
}

func printMetrics(reg *prometheus.Registry) error {
	families, err := reg.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(os.Stdout, mf); err != nil {
			return err
		}
	}
	return nil
}
