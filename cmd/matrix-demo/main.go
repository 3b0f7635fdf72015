package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/fkcurrie/rgbmatrix-golang/internal/config"
	"github.com/fkcurrie/rgbmatrix-golang/pkg/gpio"
	"github.com/fkcurrie/rgbmatrix-golang/pkg/rgbmatrix"
)

type options struct {
	configPath string
	pattern    string
	interval   time.Duration
	frameRate  int
	text       string
}

func main() {
	flags := pflag.NewFlagSet("matrix-demo", pflag.ExitOnError)
	var opts options
	flags.StringVarP(&opts.configPath, "config", "c", "config.yaml", "path to config file")
	flags.StringVarP(&opts.pattern, "pattern", "p", "", "show only this pattern (red, green, blue, checkerboard, gradient, testcard, scroll)")
	flags.DurationVar(&opts.interval, "interval", 2*time.Second, "time each pattern is shown")
	flags.IntVar(&opts.frameRate, "fps", 20, "pattern redraw rate")
	flags.StringVar(&opts.text, "text", "HELLO WORLD", "text for the scroll pattern")
	backend := flags.String("backend", "", "gpio backend: gpiocdev, periph or rpio")
	chip := flags.String("chip", "", "gpio character device")
	mapping := flags.String("mapping", "", "pin mapping: adafruit-hat or classic")
	rows := flags.Int("rows", 0, "panel rows")
	cols := flags.Int("cols", 0, "panels per row")
	depth := flags.Int("depth", 0, "bit planes per channel (1-11)")
	luminance := flags.Bool("luminance", false, "enable CIE1931 luminance correction")
	priority := flags.Int("priority", 0, "SCHED_FIFO priority of the refresh thread, -1 to disable")
	level := flags.String("log-level", "", "log level")
	flags.Parse(os.Args[1:])

	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()

	// Load configuration
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		log.Warn().Err(err).Str("path", opts.configPath).Msg("using default configuration")
		cfg = config.Default()
	}

	if flags.Changed("backend") {
		cfg.GPIO.Backend = *backend
	}
	if flags.Changed("chip") {
		cfg.GPIO.Chip = *chip
	}
	if flags.Changed("mapping") {
		cfg.GPIO.Mapping = *mapping
		cfg.GPIO.Pins = nil
	}
	if flags.Changed("rows") {
		cfg.Display.Rows = *rows
	}
	if flags.Changed("cols") {
		cfg.Display.Cols = *cols
	}
	if flags.Changed("depth") {
		cfg.Display.BrightnessDepth = *depth
	}
	if flags.Changed("luminance") {
		cfg.Display.LuminanceCorrection = *luminance
	}
	if flags.Changed("priority") {
		cfg.Refresh.Priority = *priority
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = *level
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	lvl, _ := zerolog.ParseLevel(cfg.Log.Level)
	zerolog.SetGlobalLevel(lvl)

	if err := run(cfg, opts); err != nil {
		log.Fatal().Err(err).Msg("matrix-demo failed")
	}
}

func run(cfg *config.Config, opts options) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	matrixCfg, err := cfg.Matrix(&log.Logger)
	if err != nil {
		return err
	}
	matrix, err := rgbmatrix.NewMatrix(matrixCfg)
	if err != nil {
		return fmt.Errorf("failed to create matrix: %w", err)
	}

	io, err := gpio.Open(cfg.GPIO.Backend, cfg.GPIO.Chip)
	if err != nil {
		return err
	}
	defer func() {
		if err := io.Close(); err != nil {
			log.Error().Err(err).Msg("failed to release gpio")
		}
	}()
	// Closed before the lines are released so the panel is left dark.
	defer func() {
		if err := matrix.Close(); err != nil {
			log.Error().Err(err).Msg("failed to shut down matrix")
		}
	}()

	if err := matrix.AttachSignalInterface(io); err != nil {
		return fmt.Errorf("failed to attach %s: %w", cfg.GPIO.Backend, err)
	}
	log.Info().
		Str("backend", cfg.GPIO.Backend).
		Int("width", matrix.Width()).
		Int("height", matrix.Height()).
		Msg("matrix running")

	ps, err := patterns(matrix.Width(), matrix.Height(), opts.text)
	if err != nil {
		return err
	}
	if opts.pattern != "" {
		p, ok := findPattern(ps, opts.pattern)
		if !ok {
			return fmt.Errorf("unknown pattern %q", opts.pattern)
		}
		ps = []pattern{p}
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return produce(ctx, matrix, ps, opts)
	})
	g.Go(func() error {
		select {
		case <-ctx.Done():
			return nil
		case <-matrix.Fatal():
			return matrix.Err()
		}
	})
	g.Go(func() error {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				s := matrix.Stats()
				log.Info().Uint64("frames", s.Frames).Float64("hz", s.Rate()).Msg("refresh")
			}
		}
	})

	err = g.Wait()
	log.Info().Msg("shutting down")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// produce draws patterns into an offscreen canvas and swaps it in, so
// the refresh never shows a half drawn pattern.
func produce(ctx context.Context, matrix *rgbmatrix.Matrix, ps []pattern, opts options) error {
	fps := opts.frameRate
	if fps <= 0 {
		fps = 20
	}
	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()

	back := matrix.NewFrameCanvas()
	started := time.Now()
	current := -1
	for n := 0; ; n++ {
		i := 0
		if opts.interval > 0 {
			i = int(time.Since(started)/opts.interval) % len(ps)
		}
		if i != current {
			current = i
			log.Debug().Str("pattern", ps[i].name).Msg("showing pattern")
		}
		ps[i].draw(back, n)
		back = matrix.SwapFrameCanvas(back)

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
