package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"github.com/fkcurrie/rgbmatrix-golang/pkg/gpio"
)

type pin struct {
	name   string
	offset int
}

// pins names the lines of a mapping in connector order.
func pins(m gpio.PinMapping) []pin {
	p := []pin{
		{"R1", m.R1}, {"G1", m.G1}, {"B1", m.B1},
		{"R2", m.R2}, {"G2", m.G2}, {"B2", m.B2},
		{"CLK", m.Clock}, {"STB", m.Strobe}, {"OE", m.OutputEnable},
	}
	for i, offset := range m.Address {
		p = append(p, pin{string(rune('A' + i)), offset})
	}
	return p
}

func main() {
	backend := pflag.StringP("backend", "b", gpio.BackendChip, "gpio backend: gpiocdev, periph or rpio")
	chip := pflag.String("chip", "gpiochip0", "gpio character device")
	mapping := pflag.StringP("mapping", "m", "adafruit-hat", "pin mapping")
	period := pflag.Duration("period", time.Second, "time each line is held high")
	pflag.Parse()

	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		With().Timestamp().Logger()

	// Set up signal handler for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m, err := gpio.MappingByName(*mapping)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid mapping")
	}
	io, err := gpio.Open(*backend, *chip)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid backend")
	}
	defer io.Close()

	if err := io.InitializeForPanel(m.Outputs()); err != nil {
		log.Error().Err(err).Str("backend", *backend).Msg("failed to request lines")
		return
	}
	log.Info().Str("backend", *backend).Str("mapping", m.Name).Msg("walking lines, ctrl-c to stop")

	// Raise one line at a time so each connector pin can be probed.
	lines := pins(m)
	for i := 0; ; i++ {
		s := lines[i%len(lines)]
		l := gpio.Line(s.offset)
		if err := io.WriteFrameLines(l, m.Outputs()); err != nil {
			log.Error().Err(err).Str("signal", s.name).Msg("failed to set line")
			return
		}
		log.Info().Str("signal", s.name).Int("gpio", s.offset).Msg("high")

		select {
		case <-ctx.Done():
			log.Info().Msg("shutting down")
			if err := io.WriteFrameLines(0, m.Outputs()); err != nil {
				log.Error().Err(err).Msg("failed to clear lines")
			}
			return
		case <-time.After(*period):
		}
	}
}
