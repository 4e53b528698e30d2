// Command sensorhub runs the sensor hub on a board's buses, or on simulated
// buses with --fake, and logs sensor events as they arrive.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"sensorhub-go/bus"
	"sensorhub-go/services/config"
	"sensorhub-go/services/heartbeat"
	"sensorhub-go/services/hub"
	"sensorhub-go/services/hub/platform"
	"sensorhub-go/services/hub/platform/setups"
	"sensorhub-go/types"
)

const (
	flagBoard  = "board"
	flagFake   = "fake"
	flagDebug  = "debug"
	flagFor    = "for"
	flagPS2    = "ps2"
	flagMax    = "max"
	flagIRQGap = "irq-every"
)

func main() {
	var logger *zap.Logger

	app := &cli.App{
		Name:  "sensorhub",
		Usage: "run the sensor hub",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  flagBoard,
				Value: setups.SI917DevKit,
				Usage: "embedded board configuration `NAME`",
			},
			&cli.BoolFlag{
				Name:  flagFake,
				Usage: "serve the board from simulated buses",
			},
			&cli.BoolFlag{
				Name:  flagDebug,
				Usage: "enable debug logging",
			},
		},
		Before: func(c *cli.Context) error {
			cfg := zap.NewDevelopmentConfig()
			if !c.Bool(flagDebug) {
				cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
			}
			var err error
			logger, err = cfg.Build()
			return err
		},
		After: func(*cli.Context) error {
			if logger != nil {
				_ = logger.Sync()
			}
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "create and start every configured sensor",
				Flags: []cli.Flag{
					&cli.DurationFlag{
						Name:  flagFor,
						Usage: "stop after `DURATION`; 0 runs until interrupted",
					},
					&cli.BoolFlag{
						Name:  flagPS2,
						Usage: "enter PS2 once sensors are started",
					},
					&cli.DurationFlag{
						Name:  flagIRQGap,
						Value: 3 * time.Second,
						Usage: "with --fake, pulse every interrupt line each `DURATION`",
					},
				},
				Action: func(c *cli.Context) error { return run(c, logger) },
			},
			{
				Name:  "detect",
				Usage: "scan the I²C buses for responding devices",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  flagMax,
						Value: 16,
						Usage: "report at most `N` devices",
					},
				},
				Action: func(c *cli.Context) error { return detect(c, logger) },
			},
			{
				Name:  "boards",
				Usage: "list the embedded board configurations",
				Action: func(c *cli.Context) error {
					boards := config.Boards()
					sort.Strings(boards)
					for _, b := range boards {
						logger.Info("board", zap.String("name", b))
					}
					return nil
				},
			},
		},
	}
	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// provider opens the configured board description and the buses to serve it.
func provider(c *cli.Context, logger *zap.Logger) (*types.HubConfig, hub.Provider, *platform.Fake, error) {
	cfg, err := config.Load(c.String(flagBoard))
	if err != nil {
		return nil, nil, nil, err
	}
	if !c.Bool(flagFake) {
		return cfg, platform.NewPeriph(logger.Named("periph")), nil, nil
	}
	if cfg.Board != setups.SI917DevKit {
		return nil, nil, nil, errors.Errorf("no simulated parts for board %q", cfg.Board)
	}
	f := platform.NewFake()
	setups.SeedSI917DevKit(f)
	return cfg, f, f, nil
}

func run(c *cli.Context, logger *zap.Logger) error {
	cfg, prov, fake, err := provider(c, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := prov.Close(); err != nil {
			logger.Warn("closing buses", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt)
	defer stop()
	if d := c.Duration(flagFor); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	b := bus.NewBus(16)
	mon := b.NewConnection("ui").Subscribe(bus.T("hub", "#"))
	go func() {
		for m := range mon.Channel() {
			logger.Debug("bus", zap.Stringer("topic", m.Topic), zap.Any("payload", m.Payload))
		}
	}()
	config.NewConfigService(logger).Start(context.WithValue(ctx, config.CtxBoardKey, cfg.Board), b.NewConnection("config"))

	h := hub.New(hub.Options{
		Config: cfg,
		Buses:  prov,
		Logger: logger,
		Conn:   b.NewConnection("hub"),
	})
	events := logger.Named("events")
	if err := h.NotifyRegister(func(id types.SensorID, kind types.EventKind, data any) {
		fields := []zap.Field{zap.Uint8("sensor", uint8(id)), zap.Stringer("kind", kind)}
		if g, ok := data.(*types.DataGroup); ok {
			if s, ok := g.Latest(); ok {
				fields = append(fields, zap.Int("samples", g.Count), zap.Float64("latest", s.Magnitude()))
			}
		}
		events.Info("event", fields...)
	}, &types.Ack{}); err != nil {
		return err
	}
	if err := h.Start(ctx); err != nil {
		return err
	}
	if err := h.Init(ctx); err != nil {
		return err
	}
	for _, s := range cfg.Sensors {
		if err := h.CreateSensor(s.ID); err != nil {
			logger.Warn("create", zap.String("sensor", s.Name), zap.Error(err))
			continue
		}
		if err := h.StartSensor(s.ID); err != nil {
			logger.Warn("start", zap.String("sensor", s.Name), zap.Error(err))
		}
	}
	if c.Bool(flagPS2) {
		if err := h.RequestPower(hub.ToPS2); err != nil {
			logger.Warn("power", zap.Error(err))
		}
	}
	hb := &heartbeat.Service{Stats: h.Stats, Interval: cfg.Heartbeat, Logger: logger}
	if err := hb.Start(ctx, b.NewConnection("heartbeat")); err != nil {
		return err
	}
	if fake != nil {
		go pulse(ctx, fake, cfg, c.Duration(flagIRQGap))
	}

	<-ctx.Done()
	for _, s := range cfg.Sensors {
		if st, err := h.Status(s.ID); err == nil && st == types.StatusStarted {
			_ = h.StopSensor(s.ID)
		}
		_ = h.DeleteSensor(s.ID)
	}
	logger.Info("stopped", zap.Any("stats", h.Stats()))
	if err := h.Wait(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}

// pulse fires the interrupt line of every interrupt-mode sensor periodically.
func pulse(ctx context.Context, f *platform.Fake, cfg *types.HubConfig, every time.Duration) {
	if every <= 0 {
		return
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			for _, s := range cfg.Sensors {
				if s.Mode == types.ModeInterrupt {
					f.Pin(s.IntPin).Fire()
				}
			}
		}
	}
}

func detect(c *cli.Context, logger *zap.Logger) error {
	cfg, prov, _, err := provider(c, logger)
	if err != nil {
		return err
	}
	defer prov.Close()

	h := hub.New(hub.Options{Config: cfg, Buses: prov, Logger: logger})
	if err := h.Init(c.Context); err != nil {
		return err
	}
	found, err := h.DetectSensors(c.Int(flagMax))
	if err != nil {
		return err
	}
	for _, d := range found {
		f := []zap.Field{zap.String("bus", d.Bus), zap.String("address", fmt.Sprintf("%#02x", d.Address))}
		if d.Known {
			f = append(f, zap.Uint8("sensor", uint8(d.Sensor)))
		}
		logger.Info("found", f...)
	}
	return nil
}

