package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/slimtoolkit/hooksensor/pkg/app"
	"github.com/slimtoolkit/hooksensor/pkg/app/master"
	"github.com/slimtoolkit/hooksensor/pkg/app/sensor"
	serr "github.com/slimtoolkit/hooksensor/pkg/errors"
	"github.com/slimtoolkit/hooksensor/pkg/hook/inproc"
	"github.com/slimtoolkit/hooksensor/pkg/target/xinput"
	"github.com/slimtoolkit/hooksensor/pkg/util/errutil"
)

const (
	demoCmdName  = "demo"
	demoCmdUsage = "run a master, a gamepad-polling host and the sensor in one process"
)

type demoOptions struct {
	Channel       string
	Workers       int
	Delay         time.Duration
	Discriminator int
	PollInterval  time.Duration
	CallTimeout   time.Duration
	Duration      time.Duration
	Quiet         bool
}

type demoResult struct {
	HostCalls   uint64
	SensorCalls uint64
	SensorErr   error
	Master      master.Stats
}

func demoCommand() *cli.Command {
	return &cli.Command{
		Name:  demoCmdName,
		Usage: demoCmdUsage,
		Flags: []cli.Flag{
			channelFlag(filepath.Join(os.TempDir(), fmt.Sprintf("hooksensor-demo-%d.sock", os.Getpid()))),
			&cli.IntFlag{
				Name:    FlagWorkers,
				Value:   4,
				Usage:   "number of host goroutines polling the gamepad state",
				EnvVars: env("WORKERS"),
			},
			&cli.IntFlag{
				Name:    FlagDelayMs,
				Value:   0,
				Usage:   "injected delay in milliseconds for calls matching the delay user",
				EnvVars: env("DELAY_MS"),
			},
			&cli.IntFlag{
				Name:    FlagDiscriminator,
				Value:   sensor.DefaultDelayDiscriminator,
				Usage:   "gamepad user index that gets the injected delay",
				EnvVars: env("DELAY_USER"),
			},
			&cli.DurationFlag{
				Name:    FlagPollInterval,
				Value:   sensor.DefaultPollInterval,
				Usage:   "sensor reporting period",
				EnvVars: env("POLL_INTERVAL"),
			},
			&cli.DurationFlag{
				Name:    FlagCallTimeout,
				Value:   sensor.DefaultCallTimeout,
				Usage:   "timeout for each call to the master",
				EnvVars: env("CALL_TIMEOUT"),
			},
			&cli.DurationFlag{
				Name:    FlagDuration,
				Value:   3 * time.Second,
				Usage:   "how long the master stays up before it goes away",
				EnvVars: env("DURATION"),
			},
		},
		Action: func(ctx *cli.Context) error {
			xc := app.NewExecutionContext(demoCmdName)

			sigCtx, cancel := signalContext(ctx.Context)
			defer cancel()

			opts := demoOptions{
				Channel:       ctx.String(FlagChannel),
				Workers:       ctx.Int(FlagWorkers),
				Delay:         time.Duration(ctx.Int(FlagDelayMs)) * time.Millisecond,
				Discriminator: ctx.Int(FlagDiscriminator),
				PollInterval:  ctx.Duration(FlagPollInterval),
				CallTimeout:   ctx.Duration(FlagCallTimeout),
				Duration:      ctx.Duration(FlagDuration),
			}

			res, err := runDemo(sigCtx, xc, opts)
			if err != nil {
				xc.Out.Error("demo", err.Error())
				xc.FailOn(err)
			}

			if !errors.Is(res.SensorErr, serr.ErrConnection) {
				errutil.WarnOn(res.SensorErr)
			}

			xc.Out.Info("stats", app.OutVars{
				"host.calls":   res.HostCalls,
				"sensor.calls": res.SensorCalls,
				"master":       res.Master.Summary(),
			})
			xc.Out.State("stopped", app.OutVars{"sensor.exit": res.SensorErr})
			return nil
		},
	}
}

// runDemo wires a master, a host polling XInputGetState and a sensor
// hooking it. The master is stopped after opts.Duration (or when ctx is
// done), which makes the sensor unhook and return.
func runDemo(ctx context.Context, xc *app.ExecutionContext, opts demoOptions) (*demoResult, error) {
	if opts.Workers <= 0 {
		return nil, fmt.Errorf("workers must be positive (%d)", opts.Workers)
	}

	var sinkOpts []master.HandlerOption
	if !opts.Quiet {
		sinkOpts = append(sinkOpts, master.WithSink(eventPrinter(xc)))
	}

	m, err := master.Start(opts.Channel, sinkOpts...)
	if err != nil {
		return nil, err
	}
	xc.AddCleanupHandler(m.Stop)
	defer xc.Cleanup()

	provider := inproc.NewProvider()
	devices := xinput.NewDevices()
	module, err := xinput.Register(provider, devices)
	if err != nil {
		return nil, err
	}

	client, err := xinput.NewClient(module)
	if err != nil {
		return nil, err
	}

	for user := 0; user < 2; user++ {
		if err := devices.Connect(user); err != nil {
			return nil, err
		}
	}

	cfg := sensor.NewConfig(opts.Channel,
		sensor.WithInjectedDelay(opts.Delay),
		sensor.WithDelayDiscriminator(opts.Discriminator))
	if opts.PollInterval > 0 {
		cfg.PollInterval = opts.PollInterval
	}
	if opts.CallTimeout > 0 {
		cfg.CallTimeout = opts.CallTimeout
	}

	sen := sensor.New(&sensor.ExecutionContext{Provider: provider}, cfg)
	if err := sen.Start(); err != nil {
		return nil, err
	}

	res := &demoResult{}
	hostDone := make(chan struct{})
	var hostCalls atomic.Uint64

	g, gctx := errgroup.WithContext(ctx)

	for w := 0; w < opts.Workers; w++ {
		user := w % xinput.MaxUsers
		g.Go(func() error {
			var state xinput.State
			for {
				select {
				case <-hostDone:
					return nil
				case <-gctx.Done():
					return nil
				default:
				}

				if client.GetState(user, &state) == xinput.ErrorSuccess {
					pad := state.Gamepad
					pad.Buttons ^= xinput.GamepadA
					_ = devices.Update(user, pad)
				}
				hostCalls.Add(1)
				time.Sleep(time.Millisecond)
			}
		})
	}

	g.Go(func() error {
		defer close(hostDone)

		err := sen.Run()
		res.SensorErr = err
		res.SensorCalls = sen.Stats().Calls
		if err != nil && !errors.Is(err, serr.ErrConnection) {
			return err
		}

		return nil
	})

	g.Go(func() error {
		select {
		case <-time.After(opts.Duration):
		case <-gctx.Done():
		case <-hostDone:
		}

		xc.Out.State("master.stopping")
		m.Stop()
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	res.HostCalls = hostCalls.Load()
	res.Master = m.Handler.Stats()
	return res, nil
}
