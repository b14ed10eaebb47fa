package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/slimtoolkit/hooksensor/pkg/app"
	"github.com/slimtoolkit/hooksensor/pkg/app/master"
)

const (
	masterCmdName  = "master"
	masterCmdUsage = "serve the monitor side of a channel and print what sensors report"
	defaultChannel = "hooksensor"
)

func masterCommand() *cli.Command {
	return &cli.Command{
		Name:  masterCmdName,
		Usage: masterCmdUsage,
		Flags: []cli.Flag{
			channelFlag(defaultChannel),
			&cli.DurationFlag{
				Name:    FlagReportInterval,
				Value:   5 * time.Second,
				Usage:   "how often to print the stats summary (0 disables it)",
				EnvVars: env("REPORT_INTERVAL"),
			},
		},
		Action: func(ctx *cli.Context) error {
			xc := app.NewExecutionContext(masterCmdName)

			sigCtx, cancel := signalContext(ctx.Context)
			defer cancel()

			m, err := master.Start(ctx.String(FlagChannel), master.WithSink(eventPrinter(xc)))
			if err != nil {
				xc.Out.Error("master.start", err.Error())
				return err
			}
			xc.AddCleanupHandler(m.Stop)
			defer xc.Cleanup()

			xc.Out.State("started", app.OutVars{"channel": ctx.String(FlagChannel), "addr": m.Addr()})
			reportLoop(sigCtx, xc, m.Handler, ctx.Duration(FlagReportInterval))

			st := m.Handler.Stats()
			xc.Out.Info("stats", app.OutVars{"summary": st.Summary()})
			xc.Out.State("stopped")
			return nil
		},
	}
}

func eventPrinter(xc *app.ExecutionContext) func(master.Event) {
	return func(ev master.Event) {
		switch ev.Kind {
		case master.EventInstalled:
			xc.Out.Info("sensor.installed", app.OutVars{"pid": ev.PID, "session": ev.Session})
		case master.EventMessage:
			xc.Out.Message(ev.Text)
		case master.EventBatch:
			for _, text := range ev.Messages {
				fmt.Fprintln(xc.Out.Writer(), text)
			}
		}
	}
}

func reportLoop(ctx context.Context, xc *app.ExecutionContext, h *master.Handler, every time.Duration) {
	if every <= 0 {
		<-ctx.Done()
		return
	}

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st := h.Stats()
			xc.Out.Info("stats", app.OutVars{"summary": st.Summary()})
			for _, ts := range st.TopThreads(3) {
				xc.Out.Info("stats.thread", app.OutVars{"thread": ts.String()})
			}
		}
	}
}
