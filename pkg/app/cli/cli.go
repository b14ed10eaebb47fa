package cli

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/slimtoolkit/hooksensor/pkg/app"
	"github.com/slimtoolkit/hooksensor/pkg/util/errutil"
	"github.com/slimtoolkit/hooksensor/pkg/version"
)

const (
	AppName  = "hooksensor"
	AppUsage = "watch a function inside a running process and report every call to a monitor"
)

// Global flags
const (
	FlagDebug     = "debug"
	FlagLogLevel  = "log-level"
	FlagLogFormat = "log-format"
	FlagLog       = "log"
	FlagNoColor   = "no-color"
)

// Command flags
const (
	FlagChannel        = "channel"
	FlagDelayMs        = "delay-ms"
	FlagDiscriminator  = "delay-user"
	FlagPollInterval   = "poll-interval"
	FlagCallTimeout    = "call-timeout"
	FlagReportInterval = "report-interval"
	FlagWorkers        = "workers"
	FlagDuration       = "duration"
)

const envPrefix = "HOOKSENSOR_"

func env(name string) []string {
	return []string{envPrefix + name}
}

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:    FlagDebug,
			Usage:   "enable debug logging",
			EnvVars: env("DEBUG"),
		},
		&cli.StringFlag{
			Name:    FlagLogLevel,
			Value:   "info",
			Usage:   "set the logging level ('trace', 'debug', 'info', 'warn', 'error', 'fatal', 'panic')",
			EnvVars: env("LOG_LEVEL"),
		},
		&cli.StringFlag{
			Name:    FlagLogFormat,
			Value:   "text",
			Usage:   "set the logging format ('text', or 'json')",
			EnvVars: env("LOG_FORMAT"),
		},
		&cli.StringFlag{
			Name:    FlagLog,
			Usage:   "log file to store logs",
			EnvVars: env("LOG"),
		},
		&cli.BoolFlag{
			Name:    FlagNoColor,
			Usage:   "disable color output",
			EnvVars: env("NO_COLOR"),
		},
	}
}

func channelFlag(value string) cli.Flag {
	return &cli.StringFlag{
		Name:    FlagChannel,
		Value:   value,
		Usage:   "IPC channel name ('tcp://host:port', a socket path, or a plain name)",
		EnvVars: env("CHANNEL"),
	}
}

func configureLogger(debug bool, levelName, format, path string) error {
	if debug {
		log.SetLevel(log.DebugLevel)
	} else {
		level, err := log.ParseLevel(levelName)
		if err != nil {
			return fmt.Errorf("unknown log-level %q", levelName)
		}
		log.SetLevel(level)
	}

	if path != "" {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		log.SetOutput(f)
	}

	switch format {
	case "text":
		log.SetFormatter(&log.TextFormatter{DisableColors: true})
	case "json":
		log.SetFormatter(new(log.JSONFormatter))
	default:
		return fmt.Errorf("unknown log-format %q", format)
	}

	return nil
}

// NewApp builds the command line application.
func NewApp() *cli.App {
	cliApp := cli.NewApp()
	cliApp.Version = version.Current()
	cliApp.Name = AppName
	cliApp.Usage = AppUsage
	cliApp.Flags = globalFlags()
	cliApp.CommandNotFound = func(ctx *cli.Context, command string) {
		fmt.Printf("unknown command - %v \n\n", command)
		cli.ShowAppHelp(ctx)
	}

	cliApp.Before = func(ctx *cli.Context) error {
		if ctx.Bool(FlagNoColor) {
			app.NoColor()
		}

		return configureLogger(
			ctx.Bool(FlagDebug),
			ctx.String(FlagLogLevel),
			ctx.String(FlagLogFormat),
			ctx.String(FlagLog))
	}

	cliApp.Commands = []*cli.Command{
		masterCommand(),
		demoCommand(),
	}

	return cliApp
}

// Run starts the CLI app
func Run() {
	errutil.FailOn(NewApp().Run(os.Args))
}
