package sensor

import (
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/slimtoolkit/hooksensor/pkg/system"
	"github.com/slimtoolkit/hooksensor/pkg/version"
)

// Run is the loader entry point. It connects to the master on channelName,
// hooks the target and reports until the master is lost. delayMs is the
// injected per-call delay (0 disables it).
func Run(xc *ExecutionContext, channelName string, delayMs int) error {
	cfg := NewConfig(channelName, WithInjectedDelay(time.Duration(delayMs)*time.Millisecond))
	return RunWithConfig(xc, cfg)
}

// RunWithConfig is Run with a full configuration.
func RunWithConfig(xc *ExecutionContext, cfg Config) error {
	log.Infof("sensor: ver=%v", version.Current())
	log.Debugf("sensor: config => %+v", cfg)
	log.Tracef("sensor: sysinfo => %#v", system.GetSystemInfo())

	sen := New(xc, cfg)
	if err := sen.Start(); err != nil {
		log.WithError(err).Error("sensor: startup failed, nothing installed")
		return err
	}

	if err := sen.Run(); err != nil {
		log.WithError(err).Info("sensor: run finished")
		return err
	}

	log.Info("sensor: run finished successfully")
	return nil
}
