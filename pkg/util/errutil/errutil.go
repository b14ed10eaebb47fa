package errutil

import (
	"runtime/debug"

	log "github.com/sirupsen/logrus"

	"github.com/slimtoolkit/hooksensor/pkg/version"
)

// FailOn logs the error information (terminates the application)
func FailOn(err error) {
	if err != nil {
		stackData := debug.Stack()
		log.WithError(err).WithFields(log.Fields{
			"version": version.Current(),
			"stack":   string(stackData),
		}).Fatal("hooksensor: failure")
	}
}

// WarnOn logs the error information as a warning
func WarnOn(err error) {
	if err != nil {
		stackData := debug.Stack()
		log.WithError(err).WithFields(log.Fields{
			"version": version.Current(),
			"stack":   string(stackData),
		}).Warn("hooksensor: warning")
	}
}
