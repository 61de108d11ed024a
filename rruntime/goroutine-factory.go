package rruntime

import (
	"fmt"
	"runtime"

	"github.com/rudderlabs/rudder-go-kit/logger"
	obskit "github.com/rudderlabs/rudder-observability-kit/go/labels"
)

var pkgLogger = logger.NewLogger().Child("rruntime")

// GoRoutineFactory is handed to stats so that its background collection runs
// through Go.
var GoRoutineFactory goRoutineFactory

type goRoutineFactory struct{}

func (goRoutineFactory) Go(function func()) {
	Go(function)
}

// Go runs function in a new goroutine. A panic is logged and then raised again.
func Go(function func()) {
	GoHandleError(function, panicOnError)
}

// GoHandleError runs function in a new goroutine and passes a recovered panic,
// after logging it, to errorHandler.
func GoHandleError(function func(), errorHandler func(err error)) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				err := fmt.Errorf("%v", r)
				pkgLogger.Errorn("Goroutine panicked",
					logger.NewIntField("goroutines", int64(runtime.NumGoroutine())),
					obskit.Error(err),
				)
				errorHandler(err)
			}
		}()
		function()
	}()
}

func panicOnError(err error) {
	panic(err)
}
