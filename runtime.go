package shell

import (
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
)

// HostRuntime owns the process once the application is built. Run blocks until the application exits.
type HostRuntime interface {
	Run(app *Application) error
}

// RuntimeFunc adapts a function to a HostRuntime.
type RuntimeFunc func(app *Application) error

func (f RuntimeFunc) Run(app *Application) error {
	return f(app)
}

// SignalRuntime is a headless host that keeps the process alive until it receives one of Signals (SIGTERM and SIGINT
// by default) or the application asks to exit.
type SignalRuntime struct {
	Signals []os.Signal
}

func (r SignalRuntime) Run(app *Application) error {
	signals := r.Signals
	if len(signals) == 0 {
		signals = []os.Signal{syscall.SIGTERM, syscall.SIGINT}
	}

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, signals...)
	defer signal.Stop(ch)

	windows := app.RunContext().Windows()
	for _, window := range windows {
		app.Logger().Debug("window declared",
			zap.String("label", window.Label),
			zap.String("title", window.Title),
			zap.Int("width", window.Width),
			zap.Int("height", window.Height),
		)
	}
	app.Logger().Info("host runtime running", zap.Int("windows", len(windows)))

	select {
	case sig := <-ch:
		app.Logger().Info("received signal", zap.String("signal", sig.String()))
	case <-app.Context().Done():
		app.Logger().Info("application exit requested")
	}
	return nil
}

var (
	_ HostRuntime = RuntimeFunc(nil)
	_ HostRuntime = SignalRuntime{}
)
