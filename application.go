package shell

import (
	"context"
	"os"
	"sync"
	"sync/atomic"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type State = int32

const (
	StateInvalid State = iota
	StateBuilding
	StateRunning
	StateShutdown
	StateTerminated
	StateFailed
)

// Hook is used to observe state transitions and the semi-fatal errors encountered during them.
type Hook func(phase string, err error)

// Builder accumulates plugins before the application is finalized. It is consumed exactly once by Build, Start or
// Run and is not safe for concurrent use: registration order is significant and registration happens on the entry
// goroutine.
type Builder struct {
	consumed bool

	plugins []Plugin
	runtime HostRuntime
	logger  *zap.Logger
	hook    Hook
	exit    func(err error)
}

// Default returns a Builder without plugins that hands off to a SignalRuntime and terminates the process when the
// runtime returns.
func Default() *Builder {
	return &Builder{
		runtime: SignalRuntime{},
		logger:  zap.NewNop(),
		hook:    func(phase string, err error) {},
		exit:    exitProcess,
	}
}

// Plugin appends a plugin to the registration sequence. Plugins are not deduplicated.
func (b *Builder) Plugin(plugin Plugin) *Builder {
	if plugin == nil {
		panic("shell: nil plugin")
	}
	if b.consumed {
		panic(ErrBuilderConsumed)
	}
	b.plugins = append(b.plugins, plugin)
	return b
}

// Plugins returns a copy of the registered plugins in registration order.
func (b *Builder) Plugins() []Plugin {
	return append([]Plugin(nil), b.plugins...)
}

func (b *Builder) WithRuntime(runtime HostRuntime) *Builder {
	b.runtime = runtime
	return b
}

func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	b.logger = logger
	return b
}

func (b *Builder) WithHook(hook Hook) *Builder {
	if hook == nil {
		hook = func(phase string, err error) {}
	}
	b.hook = hook
	return b
}

// WithExit replaces the function Run terminates the process with.
func (b *Builder) WithExit(exit func(err error)) *Builder {
	b.exit = exit
	return b
}

// Build consumes the builder, finalizes the application and initializes every plugin in registration order. If a
// plugin fails, the plugins initialized before it are shut down in reverse order and a FatalStartupError is returned.
func (b *Builder) Build(rc *RunContext) (*Application, error) {
	if b.consumed {
		return nil, fatal(PhaseBuild, "", ErrBuilderConsumed)
	}
	b.consumed = true

	if rc == nil {
		return nil, fatal(PhaseContext, "", ErrMissingContext)
	}
	if b.runtime == nil {
		return nil, fatal(PhaseBuild, "", ErrMissingRuntime)
	}

	app := newApplication(b, rc)
	b.plugins = nil

	for i, plugin := range app.plugins {
		app.logger.Debug("initializing plugin", zap.String("plugin", plugin.Name()), zap.Int("position", i))

		if err := plugin.Initialize(app); err != nil {
			app.hook(PhaseInitialization, err)
			app.logger.Error("plugin initialization failed", zap.String("plugin", plugin.Name()), zap.Error(err))

			app.shutdown(app.plugins[:i])
			atomic.StoreInt32(&app.state, StateFailed)

			startupErr := fatal(PhaseInitialization, plugin.Name(), err)
			app.hook(PhaseTerminated, startupErr)
			return nil, startupErr
		}
	}

	return app, nil
}

// Start builds the application and blocks in the host runtime until it returns. A nil error means the application
// exited normally.
func (b *Builder) Start(rc *RunContext) error {
	app, err := b.Build(rc)
	if err != nil {
		return err
	}
	return app.Run()
}

// Run is the process handoff: it starts the application and terminates through the exit function with the
// outcome. It does not return to the caller when the default exit is used.
func (b *Builder) Run(rc *RunContext) {
	b.handoff(func() error {
		return b.Start(rc)
	})
}

func (b *Builder) handoff(start func() error) {
	logger, exit := b.logger, b.exit

	err := start()
	if err != nil {
		logger.Error("fatal startup error", zap.Error(err))
	}
	_ = logger.Sync()

	exit(err)
}

// StartConfig parses a run context from data and starts the application with it. A malformed context is a
// FatalStartupError in the context phase.
func (b *Builder) StartConfig(data []byte, format string) error {
	if b.consumed {
		return fatal(PhaseBuild, "", ErrBuilderConsumed)
	}

	rc, err := ParseContext(data, format)
	if err != nil {
		b.consumed = true
		return fatal(PhaseContext, "", err)
	}
	return b.Start(rc)
}

// RunConfig is Run for a run context that still has to be parsed.
func (b *Builder) RunConfig(data []byte, format string) {
	b.handoff(func() error {
		return b.StartConfig(data, format)
	})
}

func exitProcess(err error) {
	if err != nil {
		_, _ = color.New(color.FgRed, color.Bold).Fprintf(os.Stderr, "FATAL: %v\n", err)
		os.Exit(1)
	}
	os.Exit(0)
}

// Application is the finalized shell. Its plugin set is fixed once built.
type Application struct {
	id    string
	state int32
	mu    sync.RWMutex

	context context.Context
	cancel  context.CancelFunc

	runContext *RunContext
	runtime    HostRuntime
	logger     *zap.Logger
	hook       Hook
	plugins    []Plugin
}

func newApplication(b *Builder, rc *RunContext) *Application {
	id := uuid.NewString()

	app := &Application{
		id:         id,
		runContext: rc,
		runtime:    b.runtime,
		hook:       b.hook,
		plugins:    append([]Plugin(nil), b.plugins...),
		logger: b.logger.With(
			zap.String("session", id),
			zap.String("identifier", rc.Identifier()),
		),
	}
	app.context, app.cancel = context.WithCancel(context.Background())
	atomic.StoreInt32(&app.state, StateBuilding)

	return app
}

func (app *Application) ID() string {
	return app.id
}

func (app *Application) State() State {
	return atomic.LoadInt32(&app.state)
}

func (app *Application) RunContext() *RunContext {
	return app.runContext
}

func (app *Application) Logger() *zap.Logger {
	return app.logger
}

// Plugins returns the plugins in initialization order.
func (app *Application) Plugins() []Plugin {
	return append([]Plugin(nil), app.plugins...)
}

// ContextKey is used by plugins to publish handles on the Application.
type ContextKey string

func (c ContextKey) String() string {
	return "shell." + string(c)
}

func (app *Application) Context() context.Context {
	app.mu.RLock()
	defer app.mu.RUnlock()
	return app.context
}

// WithValue publishes a value to the application context. Values can only be added while plugins initialize.
func (app *Application) WithValue(key, value interface{}) error {
	if app.State() != StateBuilding {
		return ErrNotBuilding
	}

	app.mu.Lock()
	defer app.mu.Unlock()
	app.context = context.WithValue(app.context, key, value)
	return nil
}

func (app *Application) Value(key interface{}) interface{} {
	return app.Context().Value(key)
}

// Exit asks the host runtime to stop. The application context is canceled and Run returns once the runtime does.
func (app *Application) Exit() {
	app.cancel()
}

// Run hands control to the host runtime. It can be called once; when the runtime returns, all plugins are shut down
// in reverse order.
func (app *Application) Run() error {
	if !atomic.CompareAndSwapInt32(&app.state, StateBuilding, StateRunning) {
		return fatal(PhaseRunning, "", ErrRunTwice)
	}

	app.logger.Info("starting host runtime",
		zap.String("product", app.runContext.ProductName()),
		zap.String("version", app.runContext.Version()),
		zap.Int("plugins", len(app.plugins)),
	)

	err := app.runtime.Run(app)
	if err != nil {
		app.hook(PhaseRunning, err)
		err = fatal(PhaseRunning, "", err)
	}

	atomic.StoreInt32(&app.state, StateShutdown)
	app.shutdown(app.plugins)
	atomic.StoreInt32(&app.state, StateTerminated)

	app.hook(PhaseTerminated, err)
	return err
}

func (app *Application) shutdown(plugins []Plugin) {
	app.cancel()

	for i := len(plugins); i > 0; i-- {
		plugin := plugins[i-1]
		if err := plugin.Shutdown(app); err != nil {
			app.hook(PhaseShutdown, err)
			app.logger.Warn("plugin shutdown failed", zap.String("plugin", plugin.Name()), zap.Error(err))
		}
	}
}
