package shell

// Plugin is a capability unit attached to a Builder. Plugins are initialized in registration order before the host
// runtime starts and shut down in reverse order once it returns.
type Plugin interface {
	Name() string
	Initialize(app *Application) error
	Shutdown(app *Application) error
}

// PluginFuncs can be used to write partial stateless plugins.
type PluginFuncs struct {
	PluginName     string
	InitializeFunc func(app *Application) error
	ShutdownFunc   func(app *Application) error
}

func (p PluginFuncs) Name() string {
	if p.PluginName == "" {
		return "anonymous"
	}
	return p.PluginName
}

func (p PluginFuncs) Initialize(app *Application) error {
	if p.InitializeFunc == nil {
		return nil
	}
	return p.InitializeFunc(app)
}

func (p PluginFuncs) Shutdown(app *Application) error {
	if p.ShutdownFunc == nil {
		return nil
	}
	return p.ShutdownFunc(app)
}

var _ Plugin = PluginFuncs{}
