package updater

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"strings"
	"sync"
	"time"

	shell "github.com/Babithkp/billsoft-frontend"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/mod/semver"
)

const Name = "updater"

const (
	DefaultInterval = 6 * time.Hour
	DefaultTimeout  = 30 * time.Second
)

var contextKey = shell.ContextKey(Name)

var ErrNoEndpoints = fmt.Errorf("no update endpoints configured")

// Config is the "updater" section of the run context.
type Config struct {
	Endpoints []string      `mapstructure:"endpoints" validate:"required,min=1,dive,http_url"`
	Pubkey    string        `mapstructure:"pubkey"`
	Interval  time.Duration `mapstructure:"interval" validate:"gte=0"`
	Timeout   time.Duration `mapstructure:"timeout" validate:"gte=0"`
}

// Builder configures an Updater. Values set on the builder win over the run context.
type Builder struct {
	endpoints []string
	pubkey    string
	interval  *time.Duration
	timeout   *time.Duration
	checker   Checker
	target    string
	arch      string
}

func NewBuilder() *Builder {
	return &Builder{
		target: runtime.GOOS,
		arch:   runtime.GOARCH,
	}
}

func (b *Builder) Endpoints(endpoints ...string) *Builder {
	b.endpoints = append([]string(nil), endpoints...)
	return b
}

func (b *Builder) Pubkey(pubkey string) *Builder {
	b.pubkey = pubkey
	return b
}

// Interval sets the delay between background checks. Zero checks once at start.
func (b *Builder) Interval(interval time.Duration) *Builder {
	b.interval = &interval
	return b
}

func (b *Builder) Timeout(timeout time.Duration) *Builder {
	b.timeout = &timeout
	return b
}

// Checker replaces the HTTP checker.
func (b *Builder) Checker(checker Checker) *Builder {
	b.checker = checker
	return b
}

func (b *Builder) Target(target, arch string) *Builder {
	b.target, b.arch = target, arch
	return b
}

// Build returns the plugin to register on a shell.Builder.
func (b *Builder) Build() shell.Plugin {
	return &Updater{
		endpoints: b.endpoints,
		pubkey:    b.pubkey,
		interval:  b.interval,
		timeout:   b.timeout,
		checker:   b.checker,
		target:    b.target,
		arch:      b.arch,
		logger:    zap.NewNop(),
	}
}

// Updater is the auto-update checker. Once initialized it is published on the application and can be fetched with
// From.
type Updater struct {
	endpoints []string
	pubkey    string
	interval  *time.Duration
	timeout   *time.Duration
	target    string
	arch      string

	config  Config
	checker Checker
	current string
	logger  *zap.Logger

	mu     sync.RWMutex
	latest *Release

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var _ shell.Plugin = &Updater{}

// From returns the updater published on app.
func From(app *shell.Application) (*Updater, bool) {
	u, ok := app.Value(contextKey).(*Updater)
	return u, ok
}

func (u *Updater) Name() string {
	return Name
}

func (u *Updater) Initialize(app *shell.Application) error {
	cfg := Config{Interval: DefaultInterval, Timeout: DefaultTimeout}
	if err := app.RunContext().DecodePluginConfig(Name, &cfg); err != nil {
		return err
	}

	if len(u.endpoints) > 0 {
		cfg.Endpoints = u.endpoints
	}
	if u.pubkey != "" {
		cfg.Pubkey = u.pubkey
	}
	if u.interval != nil {
		cfg.Interval = *u.interval
	}
	if u.timeout != nil {
		cfg.Timeout = *u.timeout
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return fmt.Errorf("invalid updater config: %w", err)
	}

	u.config = cfg
	u.current = app.RunContext().Version()
	u.logger = app.Logger().With(zap.String("plugin", Name))
	if u.checker == nil {
		u.checker = &HTTPChecker{Client: &http.Client{Timeout: cfg.Timeout}}
	}

	if err := app.WithValue(contextKey, u); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(app.Context())
	u.cancel = cancel

	u.wg.Add(1)
	go u.loop(ctx)

	u.logger.Info("update checker started",
		zap.Strings("endpoints", cfg.Endpoints),
		zap.Duration("interval", cfg.Interval),
		zap.String("current_version", u.current),
	)
	return nil
}

func (u *Updater) Shutdown(app *shell.Application) error {
	if u.cancel != nil {
		u.cancel()
	}
	u.wg.Wait()
	return nil
}

// Config returns the effective configuration.
func (u *Updater) Config() Config {
	cfg := u.config
	cfg.Endpoints = append([]string(nil), u.config.Endpoints...)
	return cfg
}

// Latest returns the newest release found so far, or nil.
func (u *Updater) Latest() *Release {
	u.mu.RLock()
	defer u.mu.RUnlock()

	if u.latest == nil {
		return nil
	}
	release := *u.latest
	return &release
}

// CheckNow queries the endpoints in order and returns the first newer release. A nil release means the application
// is up to date. Endpoints are tried until one answers.
func (u *Updater) CheckNow(ctx context.Context) (*Release, error) {
	var lastErr error

	for _, endpoint := range u.config.Endpoints {
		req := Request{
			Endpoint:       u.expand(endpoint),
			CurrentVersion: u.current,
			Target:         u.target,
			Arch:           u.arch,
		}

		release, err := u.checker.Check(ctx, req)
		if err != nil {
			u.logger.Debug("update endpoint failed", zap.String("endpoint", req.Endpoint), zap.Error(err))
			lastErr = err
			continue
		}

		if release == nil {
			return nil, nil
		}

		newer, err := isNewer(release.Version, u.current)
		if err != nil {
			return nil, err
		}
		if !newer {
			return nil, nil
		}

		u.mu.Lock()
		u.latest = release
		u.mu.Unlock()
		return release, nil
	}

	if lastErr == nil {
		return nil, ErrNoEndpoints
	}
	return nil, fmt.Errorf("all update endpoints failed: %w", lastErr)
}

func (u *Updater) loop(ctx context.Context) {
	defer u.wg.Done()

	u.check(ctx)
	if u.config.Interval <= 0 {
		return
	}

	ticker := time.NewTicker(u.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			u.check(ctx)
		}
	}
}

func (u *Updater) check(ctx context.Context) {
	release, err := u.CheckNow(ctx)
	switch {
	case ctx.Err() != nil:
	case err != nil:
		u.logger.Warn("update check failed", zap.Error(err))
	case release != nil:
		u.logger.Info("update available", zap.String("version", release.Version), zap.String("url", release.URL))
	default:
		u.logger.Debug("application is up to date", zap.String("version", u.current))
	}
}

func (u *Updater) expand(endpoint string) string {
	return strings.NewReplacer(
		"{{current_version}}", u.current,
		"{{target}}", u.target,
		"{{arch}}", u.arch,
	).Replace(endpoint)
}

func isNewer(candidate, current string) (bool, error) {
	c, r := canonical(candidate), canonical(current)
	if !semver.IsValid(c) {
		return false, fmt.Errorf("invalid release version %q", candidate)
	}
	if !semver.IsValid(r) {
		return false, fmt.Errorf("invalid current version %q", current)
	}
	return semver.Compare(c, r) > 0, nil
}

func canonical(version string) string {
	return "v" + strings.TrimPrefix(version, "v")
}
