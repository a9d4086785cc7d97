package shell

import (
	"bytes"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/copystructure"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// WindowConfig declares a window the host runtime opens at start.
type WindowConfig struct {
	Label      string `mapstructure:"label" validate:"required"`
	Title      string `mapstructure:"title"`
	URL        string `mapstructure:"url"`
	Width      int    `mapstructure:"width" validate:"gte=0"`
	Height     int    `mapstructure:"height" validate:"gte=0"`
	Resizable  bool   `mapstructure:"resizable"`
	Fullscreen bool   `mapstructure:"fullscreen"`
}

type contextConfig struct {
	ProductName string `mapstructure:"productName" validate:"required"`
	Version     string `mapstructure:"version" validate:"required,semver"`
	Identifier  string `mapstructure:"identifier" validate:"required,hostname_rfc1123"`

	App struct {
		Windows []WindowConfig `mapstructure:"windows" validate:"unique=Label,dive"`
	} `mapstructure:"app"`

	Plugins map[string]map[string]interface{} `mapstructure:"plugins"`
}

// RunContext is the configuration bundle produced at build time and consumed once when the application starts. It is
// read-only: accessors return copies.
type RunContext struct {
	config contextConfig
}

// ParseContext decodes and validates a run context. format is any config type understood by viper ("json", "yaml",
// "toml").
func ParseContext(data []byte, format string) (*RunContext, error) {
	v := viper.New()
	v.SetConfigType(format)

	if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("failed to read run context: %w", err)
	}

	var cfg contextConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode run context: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid run context: %w", err)
	}

	return &RunContext{config: cfg}, nil
}

// MustContext is like ParseContext but panics on error. It is meant for contexts embedded in the binary, where a
// malformed bundle is a build defect.
func MustContext(data []byte, format string) *RunContext {
	rc, err := ParseContext(data, format)
	if err != nil {
		panic(err)
	}
	return rc
}

func (rc *RunContext) ProductName() string {
	return rc.config.ProductName
}

func (rc *RunContext) Version() string {
	return rc.config.Version
}

func (rc *RunContext) Identifier() string {
	return rc.config.Identifier
}

func (rc *RunContext) Windows() []WindowConfig {
	return append([]WindowConfig(nil), rc.config.App.Windows...)
}

func (rc *RunContext) Window(label string) (WindowConfig, bool) {
	for _, window := range rc.config.App.Windows {
		if window.Label == label {
			return window, true
		}
	}
	return WindowConfig{}, false
}

// PluginConfig returns a deep copy of the raw configuration declared for the named plugin, or nil.
func (rc *RunContext) PluginConfig(name string) map[string]interface{} {
	raw, ok := rc.config.Plugins[strings.ToLower(name)]
	if !ok {
		return nil
	}
	return copystructure.Must(copystructure.Copy(raw)).(map[string]interface{})
}

// DecodePluginConfig decodes the configuration declared for the named plugin into out. Durations must be written as
// strings ("30s", "6h"). A plugin without configuration leaves out untouched.
func (rc *RunContext) DecodePluginConfig(name string, out interface{}) error {
	raw := rc.PluginConfig(name)
	if raw == nil {
		return nil
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			numericDurationHook(),
			mapstructure.StringToTimeDurationHookFunc(),
		),
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}

	if err := decoder.Decode(raw); err != nil {
		return fmt.Errorf("invalid %s plugin config: %w", name, err)
	}
	return nil
}

// numericDurationHook rejects bare numbers for durations: 3600 would otherwise decode as nanoseconds.
func numericDurationHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch from.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
			reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
			reflect.Float32, reflect.Float64:
			return nil, fmt.Errorf("duration %v must be a string with a unit, such as \"30s\"", data)
		default:
			return data, nil
		}
	}
}
