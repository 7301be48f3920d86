// Package config loads gateway configuration from struct tag defaults, an
// optional YAML or JSON file and the environment, in that order of
// increasing precedence:
//
//	envDefault struct tags  (lowest)
//	YAML/JSON config file
//	environment variables   (highest)
//
// # Struct Tags
//
//   - `env:"VAR_NAME"` maps a field to an environment variable. On a nested
//     struct it becomes a prefix for the child fields.
//   - `envDefault:"value"` is applied while the field is still zero.
//   - `required:"true"` fails Load if the field is zero after all layers.
//
// File loading goes through yaml.v3 and encoding/json, so fields also need
// yaml or json tags. Fields tagged `yaml:"-" json:"-"` (signing keys,
// passwords) can only come from the environment.
//
// # Usage
//
//	type GatewayConfig struct {
//	    Addr  string           `env:"ADDR" envDefault:":5000" yaml:"addr"`
//	    Token auth.TokenConfig `yaml:"token"`
//	}
//
//	var cfg GatewayConfig
//	err := config.New().WithFile("authgate.yaml").Load(&cfg)
package config

import (
	"encoding"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	sserr "github.com/StricklySoft/stricklysoft-authgate/pkg/errors"
)

// time.Duration has kind Int64 but is parsed with time.ParseDuration.
var durationType = reflect.TypeOf(time.Duration(0))

var textUnmarshalerType = reflect.TypeOf((*encoding.TextUnmarshaler)(nil)).Elem()

// Loader resolves configuration layers into a struct. It is not safe for
// concurrent use.
type Loader struct {
	envPrefix string
	filePath  string
	lookupEnv func(string) (string, bool)
}

// New returns a Loader that reads only the process environment.
func New() *Loader {
	return &Loader{lookupEnv: os.LookupEnv}
}

// WithEnvPrefix prepends PREFIX_ to every environment variable name. The
// prefix is uppercased.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = strings.ToUpper(prefix)
	return l
}

// WithFile sets a .yaml, .yml or .json file to load between defaults and
// the environment. A missing file is skipped. Paths containing ".." are
// rejected at Load.
func (l *Loader) WithFile(path string) *Loader {
	l.filePath = path
	return l
}

// WithLookupEnv replaces os.LookupEnv, so tests can supply an environment
// without mutating the process.
func (l *Loader) WithLookupEnv(lookup func(string) (string, bool)) *Loader {
	if lookup != nil {
		l.lookupEnv = lookup
	}
	return l
}

// Load fills cfg, which must be a non-nil pointer to a struct, then
// enforces required tags and calls Validate if cfg implements [Validator].
//
// Loading failures carry [sserr.CodeInternalConfiguration]; a missing
// required field carries [sserr.CodeValidationRequired].
func (l *Loader) Load(cfg any) error {
	rv := reflect.ValueOf(cfg)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return sserr.New(sserr.CodeInternalConfiguration,
			"config: Load requires a non-nil pointer to a struct")
	}
	rv = rv.Elem()
	if rv.Kind() != reflect.Struct {
		return sserr.New(sserr.CodeInternalConfiguration,
			"config: Load requires a pointer to a struct")
	}

	if err := applyDefaults(rv); err != nil {
		return err
	}
	if l.filePath != "" {
		if err := l.loadFile(cfg); err != nil {
			return err
		}
	}
	lookup := l.lookupEnv
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if err := applyEnv(rv, l.envPrefix, lookup); err != nil {
		return err
	}
	return validate(cfg, rv)
}

// MustLoad loads a T or panics. Intended for tests and tooling; the gateway
// binary reports configuration errors itself.
func MustLoad[T any](loader *Loader) T {
	var cfg T
	if err := loader.Load(&cfg); err != nil {
		panic(fmt.Sprintf("config: MustLoad failed: %v", err))
	}
	return cfg
}

func (l *Loader) loadFile(cfg any) error {
	if strings.Contains(l.filePath, "..") {
		return sserr.New(sserr.CodeInternalConfiguration,
			"config: file path must not contain directory traversal (..) sequences")
	}

	data, err := os.ReadFile(l.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return sserr.Wrapf(err, sserr.CodeInternalConfiguration,
			"config: failed to read file %q", l.filePath)
	}

	switch ext := strings.ToLower(filepath.Ext(l.filePath)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return sserr.Wrapf(err, sserr.CodeInternalConfiguration,
				"config: failed to parse YAML file %q", l.filePath)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return sserr.Wrapf(err, sserr.CodeInternalConfiguration,
				"config: failed to parse JSON file %q", l.filePath)
		}
	default:
		return sserr.Newf(sserr.CodeInternalConfiguration,
			"config: unsupported file extension %q (use .yaml, .yml, or .json)", ext)
	}
	return nil
}

// isNested reports whether a field is a struct the loader should descend
// into rather than set as a single value.
func isNested(field reflect.Value) bool {
	if field.Kind() != reflect.Struct {
		return false
	}
	return !reflect.PointerTo(field.Type()).Implements(textUnmarshalerType)
}

func applyDefaults(rv reflect.Value) error {
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		field, sf := rv.Field(i), rt.Field(i)
		if !field.CanSet() {
			continue
		}
		if isNested(field) {
			if err := applyDefaults(field); err != nil {
				return err
			}
			continue
		}

		tag := sf.Tag.Get("envDefault")
		if tag == "" || !field.IsZero() {
			continue
		}
		if err := setField(field, tag); err != nil {
			return sserr.Wrapf(err, sserr.CodeInternalConfiguration,
				"config: failed to apply default for field %q", sf.Name)
		}
	}
	return nil
}

// applyEnv sets fields from the environment. A nested struct's env tag is
// joined to prefix with "_" for its children.
func applyEnv(rv reflect.Value, prefix string, lookup func(string) (string, bool)) error {
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		field, sf := rv.Field(i), rt.Field(i)
		if !field.CanSet() {
			continue
		}

		envTag := sf.Tag.Get("env")
		if isNested(field) {
			if err := applyEnv(field, joinEnv(prefix, envTag), lookup); err != nil {
				return err
			}
			continue
		}
		if envTag == "" {
			continue
		}

		envKey := joinEnv(prefix, envTag)
		val, ok := lookup(envKey)
		if !ok {
			continue
		}
		if err := setField(field, val); err != nil {
			return sserr.Wrapf(err, sserr.CodeInternalConfiguration,
				"config: failed to set field %q from env var %q", sf.Name, envKey)
		}
	}
	return nil
}

func joinEnv(prefix, name string) string {
	switch {
	case prefix == "":
		return name
	case name == "":
		return prefix
	default:
		return prefix + "_" + name
	}
}

// setField parses value into field. Supported: time.Duration, any
// encoding.TextUnmarshaler (slog.Level among them), string kinds, bool,
// signed integers and []string (comma separated).
func setField(field reflect.Value, value string) error {
	if field.Type() == durationType {
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("cannot parse duration %q: %w", value, err)
		}
		field.SetInt(int64(d))
		return nil
	}

	if field.CanAddr() {
		if u, ok := field.Addr().Interface().(encoding.TextUnmarshaler); ok {
			return u.UnmarshalText([]byte(value))
		}
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("cannot parse bool %q: %w", value, err)
		}
		field.SetBool(b)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(value, 10, field.Type().Bits())
		if err != nil {
			return fmt.Errorf("cannot parse integer %q: %w", value, err)
		}
		field.SetInt(n)

	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice element type %s", field.Type().Elem().Kind())
		}
		parts := strings.Split(value, ",")
		// MakeSlice keeps named slice types assignable.
		slice := reflect.MakeSlice(field.Type(), len(parts), len(parts))
		for i, p := range parts {
			slice.Index(i).SetString(strings.TrimSpace(p))
		}
		field.Set(slice)

	default:
		return fmt.Errorf("unsupported field type %s", field.Kind())
	}
	return nil
}
