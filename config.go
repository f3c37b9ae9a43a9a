package apogee

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/golobby/cast"
	"gopkg.in/yaml.v3"
)

// ConfigProvider supplies configuration to the application and its
// subsystems.
type ConfigProvider interface {
	// GetConfig returns the configuration object, typically a pointer to a
	// struct that subsystem config sections are read from.
	GetConfig() any
}

// StdConfigProvider wraps a plain config struct as a ConfigProvider.
type StdConfigProvider struct {
	cfg any
}

// NewStdConfigProvider creates a provider around an existing config value.
func NewStdConfigProvider(cfg any) *StdConfigProvider {
	return &StdConfigProvider{cfg: cfg}
}

func (p *StdConfigProvider) GetConfig() any {
	return p.cfg
}

// LoadConfigFile decodes the file at path into target, selecting the decoder
// from the file extension. Supported formats are YAML (.yaml, .yml) and TOML
// (.toml).
func LoadConfigFile(path string, target any) error {
	if target == nil {
		return ErrConfigNil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, target); err != nil {
			return fmt.Errorf("parsing YAML config %s: %w", path, err)
		}
	case ".toml":
		if err := toml.Unmarshal(data, target); err != nil {
			return fmt.Errorf("parsing TOML config %s: %w", path, err)
		}
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedConfigFormat, filepath.Ext(path))
	}
	return nil
}

// ApplyEnvOverrides walks target, which must be a pointer to a struct, and
// overrides fields from environment variables. The variable name is the
// prefix joined with the uppercased yaml tag (or field name) by underscores;
// nested structs extend the prefix. Values are converted to the field's type
// with golobby/cast, except time.Duration fields which accept forms like
// "30s" and "5m".
func ApplyEnvOverrides(prefix string, target any) error {
	if target == nil {
		return ErrConfigNil
	}
	v := reflect.ValueOf(target)
	if v.Kind() != reflect.Ptr || v.Elem().Kind() != reflect.Struct {
		return ErrConfigNotStructPointer
	}
	return applyEnvToStruct(prefix, v.Elem())
}

func applyEnvToStruct(prefix string, v reflect.Value) error {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		fieldValue := v.Field(i)

		// An embedded struct marked inline (or untagged) flattens into its
		// parent in YAML, so its fields keep the parent's prefix.
		if inlineStruct(field, fieldValue) {
			if err := applyEnvToStruct(prefix, fieldValue); err != nil {
				return err
			}
			continue
		}

		envName := prefix + "_" + envNameFor(field)

		if fieldValue.Kind() == reflect.Struct && field.Type != reflect.TypeOf(time.Time{}) {
			if err := applyEnvToStruct(envName, fieldValue); err != nil {
				return err
			}
			continue
		}

		raw, ok := os.LookupEnv(envName)
		if !ok {
			continue
		}

		if field.Type == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(raw)
			if err != nil {
				return fmt.Errorf("env %s: %w", envName, err)
			}
			fieldValue.Set(reflect.ValueOf(d))
			continue
		}

		converted, err := cast.FromType(raw, field.Type)
		if err != nil {
			return fmt.Errorf("env %s: %w", envName, err)
		}
		fieldValue.Set(reflect.ValueOf(converted).Convert(field.Type))
	}
	return nil
}

// inlineStruct reports whether field is an anonymous struct whose yaml tag
// carries no name of its own, matching yaml.v3's inline flattening.
func inlineStruct(field reflect.StructField, value reflect.Value) bool {
	if !field.Anonymous || value.Kind() != reflect.Struct {
		return false
	}
	tag := field.Tag.Get("yaml")
	if idx := strings.Index(tag, ","); idx >= 0 {
		tag = tag[:idx]
	}
	return tag == ""
}

// envNameFor derives the environment variable segment for a struct field
// from its yaml tag, falling back to the field name.
func envNameFor(field reflect.StructField) string {
	tag := field.Tag.Get("yaml")
	if tag != "" {
		if idx := strings.Index(tag, ","); idx >= 0 {
			tag = tag[:idx]
		}
	}
	if tag == "" || tag == "-" {
		tag = field.Name
	}
	return strings.ToUpper(strings.ReplaceAll(tag, "-", "_"))
}

// ValidatePort reports whether port is a usable TCP port number.
func ValidatePort(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("%w: %d", ErrPortOutOfRange, port)
	}
	return nil
}
