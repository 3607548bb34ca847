// Package configuration parses the archive's single YAML configuration
// document into a Config, following the environment-override convention
// of distribution-distribution's own configuration package: any field
// path may be overridden by an environment variable named
// LIBREARY_<PATH_IN_CAPS>.
package configuration

import (
	"fmt"
	"io"
	"os"
	"reflect"
	"regexp"
	"strings"

	"gopkg.in/yaml.v2"

	"github.com/libreary/libreary"
)

const envPrefix = "LIBREARY"

// MetadataConfig names the catalog database to open and the manager
// flavor to drive it with.
type MetadataConfig struct {
	DBFile      string `yaml:"db_file"`
	ManagerType string `yaml:"manager_type"`
}

// AdapterConfig is one entry of the top-level adapters list: an
// identifier, an adapter/factory type name, and the backend-specific
// parameters that type's FromParameters expects.
type AdapterConfig struct {
	ID     string                 `yaml:"id"`
	Type   string                 `yaml:"type"`
	Params map[string]interface{} `yaml:",inline"`
}

// OptionsConfig names the working directories the archive reads from
// and writes to.
type OptionsConfig struct {
	DropboxDir string `yaml:"dropbox_dir"`
	OutputDir  string `yaml:"output_dir"`
	ConfigDir  string `yaml:"config_dir"`
}

// Config is the fully parsed configuration document, matching spec.md
// §6 one-to-one.
type Config struct {
	Version              string          `yaml:"version"`
	Metadata             MetadataConfig  `yaml:"metadata"`
	Adapters             []AdapterConfig `yaml:"adapters"`
	Options              OptionsConfig   `yaml:"options"`
	CanonicalAdapter     string          `yaml:"canonical_adapter"`
	CanonicalAdapterType string          `yaml:"canonical_adapter_type"`
}

// Parse reads a YAML configuration document from rd, applies any
// environment variable overrides, and validates the required fields
// spec.md §6 names.
func Parse(rd io.Reader) (*Config, error) {
	in, err := io.ReadAll(rd)
	if err != nil {
		return nil, err
	}

	var c Config
	if err := yaml.Unmarshal(in, &c); err != nil {
		return nil, err
	}

	if err := overwriteFields(reflect.ValueOf(&c), envPrefix, environ()); err != nil {
		return nil, err
	}

	return &c, validate(&c)
}

// Load opens path and parses it as a Config.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f)
}

func validate(c *Config) error {
	if c.Metadata.DBFile == "" {
		return libreary.ConfigurationError{Field: "metadata.db_file", Reason: "required"}
	}
	if len(c.Adapters) == 0 {
		return libreary.ConfigurationError{Field: "adapters", Reason: "at least one adapter must be configured"}
	}
	if c.CanonicalAdapter == "" {
		return libreary.ConfigurationError{Field: "canonical_adapter", Reason: "required"}
	}
	found := false
	for _, a := range c.Adapters {
		if a.ID == c.CanonicalAdapter {
			found = true
			break
		}
	}
	if !found {
		return libreary.ConfigurationError{Field: "canonical_adapter", Reason: fmt.Sprintf("no adapter with id %q is configured", c.CanonicalAdapter)}
	}
	if c.Options.DropboxDir == "" {
		return libreary.ConfigurationError{Field: "options.dropbox_dir", Reason: "required"}
	}
	if c.Options.OutputDir == "" {
		return libreary.ConfigurationError{Field: "options.output_dir", Reason: "required"}
	}
	return nil
}

// AdapterRegistrations converts the parsed adapter list into the
// libreary.AdapterRegistration values adaptermanager.New expects.
func (c *Config) AdapterRegistrations() []libreary.AdapterRegistration {
	regs := make([]libreary.AdapterRegistration, 0, len(c.Adapters))
	for _, a := range c.Adapters {
		regs = append(regs, libreary.AdapterRegistration{ID: a.ID, Type: a.Type, Params: a.Params})
	}
	return regs
}

func environ() map[string]string {
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		parts := strings.SplitN(kv, "=", 2)
		env[parts[0]] = parts[1]
	}
	return env
}

// overwriteFields walks v (a struct or pointer to struct) applying any
// environment variable found under prefix to the matching field, and
// recurses into nested structs, slices, and maps with the field name
// appended to the prefix. This mirrors configuration/parser.go's
// overwriteFields/overwriteMap, simplified for a single config version:
// there is no VersionedParseInfo/ConversionFunc machinery here since
// this document has exactly one shape.
func overwriteFields(v reflect.Value, prefix string, env map[string]string) error {
	for v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return nil
		}
		v = v.Elem()
	}

	switch v.Kind() {
	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			sf := v.Type().Field(i)
			if !v.Field(i).CanSet() {
				continue
			}
			fieldPrefix := strings.ToUpper(prefix + "_" + sf.Name)
			if raw, ok := env[fieldPrefix]; ok {
				if err := setScalar(v.Field(i), raw); err != nil {
					return fmt.Errorf("overriding %s: %w", fieldPrefix, err)
				}
			}
			if err := overwriteFields(v.Field(i), fieldPrefix, env); err != nil {
				return err
			}
		}
	case reflect.Slice:
		for i := 0; i < v.Len(); i++ {
			if err := overwriteFields(v.Index(i), fmt.Sprintf("%s_%d", prefix, i), env); err != nil {
				return err
			}
		}
	case reflect.Map:
		envMapRegexp, err := regexp.Compile(fmt.Sprintf("^%s_([A-Z0-9]+)$", strings.ToUpper(prefix)))
		if err != nil {
			return err
		}
		for key, raw := range env {
			submatches := envMapRegexp.FindStringSubmatch(key)
			if submatches == nil {
				continue
			}
			mapValue := reflect.New(v.Type().Elem())
			if err := setScalar(mapValue.Elem(), raw); err != nil {
				return fmt.Errorf("overriding %s: %w", key, err)
			}
			if v.IsNil() {
				v.Set(reflect.MakeMap(v.Type()))
			}
			v.SetMapIndex(reflect.ValueOf(strings.ToLower(submatches[1])), mapValue.Elem())
		}
	}
	return nil
}

// setScalar assigns raw, parsed as YAML, into field. Used for both
// struct field and map value overrides so env vars can set strings,
// numbers, and booleans alike without bespoke per-type parsing.
func setScalar(field reflect.Value, raw string) error {
	target := reflect.New(field.Type())
	if err := yaml.Unmarshal([]byte(raw), target.Interface()); err != nil {
		return err
	}
	field.Set(target.Elem())
	return nil
}
