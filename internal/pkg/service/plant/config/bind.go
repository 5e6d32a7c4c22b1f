package config

import (
	"reflect"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/umisama/go-regexpcache"

	"github.com/keboola/processing-plant/internal/pkg/utils/errors"
)

const (
	EnvPrefix      = "PLANT_"
	ConfigFileFlag = "config-file"
	configKeyTag   = "mapstructure"
	configUsageTag = "configUsage"
)

// EnvLookup returns the value of the environment variable, os.LookupEnv can be used.
type EnvLookup func(key string) (string, bool)

// binding connects a configuration key with its flag and environment variable.
type binding struct {
	Key     string
	Flag    string
	Env     string
	Default any
}

// Bind loads the configuration from defaults, an optional YAML config file, PLANT_* environment variables and flags.
// Flags take precedence over environment variables, environment variables over the config file.
func Bind(args []string, envs EnvLookup) (Config, error) {
	cfg := NewConfig()

	fs := pflag.NewFlagSet("plant-node", pflag.ContinueOnError)
	bindings, err := generateFlags(fs, &cfg)
	if err != nil {
		return Config{}, err
	}
	fs.String(ConfigFileFlag, "", "Path to a YAML config file.")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetConfigType("yaml")
	for _, b := range bindings {
		v.SetDefault(b.Key, b.Default)
	}

	// Config file
	if path, _ := fs.GetString(ConfigFileFlag); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, errors.Errorf(`cannot read config file "%s": %w`, path, err)
		}
	}

	for _, b := range bindings {
		flag := fs.Lookup(b.Flag)
		if flag != nil && flag.Changed {
			if err := v.BindPFlag(b.Key, flag); err != nil {
				return Config{}, err
			}
			continue
		}
		if envs == nil {
			continue
		}
		if value, found := envs(b.Env); found {
			v.Set(b.Key, value)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, errors.Errorf("cannot decode configuration: %w", err)
	}

	cfg.Normalize()
	return cfg, nil
}

// generateFlags generates a flag for each leaf field tagged by the "mapstructure" tag.
// The field can optionally have the "configUsage" tag.
func generateFlags(fs *pflag.FlagSet, v any) ([]binding, error) {
	value := reflect.ValueOf(v)
	if value.Kind() == reflect.Pointer {
		value = value.Elem()
	}
	if value.Kind() != reflect.Struct {
		return nil, errors.Errorf(`cannot generate flags from type "%s": it is not a struct or a pointer to a struct`, value.Type().String())
	}

	var bindings []binding
	err := visit(value, "", func(key string, field reflect.StructField, fieldValue reflect.Value) error {
		flagName := fieldToFlagName(key)
		usage := field.Tag.Get(configUsageTag)
		switch v := fieldValue.Interface().(type) {
		case bool:
			fs.Bool(flagName, v, usage)
		case int:
			fs.Int(flagName, v, usage)
		case string:
			fs.String(flagName, v, usage)
		case time.Duration:
			fs.Duration(flagName, v, usage)
		case []string:
			fs.StringSlice(flagName, v, usage)
		default:
			return errors.Errorf(`unexpected type "%T" of the field "%s"`, v, key)
		}
		bindings = append(bindings, binding{Key: key, Flag: flagName, Env: flagToEnvName(flagName), Default: fieldValue.Interface()})
		return nil
	})
	return bindings, err
}

func visit(value reflect.Value, prefix string, onLeaf func(key string, field reflect.StructField, value reflect.Value) error) error {
	for i := 0; i < value.NumField(); i++ {
		field := value.Type().Field(i)
		name, _, _ := strings.Cut(field.Tag.Get(configKeyTag), ",")
		if name == "" || name == "-" || !field.IsExported() {
			continue
		}

		key := name
		if prefix != "" {
			key = prefix + "." + name
		}

		fieldValue := value.Field(i)
		switch {
		case fieldValue.Kind() == reflect.Struct:
			if err := visit(fieldValue, key, onLeaf); err != nil {
				return err
			}
		case fieldValue.Kind() == reflect.Slice && fieldValue.Type().Elem().Kind() == reflect.Struct:
			// Lists of structures can be defined only in the config file
			continue
		default:
			if err := onLeaf(key, field, fieldValue); err != nil {
				return err
			}
		}
	}
	return nil
}

// fieldToFlagName converts "watchdog.initialDelay" to "watchdog-initial-delay".
func fieldToFlagName(fieldName string) string {
	str := regexpcache.MustCompile(`[A-Z]+`).ReplaceAllString(fieldName, "-$0")
	str = regexpcache.MustCompile(`[-.\s]+`).ReplaceAllString(str, "-")
	str = strings.Trim(str, "-")
	str = strings.ToLower(str)
	return str
}

// flagToEnvName converts "watchdog-initial-delay" to "PLANT_WATCHDOG_INITIAL_DELAY".
func flagToEnvName(flagName string) string {
	return EnvPrefix + strings.ToUpper(strings.ReplaceAll(flagName, "-", "_"))
}
