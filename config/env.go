package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"
)

// EnvKey returns the environment variable that overrides flag name:
// prefix, underscore, then the name upper-cased with dashes as underscores.
func EnvKey(prefix, name string) string {
	key := strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
	if prefix == "" {
		return key
	}
	return prefix + "_" + key
}

// ApplyEnv overrides every flag of fs that was not set on the command line
// with its environment variable, when present. Values are parsed by the flag
// itself, so they take the same syntax as on the command line.
func ApplyEnv(fs *pflag.FlagSet, prefix string) error {
	return applyEnv(fs, prefix, os.LookupEnv)
}

func applyEnv(fs *pflag.FlagSet, prefix string, lookup func(string) (string, bool)) error {
	var firstErr error
	fs.VisitAll(func(f *pflag.Flag) {
		if firstErr != nil || f.Changed {
			return
		}
		key := EnvKey(prefix, f.Name)
		value, ok := lookup(key)
		if !ok {
			return
		}
		if err := fs.Set(f.Name, value); err != nil {
			firstErr = fmt.Errorf("%w: %s=%q: %w", ErrInvalidConfig, key, value, err)
		}
	})
	return firstErr
}
