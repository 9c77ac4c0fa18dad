package main

import (
	"errors"
	"io/fs"
	"os"

	"trackgym/internal/config"
)

// parameters merges, lowest precedence first: defaults, --config, the
// dotenv file, the process environment and --set overrides. The result is
// validated before it is returned.
func (o *rootOptions) parameters() (config.Parameters, error) {
	params := config.Defaults()

	if o.configPath != "" {
		fromFile, err := config.ReadFile(o.configPath)
		if err != nil {
			return nil, err
		}
		params.Merge(fromFile)
	}

	if o.envFile != "" {
		fromEnvFile, err := config.ReadEnvFile(o.envFile)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, err
		default:
			params.Merge(fromEnvFile)
		}
	}

	fromEnviron, err := config.FromEnviron(os.Environ())
	if err != nil {
		return nil, err
	}
	params.Merge(fromEnviron)

	for _, assignment := range o.sets {
		key, value, err := config.ParseAssignment(assignment)
		if err != nil {
			return nil, err
		}
		params[key] = value
	}

	if _, err := config.Load(params); err != nil {
		return nil, err
	}
	return params, nil
}
