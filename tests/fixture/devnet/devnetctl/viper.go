// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	envPrefix      = "DEVNET"
	configFileFlag = "config-file"
)

// applyViper fills every flag not given on the command line from, in order
// of precedence, a DEVNET_* env var (dashes become underscores) or the
// config file.
func applyViper(flagSet *pflag.FlagSet, configFile string) error {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(flagSet); err != nil {
		return err
	}
	if len(configFile) > 0 {
		v.SetConfigFile(os.ExpandEnv(configFile))
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config file %q: %w", configFile, err)
		}
	}

	var err error
	flagSet.VisitAll(func(f *pflag.Flag) {
		if err != nil || f.Changed || f.Name == configFileFlag || !v.IsSet(f.Name) {
			return
		}
		if setErr := flagSet.Set(f.Name, v.GetString(f.Name)); setErr != nil {
			err = fmt.Errorf("invalid value for --%s: %w", f.Name, setErr)
		}
	})
	return err
}
