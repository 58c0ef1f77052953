// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package devnet

import (
	"fmt"
	"sort"

	"github.com/spf13/cast"
)

// FlagsMap maps flag keys to values intended to be supplied to a node
// binary on its command line.
type FlagsMap map[string]interface{}

// SetDefaults ensures the effectiveness of flag overrides by only
// setting values supplied in the defaults map that are not already
// explicitly set.
func (f FlagsMap) SetDefaults(defaults FlagsMap) {
	for key, value := range defaults {
		if _, ok := f[key]; !ok {
			f[key] = value
		}
	}
}

// GetStringVal simplifies retrieving a map value as a string.
func (f FlagsMap) GetStringVal(key string) (string, error) {
	rawVal, ok := f[key]
	if !ok {
		return "", nil
	}
	val, err := cast.ToStringE(rawVal)
	if err != nil {
		return "", fmt.Errorf("failed to cast value for %q: %w", key, err)
	}
	return val, nil
}

// GetIntVal simplifies retrieving a map value as an int.
func (f FlagsMap) GetIntVal(key string, defaultVal int) (int, error) {
	rawVal, ok := f[key]
	if !ok {
		return defaultVal, nil
	}
	val, err := cast.ToIntE(rawVal)
	if err != nil {
		return 0, fmt.Errorf("failed to cast value for %q: %w", key, err)
	}
	return val, nil
}

// GetBoolVal simplifies retrieving a map value as a bool.
func (f FlagsMap) GetBoolVal(key string, defaultVal bool) (bool, error) {
	rawVal, ok := f[key]
	if !ok {
		return defaultVal, nil
	}
	val, err := cast.ToBoolE(rawVal)
	if err != nil {
		return false, fmt.Errorf("failed to cast value for %q: %w", key, err)
	}
	return val, nil
}

// Args renders the map as sorted -key=value arguments, the form bitcoind
// accepts.
func (f FlagsMap) Args() ([]string, error) {
	keys := make([]string, 0, len(f))
	for key := range f {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	args := make([]string, 0, len(keys))
	for _, key := range keys {
		val, err := f.GetStringVal(key)
		if err != nil {
			return nil, err
		}
		args = append(args, fmt.Sprintf("-%s=%s", key, val))
	}
	return args, nil
}
