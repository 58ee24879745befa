// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package hapreduce

import (
	"flag"
	"fmt"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

// loadConfigFile reads a TOML file of flag defaults, e.g.
//
//	size = 30
//	locations = "Sample_info.xlsx"
//	strip-prefixes = ["xworm_", "ZpDL_", "CypDL_"]
//
// and applies each entry to the flag of the same name, unless that
// flag was given explicitly on the command line. Keys that don't
// correspond to a flag are an error.
func loadConfigFile(flags *flag.FlagSet, fnm string) error {
	f, err := zopen(fnm)
	if err != nil {
		return err
	}
	defer f.Close()
	var conf map[string]interface{}
	_, err = toml.NewDecoder(f).Decode(&conf)
	if err != nil {
		return fmt.Errorf("%s: %w", fnm, err)
	}

	explicit := map[string]bool{}
	flags.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

	keys := make([]string, 0, len(conf))
	for key := range conf {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if flags.Lookup(key) == nil {
			return fmt.Errorf("%s: unknown option %q", fnm, key)
		}
		if explicit[key] {
			continue
		}
		val, err := configString(conf[key])
		if err != nil {
			return fmt.Errorf("%s: %s: %w", fnm, key, err)
		}
		if err = flags.Set(key, val); err != nil {
			return fmt.Errorf("%s: %s: %w", fnm, key, err)
		}
	}
	return nil
}

func configString(v interface{}) (string, error) {
	switch v := v.(type) {
	case string:
		return v, nil
	case int64, float64, bool:
		return fmt.Sprintf("%v", v), nil
	case []interface{}:
		strs := make([]string, len(v))
		for i, elt := range v {
			s, err := configString(elt)
			if err != nil {
				return "", err
			}
			strs[i] = s
		}
		return strings.Join(strs, ","), nil
	default:
		return "", fmt.Errorf("unsupported value type %T", v)
	}
}
