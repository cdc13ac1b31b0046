// Command-line config file support: a small JSON document so repeated
// settings (server address, exclude globs, symlink following, dial
// timeout) don't need retyping on every invocation.
/*
 * Copyright (c) 2018-2023, NVIDIA CORPORATION. All rights reserved.
 */
package main

import (
	"os"

	jsoniter "github.com/json-iterator/go"
)

var jsonc = jsoniter.ConfigCompatibleWithStandardLibrary

// fileConfig is the optional JSON document read via --config. Flags
// always take precedence over values loaded from it.
type fileConfig struct {
	Addr            string   `json:"addr"`
	Exclude         []string `json:"exclude"`
	FollowSymlinks  bool     `json:"follow_symlinks"`
	DialTimeoutSecs int      `json:"dial_timeout_secs"`
}

func loadConfig(path string) (fileConfig, error) {
	var cfg fileConfig
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := jsonc.Unmarshal(b, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// mergeExclude combines config-file and flag exclude patterns, flags
// last so they can extend (never replace) the config-file list.
func mergeExclude(fromConfig, fromFlags []string) []string {
	if len(fromConfig) == 0 {
		return fromFlags
	}
	out := make([]string, 0, len(fromConfig)+len(fromFlags))
	out = append(out, fromConfig...)
	out = append(out, fromFlags...)
	return out
}
