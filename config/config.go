// Copyright (c) 2024, Cogent Core. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package config loads the render core's settings: cache root directory,
// OCIO configuration path, worker-thread count override, default project
// format, and disk-cache size cap (spec §6 "Environment input is
// limited to a cache-root directory and an OCIO configuration path").
//
// Grounded on the teacher's grows.Open/Read file-decoding idiom
// (decoder.go) and its direct dependency on
// github.com/pelletier/go-toml/v2, resolved the way the teacher resolves
// settings: defaults, then file, then CLI/env override.
package config

import (
	"os"
	"runtime"

	"github.com/mitchellh/go-homedir"
	"github.com/pelletier/go-toml/v2"

	"github.com/cogentcore/rendercore/errs"
)

// ProjectFormat is the fallback project resolution used when a node's
// region-of-definition is infinite on every side and every upstream
// input is also unresolvable (spec §4.3 step 4, §9 Open Question).
type ProjectFormat struct {
	Width, Height int
}

// Config is the render core's resolved settings.
type Config struct {
	CacheRoot        string        `toml:"cache_root"`
	OCIOConfigPath   string        `toml:"ocio_config_path"`
	ThreadCount      int           `toml:"thread_count"`
	DefaultProject   ProjectFormat `toml:"default_project"`
	DiskCacheMaxEntries int        `toml:"disk_cache_max_entries"`
}

// Default returns the built-in defaults, before any file or environment
// override is applied.
func Default() Config {
	root, err := homedir.Expand("~/.cache/rendercore")
	if err != nil {
		errs.Log(err)
		root = ".rendercore-cache"
	}
	return Config{
		CacheRoot:           root,
		ThreadCount:         0, // 0 means "use the machine's logical core count"
		DefaultProject:      ProjectFormat{Width: 1920, Height: 1080},
		DiskCacheMaxEntries: 4096,
	}
}

// Load resolves a Config the way the CLI does: built-in defaults, then a
// TOML settings file at path (if non-empty and it exists), then the
// environment variables named in spec §6.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := applyFile(&cfg, path); err != nil {
			return Config{}, err
		}
	}
	applyEnv(&cfg)
	if cfg.ThreadCount == 0 {
		cfg.ThreadCount = runtime.NumCPU()
	}
	return cfg, nil
}

func applyFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errs.New(errs.KindInvalidRequest, "config: read settings file", err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return errs.New(errs.KindInvalidRequest, "config: parse settings file", err)
	}
	return nil
}

// applyEnv overlays the two environment inputs spec §6 allows: a
// cache-root directory and an OCIO configuration path, both opaque to
// the render core.
func applyEnv(cfg *Config) {
	if v := os.Getenv("RENDERCORE_CACHE_ROOT"); v != "" {
		cfg.CacheRoot = v
	}
	if v := os.Getenv("OCIO"); v != "" {
		cfg.OCIOConfigPath = v
	}
}
