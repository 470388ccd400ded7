// Copyright (c) 2024, Cogent Core. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cogentcore/rendercore/config"
	"github.com/cogentcore/rendercore/diskcache"
	"github.com/cogentcore/rendercore/effect"
	"github.com/cogentcore/rendercore/engine"
	"github.com/cogentcore/rendercore/errs"
	"github.com/cogentcore/rendercore/evaluator"
	"github.com/cogentcore/rendercore/geom"
	"github.com/cogentcore/rendercore/logx"
	"github.com/cogentcore/rendercore/outputdevice"
)

// Project is what a project file or script resolves to: a set of named
// writer nodes plus the input graph feeding them, and the Evaluator
// (already backed by its own Store and Dispatcher) that will drive
// them. Parsing the project file itself is explicitly out of scope
// (spec §1 Non-goals "no on-disk project format"); a host embedding
// this CLI registers OpenProject to supply one.
type Project struct {
	Eval    *evaluator.Evaluator
	Writers map[string]effect.Node
	Devices map[string]outputdevice.Device
}

// OpenProject is the CLI's one integration point with the rest of a
// compositor: given the positional project-file argument, it returns the
// graph this run should drive. Left unset by the render core itself;
// a host process sets it before calling Execute.
var OpenProject func(path string) (*Project, error)

func newRootCmd() *cobra.Command {
	var (
		writerNames []string
		frameRange  string
		threads     int
		background  bool
		configPath   string
	)

	cmd := &cobra.Command{
		Use:   "rendercore <project-file>",
		Short: "Render a node-graph compositor project to its configured writers.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if threads > 0 {
				cfg.ThreadCount = threads
			}

			if OpenProject == nil {
				return errs.New(errs.KindInvalidRequest, "no project loader registered", nil)
			}
			proj, err := OpenProject(args[0])
			if err != nil {
				return err
			}
			if proj.Eval != nil {
				proj.Eval.SetProjectDefault(geom.R(0, 0, float32(cfg.DefaultProject.Width), float32(cfg.DefaultProject.Height)))
				if disk, err := diskcache.Open(cfg.CacheRoot, cfg.DiskCacheMaxEntries); err != nil {
					logx.Logger.Warn("rendercore: disk cache unavailable, rendering without it", "cache_root", cfg.CacheRoot, "err", err)
				} else {
					proj.Eval.DiskCache = disk
				}
			}

			jobs, err := buildWriterJobs(proj, writerNames, frameRange)
			if err != nil {
				return err
			}

			e := engine.New(proj.Eval, cfg.ThreadCount)
			_ = background // background mode only affects process lifetime, handled by main's caller
			return e.RenderWriters(context.Background(), jobs)
		},
	}

	cmd.Flags().StringArrayVar(&writerNames, "writer", nil, "writer node name to render (repeatable); renders all writers if omitted")
	cmd.Flags().StringVar(&frameRange, "frame-range", "", "frame range override, as first-last")
	cmd.Flags().IntVar(&threads, "threads", 0, "worker thread count override")
	cmd.Flags().BoolVar(&background, "background", false, "run without an interactive console")
	cmd.Flags().StringVar(&configPath, "config", "", "path to a TOML settings file")

	return cmd
}

func buildWriterJobs(proj *Project, names []string, frameRange string) ([]engine.WriterJob, error) {
	if len(names) == 0 {
		for name := range proj.Writers {
			names = append(names, name)
		}
	}
	first, last, haveRange := float64(0), float64(0), false
	if frameRange != "" {
		var err error
		first, last, err = parseFrameRange(frameRange)
		if err != nil {
			return nil, err
		}
		haveRange = true
	}

	var jobs []engine.WriterJob
	for _, name := range names {
		node, ok := proj.Writers[name]
		if !ok {
			return nil, errs.New(errs.KindInvalidRequest, fmt.Sprintf("unknown writer %q", name), nil)
		}
		device, ok := proj.Devices[name]
		if !ok {
			return nil, errs.New(errs.KindInvalidRequest, fmt.Sprintf("writer %q has no output device", name), nil)
		}
		f, l := node.TimeDomain()
		if haveRange {
			f, l = first, last
		}
		jobs = append(jobs, engine.WriterJob{Writer: node, Device: device, First: f, Last: l, Step: 1})
	}
	return jobs, nil
}

func parseFrameRange(s string) (first, last float64, err error) {
	parts := strings.SplitN(s, "-", 2)
	if len(parts) != 2 {
		return 0, 0, errs.New(errs.KindInvalidRequest, "frame-range must be first-last", nil)
	}
	f, err1 := strconv.ParseFloat(parts[0], 64)
	l, err2 := strconv.ParseFloat(parts[1], 64)
	if err1 != nil || err2 != nil {
		return 0, 0, errs.New(errs.KindInvalidRequest, "frame-range must be first-last", nil)
	}
	return f, l, nil
}

// exitCodeForError maps a run's outcome to the exit codes of spec §6:
// 0 on full completion (handled by main before calling this), 1 on
// abort, 2 on any writer failure, other values reserved for input
// errors.
func exitCodeForError(err error) int {
	if errors.Is(err, errs.ErrAborted) {
		return 1
	}
	var rcErr *errs.Error
	if errors.As(err, &rcErr) {
		switch rcErr.Kind {
		case errs.KindInvalidRequest:
			return 64
		default:
			return 2
		}
	}
	return 2
}
