// Copyright 2021-present The WOUDC Ingest Authors. All rights reserved.
// This source code is licensed under the Apache 2.0 license found
// in the LICENSE file in the root directory of this source tree.

package main

import (
	"os"
	"runtime"
	"sync"

	"github.com/spf13/cobra"

	"woudc.io/ingest/pipeline"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <source>",
	Short: "Validate and persist Extended CSV files to the registry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBatch(cmd, args[0], pipeline.ModeIngest)
	},
}

var ingestFlags *runFlags

func init() {
	ingestFlags = addRunFlags(ingestCmd)
}

func runBatch(cmd *cobra.Command, source string, mode pipeline.Mode) error {
	f := ingestFlags
	if mode == pipeline.ModeVerify {
		f = verifyFlags
	}

	files, err := collectFiles(source)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	factory, err := newControllerFactory(ctx, f, mode)
	if err != nil {
		return err
	}
	defer factory.Close()

	parallelism := f.parallelism
	if parallelism <= 0 {
		parallelism = runtime.GOMAXPROCS(0)
	}

	outcomes := make(map[string]pipeline.Outcome, len(files))
	var mu sync.Mutex
	sem := make(chan struct{}, parallelism)
	var wg sync.WaitGroup
	for _, path := range files {
		path := path
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			ctrl, closeBuilder, err := factory.New()
			if err != nil {
				mu.Lock()
				outcomes[path] = pipeline.Outcome{Err: err}
				mu.Unlock()
				return
			}
			defer closeBuilder()

			contents, err := os.ReadFile(path)
			var outcome pipeline.Outcome
			if err != nil {
				outcome = pipeline.Outcome{Err: err}
			} else {
				outcome = ctrl.Run(ctx, path, contents, mode)
			}
			mu.Lock()
			outcomes[path] = outcome
			mu.Unlock()
		}()
	}
	wg.Wait()

	summarize(outcomes)
	return nil
}
