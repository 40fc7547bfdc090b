// Copyright 2021-present The WOUDC Ingest Authors. All rights reserved.
// This source code is licensed under the Apache 2.0 license found
// in the LICENSE file in the root directory of this source tree.

package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/mitchellh/go-homedir"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	home, err := homedir.Dir()
	if err != nil {
		home = "."
	}
	defaultWorkDir = home + "/.woudcingest"
	for _, f := range []*runFlags{ingestFlags, verifyFlags} {
		if f.workDir == "" {
			f.workDir = defaultWorkDir
		}
	}

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
