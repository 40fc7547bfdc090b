// Copyright 2021-present The WOUDC Ingest Authors. All rights reserved.
// This source code is licensed under the Apache 2.0 license found
// in the LICENSE file in the root directory of this source tree.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/mod/semver"
)

// version is set at build time via -ldflags "-X main.version=vX.Y.Z". An
// unset or invalid value is treated as a development build, matching the
// teacher's checkForUpdate's "skip if the version isn't set" behaviour.
var version = "v0.0.0-dev"

var defaultWorkDir string

var rootCmd = &cobra.Command{
	Use:           "woudcingest",
	Short:         "Validate and ingest Extended CSV files into the data registry",
	SilenceUsage:  true,
	SilenceErrors: false,
	Version:       version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if semver.IsValid(version) {
			fmt.Fprintf(os.Stderr, "woudcingest %s\n", version)
		}
	},
}

func init() {
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(verifyCmd)
}
