// Copyright 2021-present The WOUDC Ingest Authors. All rights reserved.
// This source code is licensed under the Apache 2.0 license found
// in the LICENSE file in the root directory of this source tree.

package main

import (
	"github.com/spf13/cobra"

	"woudc.io/ingest/pipeline"
)

var verifyCmd = &cobra.Command{
	Use:   "verify <source>",
	Short: "Validate Extended CSV files without persisting anything",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBatch(cmd, args[0], pipeline.ModeVerify)
	},
}

var verifyFlags *runFlags

func init() {
	verifyFlags = addRunFlags(verifyCmd)
}
