// Copyright 2021-present The WOUDC Ingest Authors. All rights reserved.
// This source code is licensed under the Apache 2.0 license found
// in the LICENSE file in the root directory of this source tree.

package report

// OperatorReportColumns is the canonical column order of the operator
// report (§6). The CSV header is written from this slice; operatorRow in
// operator.go lists each row's fields separately, in the same order.
var OperatorReportColumns = []string{
	"Processing Status",
	"Error Type",
	"Error Code",
	"Line Number",
	"Message",
	"Dataset",
	"Data Level",
	"Data Form",
	"Agency",
	"Station Type",
	"Station ID",
	"Filename",
	"Incoming Path",
	"Outgoing Path",
	"URN",
}

// batch is the per-in-progress-file record described in §4.3: a
// processing status plus scalar metadata fields and the ordered, parallel
// message-detail lists.
type batch struct {
	processingStatus string

	errorType  []string
	errorCode  []int
	lineNumber []*int
	message    []string

	dataset      string
	dataLevel    string
	dataForm     string
	agency       string
	stationType  string
	stationID    string
	filename     string
	incomingPath string
	outgoingPath string
	urn          string
}

func (b *batch) reset() {
	*b = batch{}
}
