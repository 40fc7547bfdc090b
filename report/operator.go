// Copyright 2021-present The WOUDC Ingest Authors. All rights reserved.
// This source code is licensed under the Apache 2.0 license found
// in the LICENSE file in the root directory of this source tree.

package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"
)

// writeOperatorReport appends the current batch's messages as rows to the
// run's operator report CSV (§6), opening and writing the header the
// first time it is called. One row per message; a file with zero
// diagnostics still contributes one row with an empty message and its
// Processing Status (§7's "user-visible behaviour").
func (b *Builder) writeOperatorReport() error {
	if b.workDir == nil {
		return nil
	}
	if b.operatorFile == nil {
		name := fmt.Sprintf("operator-report-%s-run%d.csv", b.today(), b.runNumber)
		f, err := b.workDir.Create(name)
		if err != nil {
			return err
		}
		b.operatorFile = f
	}
	if !b.operatorFileHeader {
		if _, err := io.WriteString(b.operatorFile, strings.Join(OperatorReportColumns, ",")+"\n"); err != nil {
			return err
		}
		b.operatorFileHeader = true
	}

	n := len(b.cur.message)
	if n == 0 {
		row := b.operatorRow("", "", "", "")
		_, err := io.WriteString(b.operatorFile, row+"\n")
		return err
	}
	for i := 0; i < n; i++ {
		line := ""
		if b.cur.lineNumber[i] != nil {
			line = strconv.Itoa(*b.cur.lineNumber[i])
		}
		code := strconv.Itoa(b.cur.errorCode[i])
		row := b.operatorRow(line, b.cur.errorType[i], code, b.cur.message[i])
		if _, err := io.WriteString(b.operatorFile, row+"\n"); err != nil {
			return err
		}
	}
	return nil
}

func (b *Builder) operatorRow(line, errType, errCode, message string) string {
	escaped := strings.ReplaceAll(message, ",", "\\,")
	fields := []string{
		b.cur.processingStatus,
		errType,
		errCode,
		line,
		escaped,
		b.cur.dataset,
		b.cur.dataLevel,
		b.cur.dataForm,
		b.cur.agency,
		b.cur.stationType,
		b.cur.stationID,
		b.cur.filename,
		b.cur.incomingPath,
		b.cur.outgoingPath,
		b.cur.urn,
	}
	return strings.Join(fields, ",")
}
