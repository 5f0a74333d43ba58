/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package recon

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/blnkfinance/recon/internal/apierror"
	"github.com/blnkfinance/recon/model"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

const (
	mimeCSV  = "text/csv"
	mimeJSON = "application/json"
)

var feedDateLayouts = []string{time.RFC3339, "2006-01-02", "01/02/2006"}

// detectFileType prefers the file extension and falls back to sniffing the content.
func detectFileType(data []byte, filename string) string {
	if mimeType := detectByExtension(filename); mimeType != "" {
		return mimeType
	}
	return detectByContent(data)
}

func detectByExtension(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext == ".csv" {
		return mimeCSV
	}
	mimeType := mime.TypeByExtension(ext)
	switch {
	case strings.HasPrefix(mimeType, mimeCSV):
		return mimeCSV
	case strings.HasPrefix(mimeType, mimeJSON):
		return mimeJSON
	}
	return ""
}

func detectByContent(data []byte) string {
	trimmed := bytes.TrimSpace(data)
	if json.Valid(trimmed) {
		return mimeJSON
	}
	if looksLikeCSV(trimmed) {
		return mimeCSV
	}
	return http.DetectContentType(data)
}

// looksLikeCSV reports whether every non-empty line has the same number of commas as the header.
func looksLikeCSV(data []byte) bool {
	lines := bytes.Split(data, []byte("\n"))
	if len(lines) < 2 {
		return false
	}

	fields := bytes.Count(lines[0], []byte(",")) + 1
	for _, line := range lines[1:] {
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		if bytes.Count(line, []byte(","))+1 != fields {
			return false
		}
	}
	return fields > 1
}

func parseFeedDate(s string) (time.Time, error) {
	for _, layout := range feedDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errors.Errorf("invalid date %q", s)
}

func createColumnMap(headers []string) (map[string]int, error) {
	columnMap := make(map[string]int, len(headers))
	for i, header := range headers {
		columnMap[strings.ToLower(strings.TrimSpace(header))] = i
	}
	for _, col := range []string{"transaction_id", "date", "amount"} {
		if _, ok := columnMap[col]; !ok {
			return nil, errors.Errorf("required column '%s' not found in CSV", col)
		}
	}
	return columnMap, nil
}

func column(record []string, columnMap map[string]int, name string) string {
	if i, ok := columnMap[name]; ok && i < len(record) {
		return strings.TrimSpace(record[i])
	}
	return ""
}

func parseFeedRecord(record []string, columnMap map[string]int, connectionID, accountID string) (model.BankTransaction, error) {
	txn := model.BankTransaction{
		TransactionID:   column(record, columnMap, "transaction_id"),
		ConnectionID:    connectionID,
		AccountID:       accountID,
		TransactionType: column(record, columnMap, "type"),
		Description:     column(record, columnMap, "description"),
		MerchantName:    column(record, columnMap, "merchant_name"),
		Category:        column(record, columnMap, "category"),
	}
	if txn.TransactionID == "" {
		return txn, errors.New("transaction_id is empty")
	}

	amount, err := decimal.NewFromString(column(record, columnMap, "amount"))
	if err != nil {
		return txn, errors.Wrap(err, "invalid amount")
	}
	txn.Amount = amount

	if txn.TransactionDate, err = parseFeedDate(column(record, columnMap, "date")); err != nil {
		return txn, err
	}
	if posted := column(record, columnMap, "posted_date"); posted != "" {
		postedDate, err := parseFeedDate(posted)
		if err != nil {
			return txn, errors.Wrap(err, "posted_date")
		}
		txn.PostedDate = &postedDate
	}
	if pending := column(record, columnMap, "pending"); pending != "" {
		if txn.Pending, err = strconv.ParseBool(pending); err != nil {
			return txn, errors.Wrap(err, "invalid pending flag")
		}
	}
	return txn, nil
}

func parseFeedCSV(reader io.Reader, connectionID, accountID string) ([]model.BankTransaction, error) {
	csvReader := csv.NewReader(reader)
	csvReader.TrimLeadingSpace = true

	headers, err := csvReader.Read()
	if err != nil {
		return nil, errors.Wrap(err, "error reading CSV headers")
	}
	columnMap, err := createColumnMap(headers)
	if err != nil {
		return nil, err
	}

	var txns []model.BankTransaction
	for row := 2; ; row++ {
		record, err := csvReader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "row %d", row)
		}
		txn, err := parseFeedRecord(record, columnMap, connectionID, accountID)
		if err != nil {
			return nil, errors.Wrapf(err, "row %d", row)
		}
		txns = append(txns, txn)
	}
	return txns, nil
}

func parseFeedJSON(reader io.Reader, connectionID, accountID string) ([]model.BankTransaction, error) {
	var txns []model.BankTransaction
	if err := json.NewDecoder(reader).Decode(&txns); err != nil {
		return nil, errors.Wrap(err, "error decoding JSON feed")
	}
	for i := range txns {
		if txns[i].ConnectionID == "" {
			txns[i].ConnectionID = connectionID
		}
		if txns[i].AccountID == "" {
			txns[i].AccountID = accountID
		}
		if txns[i].TransactionID == "" {
			return nil, errors.Errorf("entry %d: transaction_id is empty", i)
		}
	}
	return txns, nil
}

// ParseBankFeed reads a CSV or JSON bank feed export into bank transactions.
// The connection and account fill in whatever the feed leaves out.
func ParseBankFeed(connectionID, accountID string, reader io.Reader, filename string) ([]model.BankTransaction, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "failed to read bank feed", err)
	}

	var txns []model.BankTransaction
	switch fileType := detectFileType(data, filename); fileType {
	case mimeCSV:
		txns, err = parseFeedCSV(bytes.NewReader(data), connectionID, accountID)
	case mimeJSON:
		txns, err = parseFeedJSON(bytes.NewReader(data), connectionID, accountID)
	default:
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "unsupported bank feed type "+fileType, nil)
	}
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, errors.Wrap(err, filename).Error(), nil)
	}
	return txns, nil
}

// UploadBankFeed parses a bank feed file and imports every transaction in it.
// A malformed row rejects the whole file before anything is stored.
func (r *Recon) UploadBankFeed(ctx context.Context, connectionID, accountID string, reader io.Reader, filename string) (*ImportResult, error) {
	ctx, span := tracer.Start(ctx, "UploadBankFeed")
	defer span.End()

	txns, err := ParseBankFeed(connectionID, accountID, reader, filename)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return r.ImportBankTransactions(ctx, txns, defaultImportWorkers)
}
