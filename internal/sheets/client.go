// Package sheets pulls spreadsheet records from the Google Sheets API for
// the external-source sync endpoint. The fetch is synchronous; the Sheets
// client library has no asynchronous form, and downstream normalization
// stays async regardless.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"google.golang.org/api/option"
	gsheets "google.golang.org/api/sheets/v4"
)

// Sentinel errors for sheet sync failures.
var (
	ErrInvalidSheetURL = errors.New("invalid spreadsheet URL")
	ErrFetchFailed     = errors.New("spreadsheet fetch failed")
)

// readRange covers every populated cell on the first sheet.
const readRange = "A1:ZZ"

var reSpreadsheetID = regexp.MustCompile(`/spreadsheets/d/([a-zA-Z0-9-_]+)`)

// Client fetches all records from a shared spreadsheet.
type Client interface {
	FetchRecords(ctx context.Context, sheetURL string) ([]map[string]any, error)
}

// GoogleClient implements Client against the Sheets API using a service
// account credential.
type GoogleClient struct {
	svc *gsheets.Service
}

// NewGoogleClient builds a read-only Sheets client from a service-account
// credentials file.
func NewGoogleClient(ctx context.Context, credentialsFile string) (*GoogleClient, error) {
	svc, err := gsheets.NewService(ctx,
		option.WithCredentialsFile(credentialsFile),
		option.WithScopes(gsheets.SpreadsheetsReadonlyScope),
	)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return &GoogleClient{svc: svc}, nil
}

// FetchRecords reads the first sheet, treating the first row as the header,
// and returns one map per data row.
func (c *GoogleClient) FetchRecords(ctx context.Context, sheetURL string) ([]map[string]any, error) {
	id, err := SpreadsheetIDFromURL(sheetURL)
	if err != nil {
		return nil, err
	}

	resp, err := c.svc.Spreadsheets.Values.Get(id, readRange).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}

	return RowsToRecords(resp.Values), nil
}

// SpreadsheetIDFromURL extracts the spreadsheet id from a sharing URL.
func SpreadsheetIDFromURL(sheetURL string) (string, error) {
	m := reSpreadsheetID.FindStringSubmatch(sheetURL)
	if m == nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidSheetURL, sheetURL)
	}
	return m[1], nil
}

// RowsToRecords converts a header row plus value rows into record maps.
// Short rows leave their trailing columns absent.
func RowsToRecords(rows [][]any) []map[string]any {
	if len(rows) == 0 {
		return []map[string]any{}
	}

	header := make([]string, len(rows[0]))
	for i, cell := range rows[0] {
		header[i] = fmt.Sprint(cell)
	}

	records := make([]map[string]any, 0, len(rows)-1)
	for _, row := range rows[1:] {
		rec := make(map[string]any, len(header))
		for i, col := range header {
			if i < len(row) {
				rec[col] = row[i]
			}
		}
		records = append(records, rec)
	}
	return records
}
