package sheets

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// cellRefPattern matches a single A1-notation cell reference like "A2" or
// "D17". Whole-column or multi-cell ranges are not valid write targets.
var cellRefPattern = regexp.MustCompile(`^[A-Za-z]{1,3}[1-9][0-9]*$`)

// Client is the only component with authorized access to the external
// spreadsheet.
type Client struct {
	service *sheets.Service
}

// NewClient builds a Sheets client from a service-account credentials file.
func NewClient(ctx context.Context, credentialsFile string) (*Client, error) {
	service, err := sheets.NewService(ctx, option.WithCredentialsFile(credentialsFile))
	if err != nil {
		return nil, &AuthError{Reason: "could not create sheets service from credentials file", Err: err}
	}

	return &Client{
		service: service,
	}, nil
}

// NewClientFromJSON builds a Sheets client from raw service-account JSON, for
// deployments that inject the credential through the environment instead of a
// file.
func NewClientFromJSON(ctx context.Context, credentialsJSON []byte) (*Client, error) {
	if len(credentialsJSON) == 0 {
		return nil, &AuthError{Reason: "empty credentials JSON"}
	}
	service, err := sheets.NewService(ctx, option.WithCredentialsJSON(credentialsJSON))
	if err != nil {
		return nil, &AuthError{Reason: "could not create sheets service from credentials JSON", Err: err}
	}

	return &Client{
		service: service,
	}, nil
}

// ReadRange fetches every row from A2 down to the end of column E,
// unformatted. An empty range yields an empty slice, not an error.
func (c *Client) ReadRange(ctx context.Context, spreadsheetID, sheetName string) ([][]interface{}, error) {
	readRange := fmt.Sprintf("%s!A2:E", sheetName)
	resp, err := c.service.Spreadsheets.Values.Get(spreadsheetID, readRange).
		ValueRenderOption("UNFORMATTED_VALUE").
		Context(ctx).
		Do()
	if err != nil {
		return nil, &UpstreamError{Op: "read", Err: err}
	}

	log.Debug().
		Str("range", readRange).
		Int("rows", len(resp.Values)).
		Msg("Read sheet range")

	if resp.Values == nil {
		return [][]interface{}{}, nil
	}
	return resp.Values, nil
}

// WriteCell writes a single value to one cell. USER_ENTERED interpretation
// means a value like =IMAGE("...") is evaluated by the spreadsheet engine
// rather than stored as a literal string.
func (c *Client) WriteCell(ctx context.Context, spreadsheetID, sheetName, cellRef string, value interface{}) error {
	cellRef = strings.TrimSpace(cellRef)
	if !cellRefPattern.MatchString(cellRef) {
		return &ValidationError{Field: "cell", Reason: fmt.Sprintf("%q is not a cell reference", cellRef)}
	}

	valueRange := &sheets.ValueRange{
		Values: [][]interface{}{{value}},
	}

	writeRange := fmt.Sprintf("%s!%s", sheetName, cellRef)
	_, err := c.service.Spreadsheets.Values.Update(spreadsheetID, writeRange, valueRange).
		ValueInputOption("USER_ENTERED").
		Context(ctx).
		Do()
	if err != nil {
		return &UpstreamError{Op: "write", Err: err}
	}

	log.Debug().
		Str("range", writeRange).
		Msg("Wrote sheet cell")

	return nil
}

// ValidCellRef reports whether s is a syntactically valid single-cell
// reference.
func ValidCellRef(s string) bool {
	return cellRefPattern.MatchString(strings.TrimSpace(s))
}
