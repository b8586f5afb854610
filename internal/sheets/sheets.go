// Package sheets mirrors closed statements into a Google Spreadsheet so
// the store owner can keep eyeballing balances in the tool they already
// know. The database stays the source of truth; this is write-only.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"fiado/internal/core"
)

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string
}

// Options configures the mirror. Exactly one of CredentialsFile or
// CredentialsJSON must be set.
type Options struct {
	SpreadsheetID   string
	SheetName       string
	CredentialsFile string
	CredentialsJSON string
}

func New(ctx context.Context, opts Options) (*Client, error) {
	spreadsheetID := strings.TrimSpace(opts.SpreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	sheetName := strings.TrimSpace(opts.SheetName)
	if sheetName == "" {
		sheetName = "Statements"
	}

	var credentialsJSON []byte
	switch {
	case strings.TrimSpace(opts.CredentialsJSON) != "":
		credentialsJSON = []byte(opts.CredentialsJSON)
	case strings.TrimSpace(opts.CredentialsFile) != "":
		data, err := os.ReadFile(opts.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read credentials file: %w", err)
		}
		credentialsJSON = data
	default:
		return nil, errors.New("missing service account credentials")
	}

	svc, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		sheetName:     sheetName,
	}, nil
}

// AppendClosed appends one row for a settled statement.
func (c *Client) AppendClosed(ctx context.Context, st core.Statement) error {
	closedAt := ""
	if st.ClosedAt != nil {
		closedAt = st.ClosedAt.Format(time.RFC3339)
	}
	vr := &gsheet.ValueRange{
		Values: [][]interface{}{{
			st.ID,
			st.CustomerID,
			string(st.Month),
			string(st.Status),
			st.Total.String(),
			st.CarryOver.String(),
			st.PaidAmount.String(),
			st.BalanceDue.String(),
			closedAt,
		}},
	}

	rng := fmt.Sprintf("%s!A:I", c.sheetName)
	_, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, rng, vr).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("append statement row: %w", err)
	}

	slog.InfoContext(ctx, "Mirrored closed statement to spreadsheet",
		"statement_id", st.ID,
		"month", st.Month,
		"sheet", c.sheetName)
	return nil
}
