package sheets

import (
	"context"
	"errors"
)

// ErrUnavailable marks failures reaching the spreadsheet service. Callers
// surface it as a temporary outage rather than a bug.
var ErrUnavailable = errors.New("spreadsheet service unavailable")

// API is the narrow slice of the spreadsheet service the rest of the app
// depends on. Client implements it against Google Sheets; sheetstest.Fake
// implements it in memory for tests.
//
// Row and column indexes are 1-based counting from the top-left of the
// sheet, header row included, matching A1 notation.
type API interface {
	// Probe verifies the remote spreadsheet is reachable.
	Probe(ctx context.Context) error

	// ReadAll returns every row of the named sheet, header first.
	ReadAll(ctx context.Context, sheet string) ([][]string, error)

	// Overwrite replaces the sheet contents with rows in one write and
	// clears anything left below them.
	Overwrite(ctx context.Context, sheet string, rows [][]string) error

	// Append adds rows after the last populated row.
	Append(ctx context.Context, sheet string, rows [][]string) error

	// UpdateRow rewrites a single row in place.
	UpdateRow(ctx context.Context, sheet string, rowIndex int, row []string) error

	// UpdateCell rewrites a single cell.
	UpdateCell(ctx context.Context, sheet string, rowIndex, colIndex int, value string) error

	// DeleteRow removes a row, shifting the rows below it up.
	DeleteRow(ctx context.Context, sheet string, rowIndex int) error

	// SheetTitles lists the worksheet titles in the spreadsheet.
	SheetTitles(ctx context.Context) ([]string, error)

	// AddSheet creates a new worksheet with the given grid size.
	AddSheet(ctx context.Context, title string, rows, cols int) error
}
