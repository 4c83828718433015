package sheets

import (
	"context"
	"fmt"

	"google.golang.org/api/option"
	sheetsv4 "google.golang.org/api/sheets/v4"

	"churchattend/internal/metrics"
)

// Client talks to a single Google spreadsheet through the Sheets API.
type Client struct {
	svc           *sheetsv4.Service
	spreadsheetID string
}

// NewClient builds a Sheets API client authenticated with a service account
// credentials file, bound to one spreadsheet.
func NewClient(ctx context.Context, credentialsFile, spreadsheetID string) (*Client, error) {
	svc, err := sheetsv4.NewService(ctx,
		option.WithCredentialsFile(credentialsFile),
		option.WithScopes(sheetsv4.SpreadsheetsScope),
	)
	if err != nil {
		return nil, fmt.Errorf("sheets: build service: %w", err)
	}
	return &Client{svc: svc, spreadsheetID: spreadsheetID}, nil
}

// Probe fetches spreadsheet metadata to confirm the handle is still live.
func (c *Client) Probe(ctx context.Context) error {
	_, err := c.svc.Spreadsheets.Get(c.spreadsheetID).
		Fields("spreadsheetId").Context(ctx).Do()
	return c.observe("probe", err)
}

// ReadAll returns every populated row of the named sheet as strings.
func (c *Client) ReadAll(ctx context.Context, sheet string) ([][]string, error) {
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, sheet).
		Context(ctx).Do()
	if err := c.observe("read_all", err); err != nil {
		return nil, fmt.Errorf("sheets: read %s: %w", sheet, err)
	}
	rows := make([][]string, 0, len(resp.Values))
	for _, raw := range resp.Values {
		row := make([]string, len(raw))
		for i, cell := range raw {
			row[i] = fmt.Sprint(cell)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// Overwrite writes rows starting at A1 in a single update, then clears
// whatever remains below them. Readers never observe a header-only sheet.
func (c *Client) Overwrite(ctx context.Context, sheet string, rows [][]string) error {
	vr := &sheetsv4.ValueRange{Values: toCells(rows)}
	_, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, sheet+"!A1", vr).
		ValueInputOption("RAW").Context(ctx).Do()
	if err := c.observe("overwrite", err); err != nil {
		return fmt.Errorf("sheets: overwrite %s: %w", sheet, err)
	}
	tail := fmt.Sprintf("%s!A%d:ZZ", sheet, len(rows)+1)
	_, err = c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, tail, &sheetsv4.ClearValuesRequest{}).
		Context(ctx).Do()
	if err := c.observe("overwrite", err); err != nil {
		return fmt.Errorf("sheets: clear tail of %s: %w", sheet, err)
	}
	return nil
}

// Append adds rows after the last populated row of the sheet.
func (c *Client) Append(ctx context.Context, sheet string, rows [][]string) error {
	vr := &sheetsv4.ValueRange{Values: toCells(rows)}
	_, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, sheet+"!A1", vr).
		ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err := c.observe("append", err); err != nil {
		return fmt.Errorf("sheets: append to %s: %w", sheet, err)
	}
	return nil
}

// UpdateRow rewrites one row in place.
func (c *Client) UpdateRow(ctx context.Context, sheet string, rowIndex int, row []string) error {
	vr := &sheetsv4.ValueRange{Values: toCells([][]string{row})}
	rng := fmt.Sprintf("%s!A%d", sheet, rowIndex)
	_, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, vr).
		ValueInputOption("RAW").Context(ctx).Do()
	if err := c.observe("update_row", err); err != nil {
		return fmt.Errorf("sheets: update row %d of %s: %w", rowIndex, sheet, err)
	}
	return nil
}

// UpdateCell rewrites one cell.
func (c *Client) UpdateCell(ctx context.Context, sheet string, rowIndex, colIndex int, value string) error {
	vr := &sheetsv4.ValueRange{Values: [][]any{{value}}}
	rng := fmt.Sprintf("%s!%s%d", sheet, colName(colIndex), rowIndex)
	_, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, vr).
		ValueInputOption("RAW").Context(ctx).Do()
	if err := c.observe("update_cell", err); err != nil {
		return fmt.Errorf("sheets: update cell %s of %s: %w", rng, sheet, err)
	}
	return nil
}

// DeleteRow removes a row entirely so the rows below shift up.
func (c *Client) DeleteRow(ctx context.Context, sheet string, rowIndex int) error {
	id, err := c.sheetID(ctx, sheet)
	if err != nil {
		return err
	}
	req := &sheetsv4.BatchUpdateSpreadsheetRequest{
		Requests: []*sheetsv4.Request{{
			DeleteDimension: &sheetsv4.DeleteDimensionRequest{
				Range: &sheetsv4.DimensionRange{
					SheetId:    id,
					Dimension:  "ROWS",
					StartIndex: int64(rowIndex - 1),
					EndIndex:   int64(rowIndex),
				},
			},
		}},
	}
	_, err = c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do()
	if err := c.observe("delete_row", err); err != nil {
		return fmt.Errorf("sheets: delete row %d of %s: %w", rowIndex, sheet, err)
	}
	return nil
}

// SheetTitles lists worksheet titles in spreadsheet order.
func (c *Client) SheetTitles(ctx context.Context) ([]string, error) {
	resp, err := c.svc.Spreadsheets.Get(c.spreadsheetID).
		Fields("sheets.properties").Context(ctx).Do()
	if err := c.observe("sheet_titles", err); err != nil {
		return nil, fmt.Errorf("sheets: list titles: %w", err)
	}
	titles := make([]string, 0, len(resp.Sheets))
	for _, s := range resp.Sheets {
		titles = append(titles, s.Properties.Title)
	}
	return titles, nil
}

// AddSheet creates a worksheet with the given grid size.
func (c *Client) AddSheet(ctx context.Context, title string, rows, cols int) error {
	req := &sheetsv4.BatchUpdateSpreadsheetRequest{
		Requests: []*sheetsv4.Request{{
			AddSheet: &sheetsv4.AddSheetRequest{
				Properties: &sheetsv4.SheetProperties{
					Title: title,
					GridProperties: &sheetsv4.GridProperties{
						RowCount:    int64(rows),
						ColumnCount: int64(cols),
					},
				},
			},
		}},
	}
	_, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do()
	if err := c.observe("add_sheet", err); err != nil {
		return fmt.Errorf("sheets: add sheet %s: %w", title, err)
	}
	return nil
}

func (c *Client) sheetID(ctx context.Context, title string) (int64, error) {
	resp, err := c.svc.Spreadsheets.Get(c.spreadsheetID).
		Fields("sheets.properties").Context(ctx).Do()
	if err := c.observe("sheet_titles", err); err != nil {
		return 0, fmt.Errorf("sheets: resolve sheet %s: %w", title, err)
	}
	for _, s := range resp.Sheets {
		if s.Properties.Title == title {
			return s.Properties.SheetId, nil
		}
	}
	return 0, fmt.Errorf("sheets: no sheet titled %q", title)
}

// observe records call metrics and passes the error through.
func (c *Client) observe(op string, err error) error {
	metrics.SheetsCallsTotal.WithLabelValues(op).Inc()
	if err != nil {
		metrics.SheetsErrorsTotal.WithLabelValues(op).Inc()
	}
	return err
}

func toCells(rows [][]string) [][]any {
	out := make([][]any, len(rows))
	for i, row := range rows {
		cells := make([]any, len(row))
		for j, v := range row {
			cells[j] = v
		}
		out[i] = cells
	}
	return out
}

// colName converts a 1-based column index to its A1 letter form.
func colName(col int) string {
	name := ""
	for col > 0 {
		col--
		name = string(rune('A'+col%26)) + name
		col /= 26
	}
	return name
}
