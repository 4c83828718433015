// Package sheetstest provides an in-memory spreadsheet for tests.
package sheetstest

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Fake implements the sheets.API interface against in-memory worksheets.
// Tests seed it with rows, point a store at it, and inspect the result.
// The zero value is empty and usable.
type Fake struct {
	mu     sync.Mutex
	sheets map[string][][]string
	titles []string

	// Err, when set, is returned by every data operation.
	Err error
	// probeErrs is consumed one per Probe call; nil entries succeed.
	probeErrs []error
	// opErrs fails operations matching a call prefix, see FailOp.
	opErrs map[string]error

	calls []string
}

// NewFake returns an empty in-memory spreadsheet.
func NewFake() *Fake {
	return &Fake{sheets: make(map[string][][]string)}
}

// Seed replaces the named sheet with a copy of rows, creating it if needed.
func (f *Fake) Seed(sheet string, rows [][]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.sheets[sheet]; !ok {
		f.titles = append(f.titles, sheet)
	}
	f.sheets[sheet] = copyRows(rows)
}

// Rows returns a copy of the named sheet's current contents.
func (f *Fake) Rows(sheet string) [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return copyRows(f.sheets[sheet])
}

// Calls returns the operations performed so far, in order.
func (f *Fake) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

// QueueProbeErr appends an outcome for a future Probe call.
func (f *Fake) QueueProbeErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.probeErrs = append(f.probeErrs, err)
}

// FailOp makes every operation whose log entry starts with prefix fail with
// err. Entries look like "read_all Members" or "update_cell Users 2 8", so a
// bare verb fails that operation on every sheet.
func (f *Fake) FailOp(prefix string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.opErrs == nil {
		f.opErrs = make(map[string]error)
	}
	f.opErrs[prefix] = err
}

// opErr resolves the error for one logged call. Caller holds the lock.
func (f *Fake) opErr(call string) error {
	if f.Err != nil {
		return f.Err
	}
	for prefix, err := range f.opErrs {
		if strings.HasPrefix(call, prefix) {
			return err
		}
	}
	return nil
}

func (f *Fake) Probe(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "probe")
	if len(f.probeErrs) > 0 {
		err := f.probeErrs[0]
		f.probeErrs = f.probeErrs[1:]
		return err
	}
	return nil
}

func (f *Fake) ReadAll(ctx context.Context, sheet string) ([][]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	call := "read_all " + sheet
	f.calls = append(f.calls, call)
	if err := f.opErr(call); err != nil {
		return nil, err
	}
	rows, ok := f.sheets[sheet]
	if !ok {
		return nil, fmt.Errorf("no sheet titled %q", sheet)
	}
	return copyRows(rows), nil
}

func (f *Fake) Overwrite(ctx context.Context, sheet string, rows [][]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	call := "overwrite " + sheet
	f.calls = append(f.calls, call)
	if err := f.opErr(call); err != nil {
		return err
	}
	if _, ok := f.sheets[sheet]; !ok {
		f.titles = append(f.titles, sheet)
	}
	f.sheets[sheet] = copyRows(rows)
	return nil
}

func (f *Fake) Append(ctx context.Context, sheet string, rows [][]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	call := "append " + sheet
	f.calls = append(f.calls, call)
	if err := f.opErr(call); err != nil {
		return err
	}
	if _, ok := f.sheets[sheet]; !ok {
		f.titles = append(f.titles, sheet)
	}
	f.sheets[sheet] = append(f.sheets[sheet], copyRows(rows)...)
	return nil
}

func (f *Fake) UpdateRow(ctx context.Context, sheet string, rowIndex int, row []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	call := fmt.Sprintf("update_row %s %d", sheet, rowIndex)
	f.calls = append(f.calls, call)
	if err := f.opErr(call); err != nil {
		return err
	}
	rows, ok := f.sheets[sheet]
	if !ok || rowIndex < 1 || rowIndex > len(rows) {
		return fmt.Errorf("row %d out of range in %q", rowIndex, sheet)
	}
	rows[rowIndex-1] = append([]string(nil), row...)
	return nil
}

func (f *Fake) UpdateCell(ctx context.Context, sheet string, rowIndex, colIndex int, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	call := fmt.Sprintf("update_cell %s %d %d", sheet, rowIndex, colIndex)
	f.calls = append(f.calls, call)
	if err := f.opErr(call); err != nil {
		return err
	}
	rows, ok := f.sheets[sheet]
	if !ok || rowIndex < 1 || rowIndex > len(rows) {
		return fmt.Errorf("row %d out of range in %q", rowIndex, sheet)
	}
	row := rows[rowIndex-1]
	for len(row) < colIndex {
		row = append(row, "")
	}
	row[colIndex-1] = value
	rows[rowIndex-1] = row
	return nil
}

func (f *Fake) DeleteRow(ctx context.Context, sheet string, rowIndex int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	call := fmt.Sprintf("delete_row %s %d", sheet, rowIndex)
	f.calls = append(f.calls, call)
	if err := f.opErr(call); err != nil {
		return err
	}
	rows, ok := f.sheets[sheet]
	if !ok || rowIndex < 1 || rowIndex > len(rows) {
		return fmt.Errorf("row %d out of range in %q", rowIndex, sheet)
	}
	f.sheets[sheet] = append(rows[:rowIndex-1], rows[rowIndex:]...)
	return nil
}

func (f *Fake) SheetTitles(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "sheet_titles")
	if err := f.opErr("sheet_titles"); err != nil {
		return nil, err
	}
	out := make([]string, len(f.titles))
	copy(out, f.titles)
	return out, nil
}

func (f *Fake) AddSheet(ctx context.Context, title string, rows, cols int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	call := "add_sheet " + title
	f.calls = append(f.calls, call)
	if err := f.opErr(call); err != nil {
		return err
	}
	if _, ok := f.sheets[title]; ok {
		return fmt.Errorf("sheet %q already exists", title)
	}
	f.titles = append(f.titles, title)
	f.sheets[title] = [][]string{}
	return nil
}

func copyRows(rows [][]string) [][]string {
	out := make([][]string, len(rows))
	for i, row := range rows {
		out[i] = append([]string(nil), row...)
	}
	return out
}
