// Package sheets reads applicant rows from, and writes analysis cells to,
// a spreadsheet. Store abstracts the backend; SheetsStore talks to the
// Google Sheets API and MemStore keeps everything in memory.
package sheets

import (
	"context"
	"fmt"
	"strings"

	"github.com/reinkaoss/sifting-tool/internal/columns"
)

// Store is a tabular store addressed with A1 ranges. Ranges never carry a
// sheet title; the store applies its own. An empty range means the whole
// sheet.
type Store interface {
	ReadRows(ctx context.Context, rng string) ([][]string, error)
	WriteCells(ctx context.Context, rng string, cells []columns.Cell) error
}

// Opener returns the Store for a spreadsheet and tab. Empty arguments
// select the configured spreadsheet and its first tab.
type Opener interface {
	Open(ctx context.Context, spreadsheetID, gid string) (Store, error)
}

// Value input modes of the Sheets API.
const (
	InputRaw         = "RAW"
	InputUserEntered = "USER_ENTERED"
)

// Encode chooses the input mode for cells and renders their values.
// Rows holding a formula are written USER_ENTERED; a literal in such a row
// that the store would evaluate (leading =, +, - or @) is quoted with an
// apostrophe so it stays text. Rows without formulas are written RAW.
func Encode(cells []columns.Cell) (mode string, values []string) {
	mode = InputRaw
	for _, c := range cells {
		if c.Formula {
			mode = InputUserEntered
			break
		}
	}
	values = make([]string, len(cells))
	for i, c := range cells {
		v := c.Value
		if mode == InputUserEntered && !c.Formula && needsQuote(v) {
			v = "'" + v
		}
		values[i] = v
	}
	return mode, values
}

func needsQuote(s string) bool {
	return s != "" && strings.ContainsRune("=+-@", rune(s[0]))
}

// sheetRange prefixes rng with the quoted title.
func sheetRange(title, rng string) string {
	if title == "" {
		return rng
	}
	if rng == "" {
		return columns.QuoteSheet(title)
	}
	return columns.QuoteSheet(title) + "!" + rng
}

// parseRowRange splits a single-row range such as "V7:AD7".
func parseRowRange(rng string) (startCol, endCol, row int, err error) {
	from, to, ok := strings.Cut(rng, ":")
	if !ok {
		to = from
	}
	startCol, row, err = columns.ParseCell(from)
	if err != nil {
		return 0, 0, 0, err
	}
	endCol, endRow, err := columns.ParseCell(to)
	if err != nil {
		return 0, 0, 0, err
	}
	if endRow != row || endCol < startCol {
		return 0, 0, 0, fmt.Errorf("sheets: range %q must cover one row left to right", rng)
	}
	return startCol, endCol, row, nil
}
