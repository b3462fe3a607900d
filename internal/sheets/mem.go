package sheets

import (
	"context"
	"fmt"
	"sync"

	"github.com/reinkaoss/sifting-tool/internal/columns"
)

// Write records one WriteCells call on a MemStore.
type Write struct {
	Range string
	Mode  string
	Cells []columns.Cell
}

// MemStore is an in-memory Store. It also implements Opener, returning
// itself for every spreadsheet and tab.
type MemStore struct {
	mu     sync.Mutex
	rows   [][]string
	writes []Write
	// FailRows makes WriteCells fail for the listed 1-based rows.
	FailRows map[int]error
}

// NewMemStore returns a store holding a copy of rows; rows[0] is sheet row 1.
func NewMemStore(rows [][]string) *MemStore {
	m := &MemStore{}
	for _, r := range rows {
		m.rows = append(m.rows, append([]string(nil), r...))
	}
	return m
}

// Open implements Opener.
func (m *MemStore) Open(context.Context, string, string) (Store, error) { return m, nil }

// ReadRows implements Store. Only whole-sheet reads are supported; rng is
// ignored.
func (m *MemStore) ReadRows(_ context.Context, _ string) ([][]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]string, len(m.rows))
	for i, r := range m.rows {
		out[i] = append([]string(nil), r...)
	}
	return out, nil
}

// WriteCells implements Store. Cells are stored as the values the remote
// store would receive. Like the remote store, it rejects a range whose
// width differs from len(cells).
func (m *MemStore) WriteCells(_ context.Context, rng string, cells []columns.Cell) error {
	startCol, endCol, row, err := parseRowRange(rng)
	if err != nil {
		return err
	}
	if width := endCol - startCol + 1; width != len(cells) {
		return fmt.Errorf("sheets: range %s holds %d cells, got %d", rng, width, len(cells))
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.FailRows[row]; err != nil {
		return err
	}
	mode, values := Encode(cells)
	for len(m.rows) < row {
		m.rows = append(m.rows, nil)
	}
	r := m.rows[row-1]
	if need := startCol - 1 + len(values); len(r) < need {
		r = append(r, make([]string, need-len(r))...)
	}
	copy(r[startCol-1:], values)
	m.rows[row-1] = r
	m.writes = append(m.writes, Write{Range: rng, Mode: mode, Cells: append([]columns.Cell(nil), cells...)})
	return nil
}

// Writes returns every WriteCells call so far.
func (m *MemStore) Writes() []Write {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Write(nil), m.writes...)
}
