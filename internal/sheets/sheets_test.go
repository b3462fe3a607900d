package sheets

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	gsheets "google.golang.org/api/sheets/v4"

	"github.com/reinkaoss/sifting-tool/internal/columns"
)

func TestEncode(t *testing.T) {
	mode, values := Encode([]columns.Cell{columns.Literal("12.50"), columns.Literal("-ish"), columns.Literal("")})
	assert.Equal(t, InputRaw, mode)
	assert.Equal(t, []string{"12.50", "-ish", ""}, values)

	mode, values = Encode([]columns.Cell{
		columns.Formula("=1+1"), columns.Literal("=SUM(A1)"), columns.Literal("+44 7700"),
		columns.Literal("@me"), columns.Literal("plain"),
	})
	assert.Equal(t, InputUserEntered, mode)
	assert.Equal(t, []string{"=1+1", "'=SUM(A1)", "'+44 7700", "'@me", "plain"}, values)
}

func TestCredentials(t *testing.T) {
	const js = `{"type":"service_account","client_email":"a@b"}`

	b, err := Credentials(js, "")
	require.NoError(t, err)
	assert.JSONEq(t, js, string(b))

	b, err = Credentials(base64.StdEncoding.EncodeToString([]byte(js)), "")
	require.NoError(t, err)
	assert.JSONEq(t, js, string(b))

	path := filepath.Join(t.TempDir(), "sa.json")
	require.NoError(t, os.WriteFile(path, []byte(js), 0o600))
	b, err = Credentials("  ", path)
	require.NoError(t, err)
	assert.JSONEq(t, js, string(b))

	for name, raw := range map[string]string{
		"bad json":    `{"type":`,
		"not base64":  "%%%",
		"base64 junk": base64.StdEncoding.EncodeToString([]byte("nope")),
	} {
		_, err := Credentials(raw, "")
		assert.Error(t, err, name)
	}
	_, err = Credentials("", "")
	assert.Error(t, err)
	_, err = Credentials("", filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func tab(id int64, title string) *gsheets.Sheet {
	return &gsheets.Sheet{Properties: &gsheets.SheetProperties{SheetId: id, Title: title}}
}

func TestPickTitle(t *testing.T) {
	tabs := []*gsheets.Sheet{tab(0, "Form Responses 1"), tab(918, "Archive")}

	got, err := pickTitle(tabs, "")
	require.NoError(t, err)
	assert.Equal(t, "Form Responses 1", got)

	got, err = pickTitle(tabs, "918")
	require.NoError(t, err)
	assert.Equal(t, "Archive", got)

	_, err = pickTitle(tabs, "7")
	assert.Error(t, err)
	_, err = pickTitle(tabs, "abc")
	assert.Error(t, err)
	_, err = pickTitle(nil, "")
	assert.Error(t, err)

	bare := []*gsheets.Sheet{{}, {Properties: &gsheets.SheetProperties{SheetId: 5, Title: "Second"}}}
	_, err = pickTitle(bare, "")
	assert.ErrorContains(t, err, "no properties")
	got, err = pickTitle(bare, "5")
	require.NoError(t, err)
	assert.Equal(t, "Second", got)
}

func TestSheetRange(t *testing.T) {
	assert.Equal(t, "V2:AD2", sheetRange("", "V2:AD2"))
	assert.Equal(t, "'Form Responses 1'", sheetRange("Form Responses 1", ""))
	assert.Equal(t, "'Form Responses 1'!V2:AD2", sheetRange("Form Responses 1", "V2:AD2"))
}

func TestParseRowRange(t *testing.T) {
	start, end, row, err := parseRowRange("V7:AD7")
	require.NoError(t, err)
	assert.Equal(t, []int{22, 30, 7}, []int{start, end, row})

	start, end, row, err = parseRowRange("B3")
	require.NoError(t, err)
	assert.Equal(t, []int{2, 2, 3}, []int{start, end, row})

	for _, bad := range []string{"", "V7:AD8", "AD7:V7", "V:AD"} {
		_, _, _, err := parseRowRange(bad)
		assert.Error(t, err, bad)
	}
}

func TestMemStore(t *testing.T) {
	ctx := context.Background()
	m := NewMemStore([][]string{{"h1", "h2"}, {"a"}})
	boom := errors.New("quota")
	m.FailRows = map[int]error{5: boom}

	require.NoError(t, m.WriteCells(ctx, "C2:D2", []columns.Cell{columns.Literal("x"), columns.Formula("=1")}))
	require.NoError(t, m.WriteCells(ctx, "A4:B4", []columns.Cell{columns.Literal("y"), columns.Literal("z")}))
	assert.ErrorIs(t, m.WriteCells(ctx, "A5:A5", []columns.Cell{columns.Literal("q")}), boom)
	assert.ErrorContains(t, m.WriteCells(ctx, "A6:C6", []columns.Cell{columns.Literal("q")}), "holds 3 cells, got 1")

	rows, err := m.ReadRows(ctx, "")
	require.NoError(t, err)
	want := [][]string{{"h1", "h2"}, {"a", "", "x", "=1"}, nil, {"y", "z"}}
	if diff := cmp.Diff(want, rows); diff != "" {
		t.Errorf("rows mismatch (-want +got):\n%s", diff)
	}

	writes := m.Writes()
	require.Len(t, writes, 2)
	assert.Equal(t, InputUserEntered, writes[0].Mode)
	assert.Equal(t, InputRaw, writes[1].Mode)

	rows[0][0] = "mutated"
	again, _ := m.ReadRows(ctx, "")
	assert.Equal(t, "h1", again[0][0], "ReadRows returns a copy")
}

func formRow(first, sur string, analysis ...string) []string {
	r := make([]string, AnalysisStartColumn-1)
	r[2], r[3], r[4] = first, sur, strings.ToLower(first)+"@example.com"
	r[7], r[8] = "Leeds", "Physics"
	r[14], r[15], r[16] = "grid work", "net zero", "robotics club"
	r[19] = "2026-01-04"
	return append(r, analysis...)
}

func testRows() [][]string {
	return [][]string{
		{"header"},
		formRow("Ada", "Lovelace"),
		formRow("Alan", "Turing", "12.50", "Yes"),
		{"", "  ", ""},
		formRow("Grace", "Hopper", ""),
	}
}

func TestUnanalyzed(t *testing.T) {
	got := Unanalyzed(testRows(), AnalysisStartColumn)
	require.Len(t, got, 2)
	assert.Equal(t, 2, got[0].Row)
	assert.Equal(t, "Ada Lovelace", got[0].Name())
	assert.Equal(t, "Leeds", got[0].University)
	assert.Equal(t, "net zero", got[0].WhyCompany)
	assert.Equal(t, "2026-01-04", got[0].RegistrationDate)
	assert.Equal(t, 5, got[1].Row)
}

func TestAnalyzed(t *testing.T) {
	got := Analyzed(testRows(), AnalysisStartColumn)
	require.Len(t, got, 1)
	assert.Equal(t, 3, got[0].Row)
	assert.Equal(t, []string{"12.50", "Yes"}, got[0].Analysis)
}

func TestSelect(t *testing.T) {
	got, err := Select(testRows(), []int{5, 2, 5}, AnalysisStartColumn)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Grace Hopper", got[0].Name())
	assert.Equal(t, 2, got[1].Row)

	_, err = Select(testRows(), []int{1}, AnalysisStartColumn)
	assert.Error(t, err, "header row")
	_, err = Select(testRows(), []int{6}, AnalysisStartColumn)
	assert.Error(t, err, "beyond sheet")
}

func TestPromptData(t *testing.T) {
	p := ApplicantFromRow(formRow("Ada", "Lovelace"), 2, AnalysisStartColumn).PromptData()
	b, err := json.Marshal(p)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"Row":2`)
	assert.Contains(t, string(b), `"Name":"Ada Lovelace"`)
	assert.NotContains(t, string(b), "example.com", "contact details are not sent")
}

// fakeSheetsAPI serves the few Sheets endpoints SheetsStore uses.
type fakeSheetsAPI struct {
	mu      sync.Mutex
	updates []*http.Request
	bodies  []gsheets.ValueRange
}

func (f *fakeSheetsAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	switch {
	case strings.Contains(r.URL.Path, "/values/") && r.Method == http.MethodGet:
		_, _ = w.Write([]byte(`{"range":"Responses!A1:B2","values":[["h1","h2"],["a",3]]}`))
	case strings.Contains(r.URL.Path, "/values/") && r.Method == http.MethodPut:
		var vr gsheets.ValueRange
		_ = json.NewDecoder(r.Body).Decode(&vr)
		f.mu.Lock()
		f.updates = append(f.updates, r)
		f.bodies = append(f.bodies, vr)
		f.mu.Unlock()
		_, _ = w.Write([]byte(`{"updatedCells":2}`))
	default:
		_, _ = w.Write([]byte(`{"sheets":[{"properties":{"sheetId":0,"title":"Responses"}},{"properties":{"sheetId":42,"title":"Old"}}]}`))
	}
}

func TestSheetsStore_AgainstFakeAPI(t *testing.T) {
	api := &fakeSheetsAPI{}
	srv := httptest.NewServer(api)
	defer srv.Close()

	ctx := context.Background()
	c, err := newClient(ctx, "sheet-1", nil,
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()),
		option.WithoutAuthentication(),
	)
	require.NoError(t, err)

	store, err := c.Open(ctx, "", "42")
	require.NoError(t, err)

	rows, err := store.ReadRows(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"h1", "h2"}, {"a", "3"}}, rows)

	require.NoError(t, store.WriteCells(ctx, "V2:W2", []columns.Cell{columns.Literal("12.50"), columns.Formula("=1")}))
	require.Len(t, api.updates, 1)
	assert.Equal(t, InputUserEntered, api.updates[0].URL.Query().Get("valueInputOption"))
	assert.Equal(t, "'Old'!V2:W2", api.bodies[0].Range)
	assert.Equal(t, [][]interface{}{{"12.50", "=1"}}, api.bodies[0].Values)
}

func TestClientOpen_NoSpreadsheet(t *testing.T) {
	c := &Client{}
	_, err := c.Open(context.Background(), "", "")
	assert.ErrorIs(t, err, ErrNoSpreadsheet)
}
