package sheets

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"
	"google.golang.org/api/option"
	gsheets "google.golang.org/api/sheets/v4"

	"github.com/reinkaoss/sifting-tool/internal/columns"
)

// ErrNoSpreadsheet is returned when no spreadsheet id was given or configured.
var ErrNoSpreadsheet = errors.New("sheets: no spreadsheet id")

// Credentials returns service-account JSON from raw (plain JSON or base64
// of it) or, when raw is empty, from the file at path.
func Credentials(raw, path string) ([]byte, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		if path == "" {
			return nil, errors.New("sheets: no service account credentials configured")
		}
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("sheets: read credentials: %w", err)
		}
		return b, nil
	}
	if strings.HasPrefix(raw, "{") {
		if !json.Valid([]byte(raw)) {
			return nil, errors.New("sheets: credentials are not valid JSON")
		}
		return []byte(raw), nil
	}
	b, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("sheets: credentials are neither JSON nor base64: %w", err)
	}
	if !json.Valid(b) {
		return nil, errors.New("sheets: decoded credentials are not valid JSON")
	}
	return b, nil
}

// Client opens SheetsStores over one authenticated Sheets service.
type Client struct {
	svc       *gsheets.Service
	defaultID string
	logger    *zap.Logger
}

// NewClient authenticates with credentials (service-account JSON).
// defaultID is used when Open is called without a spreadsheet id.
func NewClient(ctx context.Context, credentials []byte, defaultID string, logger *zap.Logger) (*Client, error) {
	return newClient(ctx, defaultID, logger,
		option.WithCredentialsJSON(credentials),
		option.WithScopes(gsheets.SpreadsheetsScope),
	)
}

func newClient(ctx context.Context, defaultID string, logger *zap.Logger, opts ...option.ClientOption) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc, err := gsheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("sheets: new service: %w", err)
	}
	return &Client{svc: svc, defaultID: defaultID, logger: logger.Named("sheets")}, nil
}

// Open implements Opener.
func (c *Client) Open(_ context.Context, spreadsheetID, gid string) (Store, error) {
	if spreadsheetID == "" {
		spreadsheetID = c.defaultID
	}
	if spreadsheetID == "" {
		return nil, ErrNoSpreadsheet
	}
	return &SheetsStore{svc: c.svc, id: spreadsheetID, gid: gid, logger: c.logger}, nil
}

// SheetsStore is a Store over one tab of a Google spreadsheet.
type SheetsStore struct {
	svc    *gsheets.Service
	id     string
	gid    string
	logger *zap.Logger

	once     sync.Once
	title    string
	titleErr error
}

// resolveTitle finds the tab title for the store's gid, or the first tab.
func (s *SheetsStore) resolveTitle(ctx context.Context) (string, error) {
	s.once.Do(func() {
		ss, err := s.svc.Spreadsheets.Get(s.id).Fields("sheets.properties").Context(ctx).Do()
		if err != nil {
			s.titleErr = fmt.Errorf("sheets: get %s: %w", s.id, err)
			return
		}
		s.title, s.titleErr = pickTitle(ss.Sheets, s.gid)
	})
	return s.title, s.titleErr
}

func pickTitle(tabs []*gsheets.Sheet, gid string) (string, error) {
	if len(tabs) == 0 {
		return "", errors.New("sheets: spreadsheet has no tabs")
	}
	if gid == "" {
		if tabs[0] == nil || tabs[0].Properties == nil {
			return "", errors.New("sheets: first tab has no properties")
		}
		return tabs[0].Properties.Title, nil
	}
	want, err := strconv.ParseInt(gid, 10, 64)
	if err != nil {
		return "", fmt.Errorf("sheets: invalid gid %q", gid)
	}
	for _, t := range tabs {
		if t != nil && t.Properties != nil && t.Properties.SheetId == want {
			return t.Properties.Title, nil
		}
	}
	return "", fmt.Errorf("sheets: no tab with gid %s", gid)
}

// ReadRows implements Store.
func (s *SheetsStore) ReadRows(ctx context.Context, rng string) ([][]string, error) {
	title, err := s.resolveTitle(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := s.svc.Spreadsheets.Values.Get(s.id, sheetRange(title, rng)).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("sheets: read %s: %w", rng, err)
	}
	rows := make([][]string, len(resp.Values))
	for i, r := range resp.Values {
		row := make([]string, len(r))
		for j, v := range r {
			row[j] = fmt.Sprint(v)
		}
		rows[i] = row
	}
	return rows, nil
}

// WriteCells implements Store.
func (s *SheetsStore) WriteCells(ctx context.Context, rng string, cells []columns.Cell) error {
	title, err := s.resolveTitle(ctx)
	if err != nil {
		return err
	}
	mode, values := Encode(cells)
	row := make([]interface{}, len(values))
	for i, v := range values {
		row[i] = v
	}
	full := sheetRange(title, rng)
	_, err = s.svc.Spreadsheets.Values.Update(s.id, full, &gsheets.ValueRange{
		Range:  full,
		Values: [][]interface{}{row},
	}).ValueInputOption(mode).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("sheets: write %s: %w", rng, err)
	}
	s.logger.Debug("cells written", zap.String("range", full), zap.String("mode", mode))
	return nil
}
