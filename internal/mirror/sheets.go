package mirror

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

const lastColumn = "J"

// SheetsClient はGoogleスプレッドシートのワークシートを RowStore として扱います
// ワークシートとヘッダー行がなければ初回アクセス時に作成します
type SheetsClient struct {
	svc           *sheets.Service
	spreadsheetID string
	worksheet     string

	mu    sync.Mutex
	ready bool
}

// NewSheetsClient は新しいSheetsClientを作成します
func NewSheetsClient(ctx context.Context, spreadsheetID, worksheet string, opts ...option.ClientOption) (*SheetsClient, error) {
	svc, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}
	return &SheetsClient{svc: svc, spreadsheetID: spreadsheetID, worksheet: worksheet}, nil
}

// NewSheetsClientFromFile はサービスアカウントの認証情報ファイルからSheetsClientを作成します
func NewSheetsClientFromFile(ctx context.Context, credentialsPath, spreadsheetID, worksheet string) (*SheetsClient, error) {
	return NewSheetsClient(ctx, spreadsheetID, worksheet,
		option.WithCredentialsFile(credentialsPath),
		option.WithScopes(sheets.SpreadsheetsScope),
	)
}

func (c *SheetsClient) rangeOf(cells string) string {
	return fmt.Sprintf("'%s'!%s", strings.ReplaceAll(c.worksheet, "'", "''"), cells)
}

func (c *SheetsClient) ensure(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ready {
		return nil
	}

	doc, err := c.svc.Spreadsheets.Get(c.spreadsheetID).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to get spreadsheet: %w", err)
	}

	exists := false
	for _, sh := range doc.Sheets {
		if sh.Properties != nil && sh.Properties.Title == c.worksheet {
			exists = true
			break
		}
	}

	if !exists {
		req := &sheets.BatchUpdateSpreadsheetRequest{
			Requests: []*sheets.Request{{
				AddSheet: &sheets.AddSheetRequest{Properties: &sheets.SheetProperties{Title: c.worksheet}},
			}},
		}
		if _, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
			return fmt.Errorf("failed to create worksheet %s: %w", c.worksheet, err)
		}
		log.Printf("Created worksheet %s", c.worksheet)
	} else {
		head, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, c.rangeOf("A1:"+lastColumn+"1")).Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("failed to read header: %w", err)
		}
		if len(head.Values) > 0 {
			c.ready = true
			return nil
		}
	}

	header := &sheets.ValueRange{Values: [][]interface{}{toCells(Header)}}
	if _, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, c.rangeOf("A1"), header).
		ValueInputOption("RAW").Context(ctx).Do(); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	c.ready = true
	return nil
}

func (c *SheetsClient) AppendRow(ctx context.Context, row []string) error {
	if err := c.ensure(ctx); err != nil {
		return err
	}
	vr := &sheets.ValueRange{Values: [][]interface{}{toCells(row)}}
	_, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, c.rangeOf("A1"), vr).
		ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to append row: %w", err)
	}
	return nil
}

func (c *SheetsClient) Rows(ctx context.Context) ([][]string, error) {
	if err := c.ensure(ctx); err != nil {
		return nil, err
	}
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, c.rangeOf("A2:"+lastColumn)).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}
	rows := make([][]string, 0, len(resp.Values))
	for _, values := range resp.Values {
		row := make([]string, len(values))
		for i, v := range values {
			row[i] = fmt.Sprint(v)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (c *SheetsClient) UpdateRow(ctx context.Context, index int, row []string) error {
	if err := c.ensure(ctx); err != nil {
		return err
	}
	n := index + 2
	vr := &sheets.ValueRange{Values: [][]interface{}{toCells(row)}}
	_, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, c.rangeOf(fmt.Sprintf("A%d:%s%d", n, lastColumn, n)), vr).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to update row %d: %w", n, err)
	}
	return nil
}

func (c *SheetsClient) ReplaceAll(ctx context.Context, rows [][]string) error {
	if err := c.ensure(ctx); err != nil {
		return err
	}
	if _, err := c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, c.rangeOf("A2:"+lastColumn), &sheets.ClearValuesRequest{}).
		Context(ctx).Do(); err != nil {
		return fmt.Errorf("failed to clear rows: %w", err)
	}
	if len(rows) == 0 {
		return nil
	}
	values := make([][]interface{}, 0, len(rows))
	for _, row := range rows {
		values = append(values, toCells(row))
	}
	if _, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, c.rangeOf("A2"), &sheets.ValueRange{Values: values}).
		ValueInputOption("RAW").Context(ctx).Do(); err != nil {
		return fmt.Errorf("failed to write rows: %w", err)
	}
	return nil
}

func toCells(row []string) []interface{} {
	cells := make([]interface{}, len(row))
	for i, v := range row {
		cells[i] = v
	}
	return cells
}
