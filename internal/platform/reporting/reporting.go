// Package reporting renders tabular reports as xlsx workbooks.
package reporting

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"
)

// ContentTypeXLSX is the MIME type of the generated workbooks.
const ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// DateFormat is used for time.Time cells.
const DateFormat = "2006-01-02 15:04"

// Sheet is one worksheet: a header row followed by data rows. Widths are
// optional per-column widths.
type Sheet struct {
	Name    string
	Headers []string
	Widths  []float64
	Rows    [][]interface{}
}

// AddRow appends one data row.
func (s *Sheet) AddRow(values ...interface{}) {
	s.Rows = append(s.Rows, values)
}

// Workbook renders sheets in order into an xlsx file. The first sheet is
// active and every sheet has its header row frozen.
func Workbook(sheets ...Sheet) ([]byte, error) {
	if len(sheets) == 0 {
		return nil, errors.New("workbook needs at least one sheet")
	}

	f := excelize.NewFile()
	defer f.Close()

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "#FFFFFF"},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#B71C1C"},
			Pattern: 1,
		},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
		},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return nil, fmt.Errorf("create header style: %w", err)
	}

	for i, sh := range sheets {
		if sh.Name == "" {
			return nil, fmt.Errorf("sheet %d has no name", i)
		}
		idx, err := f.NewSheet(sh.Name)
		if err != nil {
			return nil, fmt.Errorf("create sheet %q: %w", sh.Name, err)
		}
		if i == 0 {
			f.SetActiveSheet(idx)
		}
		if err := writeSheet(f, sh, headerStyle); err != nil {
			return nil, fmt.Errorf("sheet %q: %w", sh.Name, err)
		}
	}

	// NewFile always creates Sheet1; drop it unless a caller asked for it.
	if sheets[0].Name != "Sheet1" && !hasSheet(sheets, "Sheet1") {
		if err := f.DeleteSheet("Sheet1"); err != nil {
			return nil, fmt.Errorf("delete default sheet: %w", err)
		}
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func hasSheet(sheets []Sheet, name string) bool {
	for _, s := range sheets {
		if s.Name == name {
			return true
		}
	}
	return false
}

func writeSheet(f *excelize.File, sh Sheet, headerStyle int) error {
	for col, header := range sh.Headers {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sh.Name, cell, header); err != nil {
			return err
		}
		if err := f.SetCellStyle(sh.Name, cell, cell, headerStyle); err != nil {
			return err
		}
	}

	for i, w := range sh.Widths {
		if w <= 0 {
			continue
		}
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		if err := f.SetColWidth(sh.Name, col, col, w); err != nil {
			return err
		}
	}

	for r, row := range sh.Rows {
		for c, v := range row {
			if v == nil {
				continue
			}
			cell, err := excelize.CoordinatesToCellName(c+1, r+2)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sh.Name, cell, cellValue(v)); err != nil {
				return fmt.Errorf("set %s: %w", cell, err)
			}
		}
	}

	if len(sh.Headers) > 0 {
		return f.SetPanes(sh.Name, &excelize.Panes{
			Freeze:      true,
			YSplit:      1,
			TopLeftCell: "A2",
			ActivePane:  "bottomLeft",
		})
	}
	return nil
}

// cellValue formats values excelize would otherwise store awkwardly.
func cellValue(v interface{}) interface{} {
	switch t := v.(type) {
	case time.Time:
		if t.IsZero() {
			return ""
		}
		return t.UTC().Format(DateFormat)
	case *time.Time:
		if t == nil || t.IsZero() {
			return ""
		}
		return t.UTC().Format(DateFormat)
	case *string:
		if t == nil {
			return ""
		}
		return *t
	case fmt.Stringer:
		return t.String()
	default:
		return v
	}
}
