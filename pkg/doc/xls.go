package doc

import (
	"bytes"
	"strings"

	"github.com/extrame/xls"
)

// colName converts a zero-based column index to the spreadsheet column id
// ("A", "B", …, "AA").
func colName(idx int) string {
	name := ""
	for idx >= 0 {
		name = string(rune('A'+idx%26)) + name
		idx = idx/26 - 1
	}
	return name
}

// extractXls reads a legacy binary workbook through the BIFF reader. The
// reader resolves typed cells (numbers, workbook-epoch dates, booleans) to
// display text; error cells come back empty. The same row caps and table
// reconstruction as the XML spreadsheet path apply.
func extractXls(data []byte, limits Limits) (string, error) {
	wb, err := xls.OpenReader(bytes.NewReader(data), "utf-8")
	if err != nil {
		return "", &StructureError{Format: "xls", Reason: "not a BIFF workbook: " + err.Error()}
	}
	if wb.NumSheets() == 0 {
		return "", &StructureError{Format: "xls", Reason: "workbook has no sheets"}
	}

	var blocks []string
	for i := 0; i < wb.NumSheets(); i++ {
		ws := wb.GetSheet(i)
		if ws == nil {
			continue
		}

		sheet := Sheet{Name: ws.Name}
		for r := 0; r <= int(ws.MaxRow) && len(sheet.Rows) <= limits.MaxRows; r++ {
			xr := ws.Row(r)
			if xr == nil {
				continue
			}
			var row Row
			// LastCol is one past the last populated cell.
			for c := xr.FirstCol(); c < xr.LastCol(); c++ {
				text := xr.Col(c)
				if strings.TrimSpace(text) == "" {
					continue
				}
				row = append(row, Cell{Col: colName(c), Text: text})
			}
			if len(row) > 0 {
				sheet.Rows = append(sheet.Rows, row)
			}
		}

		block := RenderSheet(sheet, limits.MaxRows)
		if block == "" {
			continue
		}
		if rs := []rune(block); len(rs) > limits.SheetBudget {
			block = string(rs[:limits.SheetBudget])
		}
		blocks = append(blocks, block)
	}

	return strings.Join(blocks, "\n\n"), nil
}
