package doc

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// sharedStrings parses xl/sharedStrings.xml into the indexable string
// table. Rich-text entries (<si> with multiple <r><t> runs) concatenate.
func sharedStrings(zr *zip.Reader) ([]string, error) {
	part, err := readPart(zr, "xl/sharedStrings.xml")
	if err != nil {
		return nil, err
	}
	if part == nil {
		return nil, nil // no shared strings is legal
	}

	dec := xml.NewDecoder(bytes.NewReader(part))
	var (
		table   []string
		current strings.Builder
		inSI    bool
		inT     bool
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &StructureError{Format: "xlsx", Reason: "bad shared string table: " + err.Error()}
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "si":
				inSI = true
				current.Reset()
			case "t":
				inT = true
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "si":
				inSI = false
				table = append(table, current.String())
			case "t":
				inT = false
			}
		case xml.CharData:
			if inSI && inT {
				current.Write(t)
			}
		}
	}
	return table, nil
}

var sheetPartPattern = regexp.MustCompile(`^xl/worksheets/sheet(\d+)\.xml$`)

// xlsxCell mirrors the <c> worksheet element. The t attribute tags the
// value type; untyped cells hold raw numbers.
type xlsxCell struct {
	Ref    string `xml:"r,attr"`
	Type   string `xml:"t,attr"`
	Value  string `xml:"v"`
	Inline string `xml:"is>t"`
}

type xlsxRow struct {
	Cells []xlsxCell `xml:"c"`
}

type xlsxSheet struct {
	Rows []xlsxRow `xml:"sheetData>row"`
}

// cellColumn strips the row digits from a cell reference: "BC23" → "BC".
func cellColumn(ref string) string {
	for i, r := range ref {
		if r >= '0' && r <= '9' {
			return ref[:i]
		}
	}
	return ref
}

// resolveCell converts a typed cell to display text. Unknown type tags fall
// through to the raw value rather than being dropped silently.
func resolveCell(c xlsxCell, shared []string) string {
	switch c.Type {
	case "s":
		idx, err := strconv.Atoi(c.Value)
		if err != nil || idx < 0 || idx >= len(shared) {
			return ""
		}
		return shared[idx]
	case "inlineStr":
		return c.Inline
	case "b":
		if c.Value == "1" {
			return "TRUE"
		}
		return "FALSE"
	case "e":
		return "" // cell error values carry no content
	default: // "", "n", "str": numeric or formula result
		return c.Value
	}
}

// extractXlsx parses the shared string table once, then walks each
// worksheet part in numeric order, resolving cells into a grid for the
// table reconstructor. Row and character caps bound the output.
func extractXlsx(data []byte, limits Limits) (string, error) {
	zr, err := openContainer(data, "xlsx")
	if err != nil {
		return "", err
	}

	type numbered struct {
		n    int
		file *zip.File
	}
	var parts []numbered
	for _, f := range zr.File {
		if m := sheetPartPattern.FindStringSubmatch(f.Name); m != nil {
			n, _ := strconv.Atoi(m[1])
			parts = append(parts, numbered{n: n, file: f})
		}
	}
	if len(parts) == 0 {
		return "", &StructureError{Format: "xlsx", Reason: "no worksheet parts"}
	}
	sort.Slice(parts, func(i, j int) bool { return parts[i].n < parts[j].n })

	shared, err := sharedStrings(zr)
	if err != nil {
		return "", err
	}

	var blocks []string
	for _, p := range parts {
		rc, err := p.file.Open()
		if err != nil {
			continue
		}
		raw, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			continue
		}

		var ws xlsxSheet
		if err := xml.Unmarshal(raw, &ws); err != nil {
			continue // one broken sheet must not sink the workbook
		}

		sheet := Sheet{Name: "sheet" + strconv.Itoa(p.n)}
		for _, xr := range ws.Rows {
			if len(sheet.Rows) > limits.MaxRows {
				break
			}
			var row Row
			for _, c := range xr.Cells {
				text := resolveCell(c, shared)
				if strings.TrimSpace(text) == "" {
					continue
				}
				row = append(row, Cell{Col: cellColumn(c.Ref), Text: text})
			}
			if len(row) > 0 {
				sheet.Rows = append(sheet.Rows, row)
			}
		}

		block := RenderSheet(sheet, limits.MaxRows)
		if block == "" {
			continue
		}
		if r := []rune(block); len(r) > limits.SheetBudget {
			block = string(r[:limits.SheetBudget])
		}
		blocks = append(blocks, block)
	}

	return strings.Join(blocks, "\n\n"), nil
}
