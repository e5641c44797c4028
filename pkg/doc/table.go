package doc

import (
	"fmt"
	"html"
	"regexp"
	"strconv"
	"strings"
)

// Cell is one populated spreadsheet cell. Col is the column id ("A", "B", …);
// empty cells never appear in a Row.
type Cell struct {
	Col  string
	Text string
}

// Row is an ordered sequence of populated cells.
type Row []Cell

// Sheet is one worksheet's populated grid in row order.
type Sheet struct {
	Name string
	Rows []Row
}

const (
	// cellMaxLen bounds a single rendered cell value.
	cellMaxLen = 120

	// headerLikeRatio is the share of first-row values that must look like
	// labels before the row is treated as a header.
	headerLikeRatio = 0.6
)

var (
	datePattern    = regexp.MustCompile(`^\d{4}[-/.]\d{1,2}[-/.]\d{1,2}$|^\d{1,2}[-/.]\d{1,2}[-/.]\d{2,4}$`)
	numericPattern = regexp.MustCompile(`^[+-]?[\d,]+(\.\d+)?%?$`)
	spacePattern   = regexp.MustCompile(`\s+`)
)

// normalizeCell unescapes entities, collapses whitespace and bounds the
// value length. Returns "" for values that are pure whitespace.
func normalizeCell(s string) string {
	s = html.UnescapeString(s)
	s = strings.TrimSpace(spacePattern.ReplaceAllString(s, " "))
	r := []rune(s)
	if len(r) > cellMaxLen {
		s = string(r[:cellMaxLen]) + "…"
	}
	return s
}

// headerLike reports whether a cell value reads like a column label rather
// than data: short, not a number, not a date, not a boolean literal.
func headerLike(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" || len([]rune(s)) > 40 {
		return false
	}
	if numericPattern.MatchString(s) {
		return false
	}
	if _, err := strconv.ParseFloat(s, 64); err == nil {
		return false
	}
	if datePattern.MatchString(s) {
		return false
	}
	switch strings.ToLower(s) {
	case "true", "false", "yes", "no":
		return false
	}
	return true
}

// detectHeader inspects the first row of a sheet. When at least two cells are
// populated and 60% of them look header-like, it returns a column-id → label
// map; duplicate labels get a numeric suffix so no two columns collide.
func detectHeader(first Row) map[string]string {
	var populated, like int
	for _, c := range first {
		v := normalizeCell(c.Text)
		if v == "" {
			continue
		}
		populated++
		if headerLike(v) {
			like++
		}
	}
	if populated < 2 || float64(like) < headerLikeRatio*float64(populated) {
		return nil
	}

	labels := make(map[string]string, populated)
	seen := make(map[string]int, populated)
	for _, c := range first {
		v := normalizeCell(c.Text)
		if v == "" {
			continue
		}
		seen[v]++
		if n := seen[v]; n > 1 {
			v = fmt.Sprintf("%s_%d", v, n)
		}
		labels[c.Col] = v
	}
	return labels
}

// RenderSheet turns a populated grid into human-readable row lines. With a
// detected header the first row becomes labels and each data row renders as
// "label:value" pairs; without one, bare values are joined. Cells whose value
// is empty, or equals its own label, are omitted. At most maxRows data rows
// render, header excluded; 0 means unlimited. A sheet that produces no data
// lines renders as "".
func RenderSheet(s Sheet, maxRows int) string {
	if len(s.Rows) == 0 {
		return ""
	}

	labels := detectHeader(s.Rows[0])
	rows := s.Rows
	if labels != nil {
		rows = rows[1:]
	}
	if maxRows > 0 && len(rows) > maxRows {
		rows = rows[:maxRows]
	}

	var lines []string
	for _, row := range rows {
		var parts []string
		for _, c := range row {
			v := normalizeCell(c.Text)
			if v == "" {
				continue
			}
			if labels != nil {
				label := labels[c.Col]
				if label == "" {
					parts = append(parts, v)
					continue
				}
				if label == v {
					continue
				}
				parts = append(parts, label+":"+v)
			} else {
				parts = append(parts, v)
			}
		}
		if len(parts) > 0 {
			lines = append(lines, strings.Join(parts, " "))
		}
	}
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n")
}
