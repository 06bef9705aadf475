package output

import (
	"io"
	"strings"

	"github.com/mattn/go-runewidth"
)

const columnGap = "  "

// Table lays out rows in columns aligned by display width, so wide runes in
// container paths or labels do not skew the layout.
type Table struct {
	headers []string
	rows    [][]string
	// MaxCellWidth truncates cells wider than this many columns. Zero disables.
	MaxCellWidth int
}

// NewTable returns a table with the given header row.
func NewTable(headers ...string) *Table {
	return &Table{headers: headers}
}

// Row appends a row. Missing cells render empty; extra cells are dropped.
func (t *Table) Row(cells ...string) {
	row := make([]string, len(t.headers))
	copy(row, cells)
	t.rows = append(t.rows, row)
}

// Len returns the number of data rows.
func (t *Table) Len() int {
	return len(t.rows)
}

// Render writes the table to w. The last column is never padded.
func (t *Table) Render(w io.Writer) error {
	all := append([][]string{t.headers}, t.rows...)

	for _, row := range all {
		for i, cell := range row {
			row[i] = t.fit(cell)
		}
	}

	widths := make([]int, len(t.headers))
	for _, row := range all {
		for i, cell := range row {
			widths[i] = max(widths[i], runewidth.StringWidth(cell))
		}
	}

	var sb strings.Builder
	for _, row := range all {
		for i, cell := range row {
			if i == len(row)-1 {
				sb.WriteString(cell)
				break
			}

			sb.WriteString(runewidth.FillRight(cell, widths[i]))
			sb.WriteString(columnGap)
		}

		sb.WriteString("\n")
	}

	_, err := io.WriteString(w, sb.String())

	return err
}

func (t *Table) fit(cell string) string {
	cell = strings.ReplaceAll(cell, "\n", " ")
	if t.MaxCellWidth > 0 && runewidth.StringWidth(cell) > t.MaxCellWidth {
		return runewidth.Truncate(cell, t.MaxCellWidth, "…")
	}

	return cell
}

// Table writes t to stdout (respects quiet mode).
func (w *Writer) Table(t *Table) error {
	if w.Quiet {
		return nil
	}

	return t.Render(w.Out)
}
