package analytics

import (
	"fmt"
	"strings"
)

// PivotTable lays a result out with one dimension across the top and
// every remaining combination as a row. Cells default to zero.
type PivotTable struct {
	RowDimensions []string   `json:"row_dimensions"`
	Columns       []string   `json:"columns"`
	Rows          []PivotRow `json:"rows"`
}

type PivotRow struct {
	Labels []string `json:"labels"`
	Cells  []int64  `json:"cells"`
	Total  int64    `json:"total"`
}

// Header is the flat export header: row dimension names followed by
// one column per pivoted value.
func (p PivotTable) Header() []string {
	header := make([]string, 0, len(p.RowDimensions)+len(p.Columns))
	header = append(header, p.RowDimensions...)
	header = append(header, p.Columns...)
	return header
}

// Pivot reshapes an aggregation result around one of its dimensions.
// With no dimensions at all, the result is a single-cell total.
func Pivot(res Result, column string) (PivotTable, error) {
	colIdx := -1
	for i, d := range res.Dimensions {
		if d.Name == column {
			colIdx = i
		}
	}
	if column != "" && colIdx < 0 {
		return PivotTable{}, fmt.Errorf("pivot dimension %q not in result", column)
	}

	var table PivotTable
	if colIdx < 0 {
		table.Columns = []string{"total"}
		table.Rows = []PivotRow{{Cells: []int64{res.Total()}, Total: res.Total()}}
		return table, nil
	}

	for i, d := range res.Dimensions {
		if i != colIdx {
			table.RowDimensions = append(table.RowDimensions, d.Name)
		}
	}
	table.Columns = res.Dimensions[colIdx].Values

	colPos := map[string]int{}
	for i, v := range table.Columns {
		colPos[v] = i
	}

	rowPos := map[string]int{}
	for _, b := range res.Buckets {
		labels := make([]string, 0, len(b.Values)-1)
		var colVal string
		for i, v := range b.Values {
			if i == colIdx {
				colVal = v
			} else {
				labels = append(labels, v)
			}
		}
		key := strings.Join(labels, "\x1f")
		ri, ok := rowPos[key]
		if !ok {
			ri = len(table.Rows)
			rowPos[key] = ri
			table.Rows = append(table.Rows, PivotRow{Labels: labels, Cells: make([]int64, len(table.Columns))})
		}
		table.Rows[ri].Cells[colPos[colVal]] += b.Count
		table.Rows[ri].Total += b.Count
	}
	return table, nil
}
