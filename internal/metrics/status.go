package metrics

import "sort"

// ErrorCount is one row of the failure breakdown.
type ErrorCount struct {
	Label string
	Count int64
}

// FlattenErrors converts a label->count map into rows sorted by descending
// count, then by label for stability.
func FlattenErrors(errs map[string]int64) []ErrorCount {
	if len(errs) == 0 {
		return nil
	}
	rows := make([]ErrorCount, 0, len(errs))
	for label, count := range errs {
		rows = append(rows, ErrorCount{Label: label, Count: count})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Count == rows[j].Count {
			return rows[i].Label < rows[j].Label
		}
		return rows[i].Count > rows[j].Count
	})
	return rows
}
