package compare

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
)

const separator = "=============="

// WriteText prints the baseline as "id distance content" lines, a separator,
// then one block per width of "baseline_id distance content" lines where
// baseline_id is the baseline id at the same rank ("-" when absent).
func WriteText(w io.Writer, cmp *Comparison) error {
	for _, n := range cmp.Baseline {
		if _, err := fmt.Fprintf(w, "%d %s %s\n", n.ID, formatDistance(n.Distance), n.Content); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintln(w, separator); err != nil {
		return err
	}

	for _, r := range cmp.Reduced {
		if _, err := fmt.Fprintf(w, ">> integral reduce to %d\n", int(r.Width)); err != nil {
			return err
		}
		for _, row := range r.Rows {
			baseline := "-"
			if row.BaselineID != nil {
				baseline = strconv.FormatInt(*row.BaselineID, 10)
			}
			if _, err := fmt.Fprintf(w, "%s %s %s\n", baseline, formatDistance(row.Distance), row.Content); err != nil {
				return err
			}
		}
	}
	return nil
}

// WriteJSON prints the comparison as indented JSON.
func WriteJSON(w io.Writer, cmp *Comparison) error {
	data, err := json.MarshalIndent(cmp, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal comparison: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func formatDistance(d float64) string {
	return strconv.FormatFloat(d, 'g', -1, 64)
}
