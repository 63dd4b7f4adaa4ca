// Package universe holds the asset universe and its returns history. The
// history repository validates windows for gaps; it never imputes missing
// data — gap-free input is the market-data collaborator's job.
package universe

import (
	"fmt"
	"math"
	"time"
)

// Asset is one investable instrument. Group is an optional sector/region tag
// used by concentration constraints.
type Asset struct {
	Symbol string `json:"symbol"`
	Group  string `json:"group,omitempty"`
}

// History is a time-indexed, asset-indexed table of periodic returns.
// Rows are periods in ascending date order, columns follow Assets.
type History struct {
	Assets  []Asset     `json:"assets"`
	Dates   []time.Time `json:"dates"`
	Returns [][]float64 `json:"returns"`
}

// NumPeriods returns the number of return rows.
func (h *History) NumPeriods() int { return len(h.Returns) }

// NumAssets returns the number of columns.
func (h *History) NumAssets() int { return len(h.Assets) }

// Symbols returns the column symbols in order.
func (h *History) Symbols() []string {
	out := make([]string, len(h.Assets))
	for i, a := range h.Assets {
		out[i] = a.Symbol
	}
	return out
}

// Window returns the half-open row range [from, to) as a History sharing the
// underlying slices.
func (h *History) Window(from, to int) *History {
	if from < 0 {
		from = 0
	}
	if to > len(h.Returns) {
		to = len(h.Returns)
	}
	if from > to {
		from = to
	}
	return &History{
		Assets:  h.Assets,
		Dates:   h.Dates[from:to],
		Returns: h.Returns[from:to],
	}
}

// Validate checks shape consistency and rejects gaps (NaN entries) and
// unordered dates.
func (h *History) Validate() error {
	if h.NumAssets() == 0 {
		return fmt.Errorf("history has no assets")
	}
	if h.NumPeriods() == 0 {
		return fmt.Errorf("history has no return rows")
	}
	if len(h.Dates) != len(h.Returns) {
		return fmt.Errorf("history has %d dates but %d return rows", len(h.Dates), len(h.Returns))
	}
	for i, row := range h.Returns {
		if len(row) != h.NumAssets() {
			return fmt.Errorf("return row %d has %d entries, want %d", i, len(row), h.NumAssets())
		}
		for j, r := range row {
			if math.IsNaN(r) || math.IsInf(r, 0) {
				return fmt.Errorf("gap in returns at row %d, asset %s", i, h.Assets[j].Symbol)
			}
		}
		if i > 0 && !h.Dates[i].After(h.Dates[i-1]) {
			return fmt.Errorf("dates not strictly ascending at row %d", i)
		}
	}
	return nil
}
