package drilldown

import "github.com/okian/credash/internal/domain/model"

// Detail is the drill-down data for one selection. Each Done flag turns true
// once its fetch finished, with data or with an error.
type Detail struct {
	History         []model.HistoryEntry
	HistoryErr      error
	HistoryDone     bool
	Explanation     []model.DriverExplanation
	ExplanationErr  error
	ExplanationDone bool
}

// Loading reports whether either field is still in flight.
func (d Detail) Loading() bool { return !d.HistoryDone || !d.ExplanationDone }

// State is a point-in-time copy of the controller.
type State struct {
	// Selected is nil when nothing is selected.
	Selected   *model.ScoreRecord
	Generation uint64
	// Detail is nil when nothing is selected.
	Detail *Detail
}
