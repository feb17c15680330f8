// Package view projects sync and drill-down state into a render model.
package view

import (
	"math"
	"sort"
	"time"

	"github.com/okian/credash/internal/domain/drilldown"
	"github.com/okian/credash/internal/domain/listsync"
	"github.com/okian/credash/internal/domain/model"
	"github.com/okian/credash/internal/fetch"
)

// DefaultTopDrivers matches the backend's own explain cut.
const DefaultTopDrivers = 8

// Status lines shown above the list.
const (
	StatusLineConnecting = "Connecting to backend..."
	StatusLineSynced     = "Backend connected"
	StatusLineDegraded   = "Could not reach backend, showing last known scores"
)

// Options tune the projection.
type Options struct {
	// TopDrivers truncates the driver list. Zero selects DefaultTopDrivers,
	// a negative value shows all.
	TopDrivers int
	// Banner is the backend health message, if known.
	Banner string
}

// Row is one line of the score list.
type Row struct {
	ScoreID    model.ID
	IssuerID   model.ID
	Issuer     string
	AssetClass string
	Score      float64
	TS         time.Time
	Selected   bool
}

// Detail is the drill-down panel.
type Detail struct {
	Row     Row
	Loading bool

	// Trend is ascending by time.
	Trend        []model.HistoryEntry
	TrendLoading bool
	TrendErr     string

	// Drivers are ranked by |shap|, ties by feature name.
	Drivers        []model.DriverExplanation
	DriversTotal   int
	DriversLoading bool
	DriversErr     string
}

// Model is everything the renderer needs.
type Model struct {
	Banner     string
	Status     listsync.Status
	StatusLine string
	// ErrorKind names the failure while degraded.
	ErrorKind  string
	Push       listsync.PushState
	LastSynced time.Time
	// Notice is a one-off message for the user, such as a rejected command.
	Notice string
	// Rows are newest first.
	Rows   []Row
	Detail *Detail
}

// Project builds the render model. It does not modify its inputs.
func Project(sync listsync.State, dd drilldown.State, opts Options) Model {
	m := Model{
		Banner:     opts.Banner,
		Status:     sync.Status,
		StatusLine: statusLine(sync.Status),
		Push:       sync.Push,
		LastSynced: sync.LastSynced,
	}
	if sync.Status == listsync.StatusDegraded && sync.LastError != nil {
		m.ErrorKind = fetch.KindOf(sync.LastError).String()
	}

	var selected model.ID
	hasSelection := dd.Selected != nil
	if hasSelection {
		selected = dd.Selected.ScoreID
	}

	m.Rows = make([]Row, 0, len(sync.Records))
	for _, r := range sync.Records {
		row := rowOf(r)
		row.Selected = hasSelection && r.ScoreID == selected
		m.Rows = append(m.Rows, row)
	}
	SortRows(m.Rows)

	if hasSelection && dd.Detail != nil {
		m.Detail = projectDetail(*dd.Selected, *dd.Detail, opts.TopDrivers)
	}
	return m
}

func statusLine(s listsync.Status) string {
	switch s {
	case listsync.StatusSynced:
		return StatusLineSynced
	case listsync.StatusDegraded:
		return StatusLineDegraded
	default:
		return StatusLineConnecting
	}
}

func rowOf(r model.ScoreRecord) Row {
	return Row{
		ScoreID:    r.ScoreID,
		IssuerID:   r.IssuerID,
		Issuer:     r.Issuer,
		AssetClass: r.AssetClass,
		Score:      r.Score,
		TS:         r.TS.Time,
	}
}

func projectDetail(sel model.ScoreRecord, d drilldown.Detail, top int) *Detail {
	out := &Detail{
		Row:            rowOf(sel),
		Loading:        d.Loading(),
		TrendLoading:   !d.HistoryDone,
		DriversLoading: !d.ExplanationDone,
	}
	out.Row.Selected = true
	if d.HistoryErr != nil {
		out.TrendErr = fetch.KindOf(d.HistoryErr).String()
	}
	if d.ExplanationErr != nil {
		out.DriversErr = fetch.KindOf(d.ExplanationErr).String()
	}

	out.Trend = append([]model.HistoryEntry(nil), d.History...)
	SortHistory(out.Trend)

	out.Drivers = append([]model.DriverExplanation(nil), d.Explanation...)
	SortDrivers(out.Drivers)
	out.DriversTotal = len(out.Drivers)
	if top == 0 {
		top = DefaultTopDrivers
	}
	if top > 0 && len(out.Drivers) > top {
		out.Drivers = out.Drivers[:top]
	}
	return out
}

// SortRows orders rows newest first, ties by score id descending.
func SortRows(rows []Row) {
	sort.SliceStable(rows, func(i, j int) bool {
		if !rows[i].TS.Equal(rows[j].TS) {
			return rows[i].TS.After(rows[j].TS)
		}
		return rows[i].ScoreID > rows[j].ScoreID
	})
}

// SortHistory orders entries oldest first, ties by id.
func SortHistory(h []model.HistoryEntry) {
	sort.SliceStable(h, func(i, j int) bool {
		if !h[i].TS.Equal(h[j].TS.Time) {
			return h[i].TS.Before(h[j].TS.Time)
		}
		return h[i].ID < h[j].ID
	})
}

// SortDrivers ranks by |shap| descending, ties by feature ascending.
func SortDrivers(d []model.DriverExplanation) {
	sort.SliceStable(d, func(i, j int) bool {
		ai, aj := math.Abs(d[i].Shap), math.Abs(d[j].Shap)
		if ai != aj {
			return ai > aj
		}
		return d[i].Feature < d[j].Feature
	})
}
