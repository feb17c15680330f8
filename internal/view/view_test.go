package view

import (
	"errors"
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/credash/internal/domain/drilldown"
	"github.com/okian/credash/internal/domain/listsync"
	"github.com/okian/credash/internal/domain/model"
	"github.com/okian/credash/internal/fetch"
)

func ts(sec int64) model.Timestamp { return model.NewTimestamp(time.Unix(sec, 0).UTC()) }

func scoreRec(id, sec int64, issuer string) model.ScoreRecord {
	return model.ScoreRecord{ScoreID: model.ID(id), IssuerID: model.ID(id), Issuer: issuer, AssetClass: "corp", Score: 70, TS: ts(sec)}
}

func TestProjectRows(t *testing.T) {
	Convey("Given a synced list", t, func() {
		st := listsync.State{
			Status: listsync.StatusSynced,
			Records: []model.ScoreRecord{
				scoreRec(1, 100, "Acme"),
				scoreRec(2, 300, "Globex"),
				scoreRec(3, 200, "Initech"),
				scoreRec(4, 300, "Umbrella"),
			},
		}

		Convey("When projected without a selection", func() {
			m := Project(st, drilldown.State{}, Options{})

			Convey("Then rows are newest first with ties by score id descending", func() {
				var got []model.ID
				for _, r := range m.Rows {
					got = append(got, r.ScoreID)
				}
				So(got, ShouldResemble, []model.ID{4, 2, 3, 1})
				So(m.StatusLine, ShouldEqual, StatusLineSynced)
				So(m.Detail, ShouldBeNil)
			})

			Convey("Then the input is left untouched", func() {
				So(st.Records[0].ScoreID, ShouldEqual, model.ID(1))
			})
		})

		Convey("When a record is selected", func() {
			sel := st.Records[2]
			m := Project(st, drilldown.State{Selected: &sel, Generation: 1, Detail: &drilldown.Detail{}}, Options{})

			Convey("Then only that row is marked and the detail is loading", func() {
				for _, r := range m.Rows {
					So(r.Selected, ShouldEqual, r.ScoreID == 3)
				}
				So(m.Detail, ShouldNotBeNil)
				So(m.Detail.Loading, ShouldBeTrue)
				So(m.Detail.TrendLoading, ShouldBeTrue)
			})
		})
	})
}

func TestProjectStatus(t *testing.T) {
	Convey("Given each sync status", t, func() {
		Convey("Then connecting shows the connecting line", func() {
			m := Project(listsync.State{}, drilldown.State{}, Options{Banner: "Credit API up"})
			So(m.StatusLine, ShouldEqual, StatusLineConnecting)
			So(m.Banner, ShouldEqual, "Credit API up")
		})

		Convey("Then degraded names the error kind and keeps the rows", func() {
			m := Project(listsync.State{
				Status:    listsync.StatusDegraded,
				Records:   []model.ScoreRecord{scoreRec(1, 1, "Acme")},
				LastError: &fetch.FetchError{Op: "scores", Kind: fetch.KindTimeout, Attempts: 3, Cause: errors.New("slow")},
			}, drilldown.State{}, Options{})
			So(m.StatusLine, ShouldEqual, StatusLineDegraded)
			So(m.ErrorKind, ShouldEqual, "timeout")
			So(m.Rows, ShouldHaveLength, 1)
		})
	})
}

func TestProjectDetail(t *testing.T) {
	Convey("Given a loaded detail", t, func() {
		sel := scoreRec(7, 10, "Acme")
		detail := &drilldown.Detail{
			History: []model.HistoryEntry{
				{ID: 1, TS: ts(1), Score: 70},
				{ID: 2, TS: ts(3), Score: 75},
				{ID: 3, TS: ts(2), Score: 72},
			},
			HistoryDone: true,
			Explanation: []model.DriverExplanation{
				{Feature: "revenue", Value: 10, Shap: 0.4},
				{Feature: "dti", Value: 0.3, Shap: -0.4},
				{Feature: "leverage", Value: 2, Shap: 0.1},
				{Feature: "margin", Value: 0.2, Shap: -0.9},
			},
			ExplanationDone: true,
		}
		dd := drilldown.State{Selected: &sel, Generation: 3, Detail: detail}

		Convey("When projected", func() {
			m := Project(listsync.State{Status: listsync.StatusSynced, Records: []model.ScoreRecord{sel}}, dd, Options{})

			Convey("Then the trend is ascending by time", func() {
				var got []int64
				for _, h := range m.Detail.Trend {
					got = append(got, h.TS.Unix())
				}
				So(got, ShouldResemble, []int64{1, 2, 3})
			})

			Convey("Then drivers rank by magnitude with dti before revenue", func() {
				var got []string
				for _, d := range m.Detail.Drivers {
					got = append(got, d.Feature)
				}
				So(got, ShouldResemble, []string{"margin", "dti", "revenue", "leverage"})
				So(m.Detail.Loading, ShouldBeFalse)
			})

			Convey("Then the drill-down input is not reordered", func() {
				So(detail.History[1].ID, ShouldEqual, model.ID(2))
				So(detail.Explanation[0].Feature, ShouldEqual, "revenue")
			})
		})

		Convey("When truncated to two drivers", func() {
			m := Project(listsync.State{}, dd, Options{TopDrivers: 2})

			Convey("Then the strongest two remain and the total is kept", func() {
				So(m.Detail.Drivers, ShouldHaveLength, 2)
				So(m.Detail.DriversTotal, ShouldEqual, 4)
			})
		})

		Convey("When all drivers are requested", func() {
			m := Project(listsync.State{}, dd, Options{TopDrivers: -1})
			So(m.Detail.Drivers, ShouldHaveLength, 4)
		})

		Convey("When the history failed", func() {
			failed := *detail
			failed.History = nil
			failed.HistoryErr = &fetch.FetchError{Op: "history", Kind: fetch.KindServerError, Attempts: 3, Cause: errors.New("503")}
			m := Project(listsync.State{}, drilldown.State{Selected: &sel, Detail: &failed}, Options{})

			Convey("Then the drivers are still shown", func() {
				So(m.Detail.TrendErr, ShouldEqual, "server_error")
				So(m.Detail.Drivers, ShouldNotBeEmpty)
			})
		})
	})
}

func TestRender(t *testing.T) {
	Convey("Given a degraded model with a selection", t, func() {
		sel := scoreRec(7, 10, "Acme")
		m := Project(listsync.State{
			Status:    listsync.StatusDegraded,
			Records:   []model.ScoreRecord{sel, scoreRec(8, 20, "Globex")},
			LastError: &fetch.FetchError{Op: "scores", Kind: fetch.KindNetwork, Attempts: 3, Cause: errors.New("refused")},
		}, drilldown.State{Selected: &sel, Detail: &drilldown.Detail{
			History:         []model.HistoryEntry{{ID: 1, TS: ts(1), Score: 70}, {ID: 2, TS: ts(2), Score: 80}},
			HistoryDone:     true,
			ExplanationErr:  errors.New("boom"),
			ExplanationDone: true,
		}}, Options{Banner: "Credit API up"})

		out := Render(m, 100)

		Convey("Then the status, rows and detail are drawn", func() {
			So(out, ShouldContainSubstring, "Credit API up")
			So(out, ShouldContainSubstring, StatusLineDegraded)
			So(out, ShouldContainSubstring, "(network)")
			So(out, ShouldContainSubstring, "Globex")
			So(out, ShouldContainSubstring, "Trend")
			So(out, ShouldContainSubstring, "explanation unavailable")
			So(strings.Index(out, "Globex"), ShouldBeLessThan, strings.Index(out, "Acme"))
		})
	})

	Convey("Given an empty model", t, func() {
		out := Render(Project(listsync.State{}, drilldown.State{}, Options{}), 10)
		So(out, ShouldContainSubstring, StatusLineConnecting)
		So(out, ShouldContainSubstring, "No scores yet.")
	})
}

func TestSparkline(t *testing.T) {
	Convey("Given a trend", t, func() {
		h := []model.HistoryEntry{{Score: 70}, {Score: 80}, {Score: 75}}
		So(Sparkline(h), ShouldEqual, "▁█▄")
		So(Sparkline([]model.HistoryEntry{{Score: 5}, {Score: 5}}), ShouldEqual, "▁▁")
		So(Sparkline(nil), ShouldEqual, "")
	})
}
