package service_test

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/credash/internal/adapters/http/stub"
	"github.com/okian/credash/internal/adapters/transport"
	service "github.com/okian/credash/internal/app"
	"github.com/okian/credash/internal/domain/listsync"
	"github.com/okian/credash/internal/domain/model"
	"github.com/okian/credash/internal/fetch"
)

func TestServiceIntegration(t *testing.T) {
	Convey("Given a dashboard wired to the stub backend over HTTP and websocket", t, func() {
		store := stub.NewStore(3, 11, nil)
		backend := stub.NewServer(store, stub.WithPushTick(10*time.Millisecond))
		srv := httptest.NewServer(backend.Handler())
		defer srv.Close()
		defer backend.Close()

		client := transport.NewClient(srv.URL, srv.URL+stub.APIPrefix)
		dialer, err := transport.NewDialer("ws" + strings.TrimPrefix(srv.URL, "http") + stub.PushPath)
		So(err, ShouldBeNil)

		svc := service.New(client,
			service.WithFetchConfig(fetch.Config{MaxAttempts: 2, BaseDelay: 5 * time.Millisecond, BackoffMultiplier: 2, Timeout: 2 * time.Second}),
			service.WithPushDialer(dialer))
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()

		So(eventually(func() bool {
			m := svc.View()
			return m.Status == listsync.StatusSynced && m.Push == listsync.PushConnected && len(m.Rows) == 3
		}), ShouldBeTrue)

		Convey("When the backend produces new scores", func() {
			initial := svc.View().Rows
			store.Generate()

			Convey("Then the push notification refreshes the list", func() {
				So(eventually(func() bool {
					rows := svc.View().Rows
					return len(rows) == 3 && rows[0].ScoreID > initial[0].ScoreID
				}), ShouldBeTrue)
				for _, r := range svc.View().Rows {
					So(r.ScoreID, ShouldBeGreaterThan, model.ID(3))
				}
			})
		})

		Convey("When the user drills into a row", func() {
			So(svc.Enqueue(ctx, model.Action{Kind: model.ActionSelect, Index: 2}), ShouldBeNil)

			Convey("Then history and drivers arrive for that issuer", func() {
				So(eventually(func() bool {
					d := svc.View().Detail
					return d != nil && !d.Loading
				}), ShouldBeTrue)
				d := svc.View().Detail
				So(d.TrendErr, ShouldBeEmpty)
				So(d.DriversErr, ShouldBeEmpty)
				So(d.Trend, ShouldNotBeEmpty)
				So(d.Drivers, ShouldNotBeEmpty)
				So(d.Row.ScoreID, ShouldEqual, svc.View().Rows[1].ScoreID)
			})
		})

		Convey("When the backend goes away", func() {
			backend.Close()
			srv.CloseClientConnections()
			srv.Close()
			So(svc.Enqueue(ctx, model.Action{Kind: model.ActionRefresh}), ShouldBeNil)

			Convey("Then the last known scores stay on screen", func() {
				So(eventually(func() bool { return svc.View().Status == listsync.StatusDegraded }), ShouldBeTrue)
				m := svc.View()
				So(m.Rows, ShouldHaveLength, 3)
				So(m.ErrorKind, ShouldEqual, "network")
			})
		})
	})
}
