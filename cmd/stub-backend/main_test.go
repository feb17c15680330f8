package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/okian/credash/internal/adapters/http/stub"
	"github.com/smartystreets/goconvey/convey"
)

func TestNewServer(t *testing.T) {
	convey.Convey("Given the stub backend server", t, func() {
		store := stub.NewStore(3, 1, func() time.Time { return time.Unix(1_700_000_000, 0) })
		api := stub.NewServer(store)
		defer api.Close()
		srv := newServer(":0", api)

		convey.Convey("Then the API routes are mounted", func() {
			rec := httptest.NewRecorder()
			srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, stub.APIPrefix+"/scores", nil))
			convey.So(rec.Code, convey.ShouldEqual, http.StatusOK)

			var rows []map[string]any
			convey.So(json.Unmarshal(rec.Body.Bytes(), &rows), convey.ShouldBeNil)
			convey.So(rows, convey.ShouldHaveLength, 3)
		})

		convey.Convey("Then metrics are exposed next to them", func() {
			rec := httptest.NewRecorder()
			srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
			convey.So(rec.Code, convey.ShouldEqual, http.StatusOK)
		})

		convey.Convey("Then no write timeout cuts the push channel", func() {
			convey.So(srv.WriteTimeout, convey.ShouldEqual, time.Duration(0))
			convey.So(srv.ReadHeaderTimeout, convey.ShouldEqual, readHeaderTimeout)
		})
	})
}
