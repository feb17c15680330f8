package transport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
	"golang.org/x/net/websocket"

	"github.com/okian/credash/internal/domain/model"
	"github.com/okian/credash/internal/fetch"
)

func backendMux(seenIDs chan<- string) *http.ServeMux {
	mux := http.NewServeMux()
	record := func(r *http.Request) {
		select {
		case seenIDs <- r.Header.Get(requestIDHeader):
		default:
		}
	}
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		_, _ = w.Write([]byte(`{"status":"ok","message":"Backend is healthy"}`))
	})
	mux.HandleFunc("/api/v1/scores", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		_, _ = w.Write([]byte(`[{"issuer":"Acme","asset_class":"corporate","score":70.5,"ts":"2024-01-02T03:04:05","issuer_id":1,"score_id":11}]`))
	})
	mux.HandleFunc("/api/v1/scores/1/history", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"ts":"2024-01-01T00:00:00","score":68,"id":9},{"ts":"2024-01-02T03:04:05","score":70.5,"id":11}]`))
	})
	mux.HandleFunc("/api/v1/explain/11", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"feature":"dti","value":0.41,"shap":-0.4}]`))
	})
	mux.HandleFunc("/api/v1/explain/12", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"oops`))
	})
	mux.HandleFunc("/api/v1/scores/2/history", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	return mux
}

func TestClient(t *testing.T) {
	Convey("Given a backend serving the score endpoints", t, func() {
		ids := make(chan string, 8)
		srv := httptest.NewServer(backendMux(ids))
		defer srv.Close()
		c := NewClient(srv.URL, srv.URL+"/api/v1/")
		ctx := context.Background()

		Convey("When checking health", func() {
			h, err := c.Health(ctx)

			Convey("Then the message is decoded and a request id was sent", func() {
				So(err, ShouldBeNil)
				So(h.Message, ShouldEqual, "Backend is healthy")
				So(<-ids, ShouldNotBeEmpty)
			})
		})

		Convey("When listing scores", func() {
			recs, err := c.Scores(ctx)

			Convey("Then records are decoded", func() {
				So(err, ShouldBeNil)
				So(len(recs), ShouldEqual, 1)
				So(recs[0].ScoreID, ShouldEqual, model.ID(11))
				So(recs[0].TS.Year(), ShouldEqual, 2024)
			})
		})

		Convey("When loading history and explanation", func() {
			hist, herr := c.History(ctx, 1)
			expl, eerr := c.Explain(ctx, 11)

			Convey("Then both decode", func() {
				So(herr, ShouldBeNil)
				So(len(hist), ShouldEqual, 2)
				So(eerr, ShouldBeNil)
				So(expl[0].Feature, ShouldEqual, "dti")
				So(expl[0].Shap, ShouldEqual, -0.4)
			})
		})

		Convey("When the server fails", func() {
			_, err := c.History(ctx, 2)

			Convey("Then a StatusError carries the code", func() {
				var se *fetch.StatusError
				So(errors.As(err, &se), ShouldBeTrue)
				So(se.Code, ShouldEqual, http.StatusInternalServerError)
				So(fetch.Classify(ctx, err), ShouldEqual, fetch.KindServerError)
			})
		})

		Convey("When the endpoint does not exist", func() {
			_, err := c.Explain(ctx, 99)

			Convey("Then it classifies as a client error", func() {
				So(fetch.Classify(ctx, err), ShouldEqual, fetch.KindClientError)
			})
		})

		Convey("When the body is malformed", func() {
			_, err := c.Explain(ctx, 12)

			Convey("Then a DecodeError is returned", func() {
				var de *fetch.DecodeError
				So(errors.As(err, &de), ShouldBeTrue)
			})
		})
	})

	Convey("Given a backend that is down", t, func() {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()
		c := NewClient(url, url+"/api/v1")

		Convey("Then calls fail as network errors", func() {
			_, err := c.Scores(context.Background())
			So(err, ShouldNotBeNil)
			So(fetch.Classify(context.Background(), err), ShouldEqual, fetch.KindNetwork)
		})
	})
}

func TestDialer(t *testing.T) {
	Convey("Given a websocket endpoint that pushes one message", t, func() {
		srv := httptest.NewServer(websocket.Handler(func(ws *websocket.Conn) {
			_ = websocket.Message.Send(ws, `{"type":"scores_changed","count":3}`)
			var ignored string
			_ = websocket.Message.Receive(ws, &ignored)
		}))
		defer srv.Close()
		wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/latest"

		Convey("When dialing and receiving", func() {
			d, err := NewDialer(wsURL)
			So(err, ShouldBeNil)
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			conn, err := d.Dial(ctx)
			So(err, ShouldBeNil)
			defer func() { _ = conn.Close() }()

			msg, err := conn.Receive()

			Convey("Then the text frame arrives intact", func() {
				So(err, ShouldBeNil)
				So(string(msg), ShouldEqual, `{"type":"scores_changed","count":3}`)
			})
		})

		Convey("When the connection is closed locally", func() {
			d, _ := NewDialer(wsURL)
			conn, err := d.Dial(context.Background())
			So(err, ShouldBeNil)
			_, _ = conn.Receive()
			So(conn.Close(), ShouldBeNil)

			Convey("Then Receive fails", func() {
				_, err := conn.Receive()
				So(err, ShouldNotBeNil)
			})
		})
	})

	Convey("Given bad push URLs", t, func() {
		_, err := NewDialer("http://host/ws")
		So(err, ShouldNotBeNil)
		d, err := NewDialer("wss://host/ws", WithOrigin("https://dash"))
		So(err, ShouldBeNil)
		So(d.origin, ShouldEqual, "https://dash")
		So(d.URL(), ShouldEqual, "wss://host/ws")
	})
}
