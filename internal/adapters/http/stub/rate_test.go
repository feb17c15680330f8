package stub

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestRate(t *testing.T) {
	Convey("Given the ABC Bank fundamentals", t, func() {
		iss := seedIssuers[0]
		score, drivers := rate(&iss)

		Convey("Then the attributions add up to the score", func() {
			So(score, ShouldAlmostEqual, 774.5, 0.01)
			sum := 700.0
			for _, d := range drivers {
				sum += d.Shap
			}
			So(sum, ShouldAlmostEqual, score, 0.01)
		})
	})

	Convey("Given a badly over-leveraged issuer", t, func() {
		iss := Issuer{revenue: 10, debt: 5000, cash: 1, sentiment: -1}
		score, _ := rate(&iss)

		Convey("Then the score is clamped to the floor", func() {
			So(score, ShouldEqual, 300.0)
		})
	})
}
