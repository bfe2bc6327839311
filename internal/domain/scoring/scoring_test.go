package scoring_test

import (
	"encoding/json"
	"errors"
	"math/rand"
	"testing"

	"github.com/okian/trust/internal/domain/catalog"
	"github.com/okian/trust/internal/domain/scoring"
	. "github.com/smartystreets/goconvey/convey"
)

func newCalculator() *scoring.Calculator {
	c, err := catalog.New()
	So(err, ShouldBeNil)
	calc, err := scoring.NewCalculator(c)
	So(err, ShouldBeNil)
	return calc
}

func TestCalculator_Apply(t *testing.T) {
	Convey("Given a calculator over the default catalog", t, func() {
		calc := newCalculator()

		Convey("When walking through a user's first events", func() {
			score := 0
			steps := []struct {
				eventType string
				want      int
			}{
				{catalog.VerifiedIdentity, 50},
				{catalog.CompletedTransaction, 70},
				{catalog.CompletedTransaction, 90},
				{catalog.CompletedTransaction, 110},
				{catalog.DisputeLost, 0},
			}
			var applied []int
			for _, step := range steps {
				res, err := calc.Apply(scoring.Input{Current: score, EventType: step.eventType})
				So(err, ShouldBeNil)
				So(res.NewScore, ShouldEqual, step.want)
				applied = append(applied, res.DeltaApplied)
				score = res.NewScore
			}

			Convey("Then the dispute is clamped at the lower bound", func() {
				So(applied[4], ShouldEqual, -110)
			})

			Convey("Then folding the applied deltas reproduces the score", func() {
				So(calc.Fold(applied), ShouldEqual, score)
			})
		})

		Convey("When an event would overshoot the upper bound", func() {
			res, err := calc.Apply(scoring.Input{Current: 990, EventType: catalog.CompletedTransaction})

			Convey("Then only the remaining headroom is applied", func() {
				So(err, ShouldBeNil)
				So(res.NewScore, ShouldEqual, 1000)
				So(res.DeltaApplied, ShouldEqual, 10)
				So(res.Resolved, ShouldEqual, 20)
				So(res.BaseWeight, ShouldEqual, 20)
				So(res.Clamped, ShouldBeTrue)
			})
		})

		Convey("When a modifier reduces the weight", func() {
			res, err := calc.Apply(scoring.Input{Current: 10, EventType: catalog.PositiveReview, Recent: catalog.Summary{SameTypeInWindow: 3}})
			So(err, ShouldBeNil)
			So(res.Capped, ShouldBeTrue)
			So(res.DeltaApplied, ShouldEqual, 5)
			So(res.Resolved, ShouldEqual, 5)
			So(res.BaseWeight, ShouldEqual, 10)
		})

		Convey("When the event type is unknown", func() {
			_, err := calc.Apply(scoring.Input{Current: 10, EventType: "mystery"})
			So(errors.Is(err, catalog.ErrUnknownEventType), ShouldBeTrue)
		})

		Convey("When the context is invalid", func() {
			_, err := calc.Apply(scoring.Input{EventType: catalog.VerifiedIdentity, Context: json.RawMessage(`{"x":1}`)})
			So(errors.Is(err, catalog.ErrInvalidContext), ShouldBeTrue)
		})
	})
}

func TestCalculator_Bounds(t *testing.T) {
	Convey("Given random event sequences", t, func() {
		calc := newCalculator()
		types := []string{
			catalog.VerifiedIdentity, catalog.CompletedTransaction, catalog.PositiveReview,
			catalog.Cancellation, catalog.LateDelivery, catalog.DisputeLost, catalog.ReportedFraud,
		}
		rng := rand.New(rand.NewSource(7)) //nolint:gosec // deterministic seed for reproducible testing

		Convey("Then the score never leaves [0, 1000] and the fold always agrees", func() {
			for run := 0; run < 50; run++ {
				score := 0
				var applied []int
				for i := 0; i < 200; i++ {
					res, err := calc.Apply(scoring.Input{Current: score, EventType: types[rng.Intn(len(types))]})
					So(err, ShouldBeNil)
					So(res.NewScore, ShouldBeBetweenOrEqual, 0, 1000)
					applied = append(applied, res.DeltaApplied)
					score = res.NewScore
				}
				So(calc.Fold(applied), ShouldEqual, score)
			}
		})
	})
}

func TestNewCalculator(t *testing.T) {
	Convey("Given invalid configuration", t, func() {
		c, err := catalog.New()
		So(err, ShouldBeNil)

		Convey("When bounds exclude zero or are empty", func() {
			_, err := scoring.NewCalculator(c, scoring.WithBounds(10, 100))
			So(errors.Is(err, scoring.ErrInvalidBounds), ShouldBeTrue)

			_, err = scoring.NewCalculator(c, scoring.WithBounds(5, 5))
			So(errors.Is(err, scoring.ErrInvalidBounds), ShouldBeTrue)
		})

		Convey("When no weight resolver is given", func() {
			_, err := scoring.NewCalculator(nil)
			So(err, ShouldNotBeNil)
		})

		Convey("When custom bounds are valid", func() {
			calc, err := scoring.NewCalculator(c, scoring.WithBounds(-100, 100))
			So(err, ShouldBeNil)
			So(scoring.Fold([]int{-500, 20}, -100, 100), ShouldEqual, -80)
			lo, hi := calc.Bounds()
			So(lo, ShouldEqual, -100)
			So(hi, ShouldEqual, 100)
		})
	})
}
