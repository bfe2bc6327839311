package catalog_test

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/okian/trust/internal/domain/catalog"
	. "github.com/smartystreets/goconvey/convey"
)

func TestCatalog_ResolveWeight(t *testing.T) {
	Convey("Given the default catalog", t, func() {
		c, err := catalog.New()
		So(err, ShouldBeNil)

		Convey("When resolving positive and negative events", func() {
			identity, capped, err := c.ResolveWeight(catalog.VerifiedIdentity, nil, catalog.Summary{})
			So(err, ShouldBeNil)
			So(capped, ShouldBeFalse)
			So(identity, ShouldEqual, 50)

			tx, _, err := c.ResolveWeight(catalog.CompletedTransaction, json.RawMessage(`{"order_id":"o-1"}`), catalog.Summary{})
			So(err, ShouldBeNil)
			So(tx, ShouldEqual, 20)

			dispute, _, err := c.ResolveWeight(catalog.DisputeLost, nil, catalog.Summary{})
			So(err, ShouldBeNil)
			So(dispute, ShouldEqual, -200)

			Convey("Then negative events outweigh their positive counterparts", func() {
				So(-dispute, ShouldBeGreaterThan, tx)
			})
		})

		Convey("When the event type is not in the catalog", func() {
			_, _, err := c.ResolveWeight("bribe_accepted", nil, catalog.Summary{})

			Convey("Then it fails with ErrUnknownEventType", func() {
				So(errors.Is(err, catalog.ErrUnknownEventType), ShouldBeTrue)
			})
		})

		Convey("When the context carries an unrecognized key", func() {
			_, _, err := c.ResolveWeight(catalog.CompletedTransaction, json.RawMessage(`{"order_id":"o-1","boost":100}`), catalog.Summary{})

			Convey("Then it fails with ErrInvalidContext", func() {
				So(errors.Is(err, catalog.ErrInvalidContext), ShouldBeTrue)
			})
		})

		Convey("When the context is not an object", func() {
			err := c.Check(catalog.CompletedTransaction, json.RawMessage(`["o-1"]`))
			So(errors.Is(err, catalog.ErrInvalidContext), ShouldBeTrue)
		})

		Convey("When the context is null", func() {
			err := c.Check(catalog.CompletedTransaction, json.RawMessage(`null`))
			So(err, ShouldBeNil)
		})

		Convey("When a positive review repeats inside its window", func() {
			free, capped, err := c.ResolveWeight(catalog.PositiveReview, nil, catalog.Summary{SameTypeInWindow: 2})
			So(err, ShouldBeNil)
			So(free, ShouldEqual, 10)
			So(capped, ShouldBeFalse)

			first, capped, err := c.ResolveWeight(catalog.PositiveReview, nil, catalog.Summary{SameTypeInWindow: 3})
			So(err, ShouldBeNil)
			So(first, ShouldEqual, 5)
			So(capped, ShouldBeTrue)

			second, _, err := c.ResolveWeight(catalog.PositiveReview, nil, catalog.Summary{SameTypeInWindow: 4})
			So(err, ShouldBeNil)
			So(second, ShouldEqual, 2)
		})

		Convey("When a window is requested", func() {
			So(c.Window(catalog.PositiveReview), ShouldEqual, 24*time.Hour)
			So(c.Window(catalog.DisputeLost), ShouldEqual, 0)
			So(c.Window("missing"), ShouldEqual, 0)
		})
	})
}

func TestCatalog_Correction(t *testing.T) {
	Convey("Given the default catalog", t, func() {
		c, err := catalog.New(catalog.WithMaxCorrection(500))
		So(err, ShouldBeNil)

		Convey("When a correction carries an amount", func() {
			delta, _, err := c.ResolveWeight(catalog.ScoreCorrection, json.RawMessage(`{"amount":-35,"reason":"refund"}`), catalog.Summary{})
			So(err, ShouldBeNil)
			So(delta, ShouldEqual, -35)
		})

		Convey("When the amount is missing, zero, fractional or too large", func() {
			for _, raw := range []string{`{}`, `{"amount":0}`, `{"amount":1.5}`, `{"amount":501}`, `{"amount":"10"}`} {
				_, _, err := c.ResolveWeight(catalog.ScoreCorrection, json.RawMessage(raw), catalog.Summary{})
				So(errors.Is(err, catalog.ErrInvalidContext), ShouldBeTrue)
			}
		})
	})
}

func TestCatalog_New(t *testing.T) {
	Convey("Given custom catalog options", t, func() {
		Convey("When an entry overrides a default weight", func() {
			c, err := catalog.New(catalog.WithEntry(catalog.Entry{Type: catalog.CompletedTransaction, Weight: 30}))
			So(err, ShouldBeNil)

			e, err := c.Lookup(catalog.CompletedTransaction)
			So(err, ShouldBeNil)
			So(e.Weight, ShouldEqual, 30)
		})

		Convey("When defaults are dropped", func() {
			c, err := catalog.New(catalog.WithoutDefaults(), catalog.WithEntry(catalog.Entry{Type: "kyc_passed", Weight: 40}))
			So(err, ShouldBeNil)
			So(len(c.Entries()), ShouldEqual, 1)

			_, err = c.Lookup(catalog.VerifiedIdentity)
			So(errors.Is(err, catalog.ErrUnknownEventType), ShouldBeTrue)
		})

		Convey("When an entry is invalid", func() {
			_, err := catalog.New(catalog.WithEntry(catalog.Entry{Type: "Bad Name", Weight: 1}))
			So(errors.Is(err, catalog.ErrInvalidCatalog), ShouldBeTrue)

			_, err = catalog.New(catalog.WithEntry(catalog.Entry{Type: "noop", Weight: 0}))
			So(errors.Is(err, catalog.ErrInvalidCatalog), ShouldBeTrue)

			_, err = catalog.New(catalog.WithEntry(catalog.Entry{
				Type:        "review",
				Weight:      5,
				Diminishing: &catalog.Diminishing{Window: time.Hour, FreeCount: 1, Factor: 1.5},
			}))
			So(errors.Is(err, catalog.ErrInvalidCatalog), ShouldBeTrue)
		})

		Convey("When every type is dropped", func() {
			_, err := catalog.New(catalog.WithoutDefaults())
			So(errors.Is(err, catalog.ErrInvalidCatalog), ShouldBeTrue)
		})
	})
}
