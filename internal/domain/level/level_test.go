package level_test

import (
	"errors"
	"testing"

	"github.com/okian/trust/internal/domain/level"
	. "github.com/smartystreets/goconvey/convey"
)

func TestResolver_LevelFor(t *testing.T) {
	Convey("Given the default tiers", t, func() {
		r, err := level.NewResolver(level.DefaultTiers(), 0, 1000)
		So(err, ShouldBeNil)

		Convey("Then every boundary resolves to the tier it opens or closes", func() {
			cases := map[int]string{
				0: "new", 99: "new",
				100: "building", 299: "building",
				300: "established", 599: "established",
				600: "trusted", 849: "trusted",
				850: "elite", 1000: "elite",
			}
			for score, want := range cases {
				So(r.LevelFor(score), ShouldEqual, want)
			}
		})

		Convey("Then every score in range has a level", func() {
			for s := 0; s <= 1000; s++ {
				So(r.LevelFor(s), ShouldNotBeEmpty)
			}
		})

		Convey("Then out-of-range scores resolve to the end tiers", func() {
			So(r.LevelFor(-5), ShouldEqual, "new")
			So(r.LevelFor(5000), ShouldEqual, "elite")
		})
	})
}

func TestNewResolver_Validation(t *testing.T) {
	Convey("Given tier tables", t, func() {
		Convey("When tiers are supplied out of order", func() {
			r, err := level.NewResolver([]level.Tier{
				{Name: "high", Min: 50, Max: 100},
				{Name: "low", Min: 0, Max: 49},
			}, 0, 100)

			Convey("Then they are sorted and accepted", func() {
				So(err, ShouldBeNil)
				So(r.Tiers()[0].Name, ShouldEqual, "low")
				So(r.LevelFor(50), ShouldEqual, "high")
			})
		})

		Convey("When the table has a gap", func() {
			_, err := level.NewResolver([]level.Tier{
				{Name: "low", Min: 0, Max: 40},
				{Name: "high", Min: 50, Max: 100},
			}, 0, 100)
			So(errors.Is(err, level.ErrInvalidTiers), ShouldBeTrue)
		})

		Convey("When tiers overlap", func() {
			_, err := level.NewResolver([]level.Tier{
				{Name: "low", Min: 0, Max: 60},
				{Name: "high", Min: 50, Max: 100},
			}, 0, 100)
			So(errors.Is(err, level.ErrInvalidTiers), ShouldBeTrue)
		})

		Convey("When the table does not reach the bounds", func() {
			_, err := level.NewResolver([]level.Tier{{Name: "only", Min: 0, Max: 90}}, 0, 100)
			So(errors.Is(err, level.ErrInvalidTiers), ShouldBeTrue)

			_, err = level.NewResolver([]level.Tier{{Name: "only", Min: 10, Max: 100}}, 0, 100)
			So(errors.Is(err, level.ErrInvalidTiers), ShouldBeTrue)
		})

		Convey("When names are missing or duplicated", func() {
			_, err := level.NewResolver([]level.Tier{{Name: " ", Min: 0, Max: 100}}, 0, 100)
			So(errors.Is(err, level.ErrInvalidTiers), ShouldBeTrue)

			_, err = level.NewResolver([]level.Tier{
				{Name: "same", Min: 0, Max: 49},
				{Name: "same", Min: 50, Max: 100},
			}, 0, 100)
			So(errors.Is(err, level.ErrInvalidTiers), ShouldBeTrue)
		})

		Convey("When the table or bounds are empty", func() {
			_, err := level.NewResolver(nil, 0, 100)
			So(errors.Is(err, level.ErrInvalidTiers), ShouldBeTrue)

			_, err = level.NewResolver(level.DefaultTiers(), 10, 10)
			So(errors.Is(err, level.ErrInvalidTiers), ShouldBeTrue)
		})
	})
}
