package accounts_test

import (
	"context"
	"testing"

	"github.com/okian/pcarank/internal/adapters/accounts"
	"github.com/okian/pcarank/internal/adapters/repository"
	"github.com/okian/pcarank/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

func TestProfileDirectory(t *testing.T) {
	ctx := context.Background()

	convey.Convey("Given a directory over a memory store", t, func() {
		store := repository.NewMemStore()
		dir := accounts.NewProfileDirectory(store)

		_, err := dir.Update(ctx, model.Profile{PersonID: "2015CRUZ01", Region: "NCR", CityProvince: "Quezon City"})
		convey.So(err, convey.ShouldBeNil)
		_, err = dir.Update(ctx, model.Profile{PersonID: "2016REYE01", Region: "NCR"})
		convey.So(err, convey.ShouldBeNil)

		convey.Convey("When resolving a person's area", func() {
			area, ok, err := dir.Area(ctx, "2015CRUZ01", model.Local)

			convey.Convey("Then the profile's area is returned", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(ok, convey.ShouldBeTrue)
				convey.So(area, convey.ShouldEqual, "Quezon City")
			})
		})

		convey.Convey("When the person has no area at that level", func() {
			_, ok, err := dir.Area(ctx, "2016REYE01", model.Local)
			convey.So(err, convey.ShouldBeNil)
			convey.So(ok, convey.ShouldBeFalse)

			_, ok, err = dir.Area(ctx, "unknown", model.Regional)
			convey.So(err, convey.ShouldBeNil)
			convey.So(ok, convey.ShouldBeFalse)
		})

		convey.Convey("When listing members of an area", func() {
			ids, err := dir.PersonIDsByArea(ctx, model.Regional, " ncr")

			convey.Convey("Then matching is case-insensitive", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(ids, convey.ShouldResemble, []string{"2015CRUZ01", "2016REYE01"})
			})
		})

		convey.Convey("When asking for national membership", func() {
			_, err := dir.PersonIDsByArea(ctx, model.National, "")
			convey.So(err, convey.ShouldNotBeNil)

			areas, err := dir.Areas(ctx, model.National)
			convey.So(err, convey.ShouldBeNil)
			convey.So(areas, convey.ShouldBeEmpty)
		})

		convey.Convey("When a profile moves region", func() {
			changed, err := dir.Update(ctx, model.Profile{PersonID: "2015CRUZ01", Region: "Central Visayas", CityProvince: "quezon city"})

			convey.Convey("Then only the region is reported as changed", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(changed, convey.ShouldHaveLength, 1)
				convey.So(changed[model.Regional], convey.ShouldResemble, [2]string{"NCR", "Central Visayas"})
			})
		})

		convey.Convey("When a new profile is created", func() {
			changed, err := dir.Update(ctx, model.Profile{PersonID: "2019NEWB01", Region: "Davao"})

			convey.Convey("Then the new areas are reported", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(changed[model.Regional], convey.ShouldResemble, [2]string{"", "Davao"})
				_, localChanged := changed[model.Local]
				convey.So(localChanged, convey.ShouldBeFalse)
			})
		})
	})
}
