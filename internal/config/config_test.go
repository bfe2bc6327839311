package config_test

import (
	"context"
	"errors"
	"testing"

	"github.com/okian/trust/internal/adapters/auth"
	"github.com/okian/trust/internal/adapters/lock"
	"github.com/okian/trust/internal/config"
	"github.com/okian/trust/internal/domain/catalog"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New()

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.StoreDriver, convey.ShouldEqual, "sqlite")
			convey.So(cfg.LockBackend, convey.ShouldEqual, config.LockMemory)
			convey.So(cfg.AuthMode, convey.ShouldEqual, config.AuthHeader)
			convey.So(cfg.MinScore, convey.ShouldEqual, 0)
			convey.So(cfg.MaxScore, convey.ShouldEqual, 1000)
			convey.So(cfg.DefaultHistoryLimit, convey.ShouldEqual, 50)
			convey.So(cfg.MaxHistoryLimit, convey.ShouldEqual, 200)
		})

		convey.Convey("Then the defaults validate", func() {
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})
	})
}

func TestConfig_Validate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"empty addr", func(c *config.Config) { c.Addr = " " }},
		{"inverted bounds", func(c *config.Config) { c.MinScore, c.MaxScore = 10, 10 }},
		{"zero default limit", func(c *config.Config) { c.DefaultHistoryLimit = 0 }},
		{"max below default", func(c *config.Config) { c.MaxHistoryLimit = 10 }},
		{"unknown driver", func(c *config.Config) { c.StoreDriver = "mongo" }},
		{"sqlite without dsn", func(c *config.Config) { c.StoreDSN = "" }},
		{"unknown lock backend", func(c *config.Config) { c.LockBackend = "etcd" }},
		{"short lease", func(c *config.Config) { c.LockBackend, c.LeaseTTLMS = config.LockRedis, 1000 }},
		{"jwt without secret", func(c *config.Config) { c.AuthMode = config.AuthJWT }},
		{"unknown auth mode", func(c *config.Config) { c.AuthMode = "basic" }},
		{"bad log format", func(c *config.Config) { c.LogFormat = "xml" }},
		{"gap in tiers", func(c *config.Config) {
			c.Levels = []config.LevelConfig{{Name: "low", Min: 0, Max: 400}, {Name: "high", Min: 500, Max: 1000}}
		}},
		{"tiers off bounds", func(c *config.Config) {
			c.MaxScore = 500
		}},
		{"bad event type", func(c *config.Config) {
			c.Events = map[string]config.EventConfig{"Not Valid": {Weight: 1}}
		}},
	}

	convey.Convey("Given invalid settings", t, func() {
		for _, tc := range cases {
			convey.Convey("When "+tc.name, func() {
				cfg := config.New()
				tc.mutate(cfg)
				convey.So(errors.Is(cfg.Validate(), config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		}
	})
}

func TestConfig_Build(t *testing.T) {
	convey.Convey("Given a config with custom events and tiers", t, func() {
		cfg := config.New()
		cfg.MaxScore = 100
		cfg.Levels = []config.LevelConfig{
			{Name: "low", Min: 0, Max: 49},
			{Name: "high", Min: 50, Max: 100},
		}
		cfg.Events = map[string]config.EventConfig{
			"referral":           {Weight: 15, ContextKeys: []string{"referred_user"}, WindowSeconds: 3600, FreeCount: 1, Factor: 0.5},
			catalog.Cancellation: {Weight: -5, ContextKeys: []string{"order_id"}},
		}

		convey.Convey("Then the catalog overlays the defaults", func() {
			cat, err := cfg.BuildCatalog()
			convey.So(err, convey.ShouldBeNil)
			e, err := cat.Lookup("referral")
			convey.So(err, convey.ShouldBeNil)
			convey.So(e.Weight, convey.ShouldEqual, 15)
			convey.So(e.Diminishing, convey.ShouldNotBeNil)
			convey.So(cat.Window("referral").Hours(), convey.ShouldEqual, 1)
			c, err := cat.Lookup(catalog.Cancellation)
			convey.So(err, convey.ShouldBeNil)
			convey.So(c.Weight, convey.ShouldEqual, -5)
			_, err = cat.Lookup(catalog.VerifiedIdentity)
			convey.So(err, convey.ShouldBeNil)
		})

		convey.Convey("Then replacing the defaults keeps only configured types", func() {
			cfg.ReplaceDefaultEvents = true
			cat, err := cfg.BuildCatalog()
			convey.So(err, convey.ShouldBeNil)
			convey.So(len(cat.Entries()), convey.ShouldEqual, 2)
			_, err = cat.Lookup(catalog.VerifiedIdentity)
			convey.So(errors.Is(err, catalog.ErrUnknownEventType), convey.ShouldBeTrue)
		})

		convey.Convey("Then levels and calculator share the bounds", func() {
			levels, err := cfg.BuildLevels()
			convey.So(err, convey.ShouldBeNil)
			convey.So(levels.LevelFor(75), convey.ShouldEqual, "high")
			cat, err := cfg.BuildCatalog()
			convey.So(err, convey.ShouldBeNil)
			calc, err := cfg.BuildCalculator(cat)
			convey.So(err, convey.ShouldBeNil)
			lo, hi := calc.Bounds()
			convey.So(lo, convey.ShouldEqual, 0)
			convey.So(hi, convey.ShouldEqual, 100)
		})
	})
}

func TestConfig_Adapters(t *testing.T) {
	convey.Convey("Given the default config", t, func() {
		cfg := config.New()

		convey.Convey("Then the guard is in-process", func() {
			g, release, err := cfg.BuildGuard(context.Background())
			convey.So(err, convey.ShouldBeNil)
			defer release()
			_, ok := g.(*lock.MemoryGuard)
			convey.So(ok, convey.ShouldBeTrue)
		})

		convey.Convey("Then callers are identified by gateway headers", func() {
			a, err := cfg.BuildAuthenticator()
			convey.So(err, convey.ShouldBeNil)
			_, ok := a.(auth.HeaderAuthenticator)
			convey.So(ok, convey.ShouldBeTrue)
		})

		convey.Convey("Then jwt mode needs a secret", func() {
			cfg.AuthMode = config.AuthJWT
			cfg.JWTSecret = "s3cret"
			a, err := cfg.BuildAuthenticator()
			convey.So(err, convey.ShouldBeNil)
			_, ok := a.(*auth.JWTAuthenticator)
			convey.So(ok, convey.ShouldBeTrue)
		})

		convey.Convey("Then history stays self-only without reader roles", func() {
			admin := auth.Principal{UserID: "ops", Roles: []string{"admin"}}
			convey.So(cfg.BuildPolicy().CanReadHistory(admin, "u1"), convey.ShouldBeFalse)
			cfg.ReaderRoles = []string{}
			convey.So(cfg.BuildPolicy().CanReadHistory(admin, "u1"), convey.ShouldBeFalse)
			cfg.ReaderRoles = []string{"admin"}
			convey.So(cfg.BuildPolicy().CanReadHistory(admin, "u1"), convey.ShouldBeTrue)
		})

		convey.Convey("Then extra options apply after the configured roles", func() {
			p := cfg.BuildPolicy(auth.WithReaderRoles("operator"))
			convey.So(p.CanReadHistory(auth.Principal{UserID: "cli", Roles: []string{"operator"}}, "u1"), convey.ShouldBeTrue)
		})

		convey.Convey("Then configured roles drive the policy", func() {
			cfg.WriterRoles = []string{"ingest"}
			p := cfg.BuildPolicy()
			convey.So(p.CanRecord(auth.Principal{UserID: "svc", Roles: []string{"ingest"}}, "u1"), convey.ShouldBeTrue)
			convey.So(p.CanRecord(auth.Principal{UserID: "svc", Roles: []string{"service"}}, "u1"), convey.ShouldBeFalse)
		})

		convey.Convey("Then the store config mirrors the settings", func() {
			sc := cfg.StoreConfig()
			convey.So(sc.Driver, convey.ShouldEqual, cfg.StoreDriver)
			convey.So(sc.DSN, convey.ShouldEqual, cfg.StoreDSN)
			convey.So(sc.AutoMigrate, convey.ShouldBeTrue)
		})
	})
}
