package config_test

import (
	"errors"
	"runtime"
	"testing"

	"github.com/okian/projector/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with defaults", t, func() {
		cfg := config.New()

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.DBDriver, convey.ShouldEqual, config.DriverSQLite)
			convey.So(cfg.WorkerCount, convey.ShouldEqual, runtime.NumCPU())
			convey.So(cfg.WriteBatchSize, convey.ShouldEqual, 500)
			convey.So(cfg.GateWarnPoints, convey.ShouldEqual, 25)
			convey.So(cfg.GateRejectPoints, convey.ShouldEqual, 35)
			convey.So(cfg.GateZScore, convey.ShouldEqual, 3)
			convey.So(cfg.BootstrapSamples, convey.ShouldEqual, 1000)
			convey.So(cfg.BootstrapMinSuccessful, convey.ShouldEqual, 100)
			convey.So(cfg.StandardizeVOPA, convey.ShouldBeFalse)
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
		{"unknown driver", func(c *config.Config) { c.DBDriver = "oracle" }},
		{"empty dsn", func(c *config.Config) { c.DBDSN = "" }},
		{"bad log format", func(c *config.Config) { c.LogFormat = "xml" }},
		{"zero workers", func(c *config.Config) { c.WorkerCount = 0 }},
		{"negative batch size", func(c *config.Config) { c.WriteBatchSize = -1 }},
		{"reject below warn", func(c *config.Config) { c.GateRejectPoints = 20 }},
		{"zero z-score", func(c *config.Config) { c.GateZScore = 0 }},
		{"min successful above samples", func(c *config.Config) { c.BootstrapMinSuccessful = 2000 }},
		{"caution above leakage", func(c *config.Config) { c.CautionThreshold = 0.8 }},
	}

	convey.Convey("Given invalid configurations", t, func() {
		for _, tc := range cases {
			convey.Convey("When "+tc.name, func() {
				cfg := config.New()
				tc.mutate(cfg)
				err := cfg.Validate()

				convey.So(err, convey.ShouldNotBeNil)
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		}
	})

	convey.Convey("Given a postgres configuration", t, func() {
		cfg := config.New()
		cfg.DBDriver = config.DriverPostgres
		cfg.DBDSN = "postgres://localhost/projector?sslmode=disable"
		convey.So(cfg.Validate(), convey.ShouldBeNil)
	})
}
