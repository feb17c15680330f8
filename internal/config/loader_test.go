package config_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/okian/credash/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with defaults", t, func() {
		cfg := config.New()

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.BaseURL, convey.ShouldEqual, "http://localhost:8000")
			convey.So(cfg.APIBase(), convey.ShouldEqual, "http://localhost:8000/api/v1")
			convey.So(cfg.FetchMaxAttempts, convey.ShouldEqual, 3)
			convey.So(cfg.FetchBaseDelay(), convey.ShouldEqual, 500*time.Millisecond)
			convey.So(cfg.FetchTimeout(), convey.ShouldEqual, 5*time.Second)
			convey.So(cfg.TopDrivers, convey.ShouldEqual, 8)
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})

		convey.Convey("Then the push URL is derived from the base URL", func() {
			u, err := cfg.ResolvedPushURL()
			convey.So(err, convey.ShouldBeNil)
			convey.So(u, convey.ShouldEqual, "ws://localhost:8000/ws/latest")

			cfg.BaseURL = "https://scores.example.com/root"
			u, err = cfg.ResolvedPushURL()
			convey.So(err, convey.ShouldBeNil)
			convey.So(u, convey.ShouldEqual, "wss://scores.example.com/ws/latest")
		})

		convey.Convey("Then an explicit push URL wins", func() {
			cfg.PushURL = "ws://other:9000/push"
			u, err := cfg.ResolvedPushURL()
			convey.So(err, convey.ShouldBeNil)
			convey.So(u, convey.ShouldEqual, "ws://other:9000/push")
		})
	})
}

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()
		clearConfigEnvVars()

		convey.Convey("When loading config with defaults only", func() {
			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.BaseURL, convey.ShouldEqual, "http://localhost:8000")
				convey.So(cfg.FetchBackoffMultiplier, convey.ShouldEqual, 2.0)
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			_ = os.Setenv("CREDASH_BASE_URL", "http://backend:8080")
			_ = os.Setenv("CREDASH_FETCH_MAX_ATTEMPTS", "5")
			_ = os.Setenv("CREDASH_FETCH_BACKOFF_MULTIPLIER", "1.5")
			_ = os.Setenv("CREDASH_POLL_INTERVAL_MS", "15000")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.BaseURL, convey.ShouldEqual, "http://backend:8080")
				convey.So(cfg.FetchMaxAttempts, convey.ShouldEqual, 5)
				convey.So(cfg.FetchBackoffMultiplier, convey.ShouldEqual, 1.5)
				convey.So(cfg.PollInterval(), convey.ShouldEqual, 15*time.Second)
			})
		})

		convey.Convey("When loading config with both file and environment variables", func() {
			yamlContent := `
# comments are fine
base_url: "http://from-file:8000"
api_prefix: "/v2"
fetch_timeout_ms: 1500
top_drivers: 5
`
			tmpFile := createTempConfigFile(yamlContent)
			defer func() { _ = os.Remove(tmpFile) }()
			_ = os.Setenv("CREDASH_CONFIG", tmpFile)
			_ = os.Setenv("CREDASH_TOP_DRIVERS", "3")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then environment variables should override file values", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.BaseURL, convey.ShouldEqual, "http://from-file:8000")
				convey.So(cfg.APIBase(), convey.ShouldEqual, "http://from-file:8000/v2")
				convey.So(cfg.FetchTimeout(), convey.ShouldEqual, 1500*time.Millisecond)
				convey.So(cfg.TopDrivers, convey.ShouldEqual, 3)
				convey.So(cfg.FetchMaxAttempts, convey.ShouldEqual, 3)
			})
		})

		convey.Convey("When loading config with invalid YAML file", func() {
			tmpFile := createTempConfigFile(`invalid: yaml: content: [`)
			defer func() { _ = os.Remove(tmpFile) }()
			_ = os.Setenv("CREDASH_CONFIG", tmpFile)
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a load error", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with non-existent file", func() {
			_ = os.Setenv("CREDASH_CONFIG", "/non/existent/file.yaml")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When the base URL is not absolute", func() {
			_ = os.Setenv("CREDASH_BASE_URL", "localhost")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a validation error", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When max attempts is zero", func() {
			_ = os.Setenv("CREDASH_FETCH_MAX_ATTEMPTS", "0")
			defer clearConfigEnvVars()

			_, err := config.Load(ctx)

			convey.Convey("Then it should be rejected", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When loading config with invalid numeric environment variables", func() {
			_ = os.Setenv("CREDASH_FETCH_TIMEOUT_MS", "soon")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})
	})
}

// Helper functions.
func clearConfigEnvVars() {
	envVars := []string{
		"CREDASH_CONFIG",
		"CREDASH_BASE_URL",
		"CREDASH_FETCH_MAX_ATTEMPTS",
		"CREDASH_FETCH_BACKOFF_MULTIPLIER",
		"CREDASH_FETCH_TIMEOUT_MS",
		"CREDASH_POLL_INTERVAL_MS",
		"CREDASH_TOP_DRIVERS",
	}
	for _, envVar := range envVars {
		_ = os.Unsetenv(envVar)
	}
}

func createTempConfigFile(content string) string {
	tmpFile, err := os.CreateTemp("", "credash-config-*.yaml")
	if err != nil {
		panic(err)
	}
	if _, err := tmpFile.WriteString(content); err != nil {
		panic(err)
	}
	if err := tmpFile.Close(); err != nil {
		panic(err)
	}
	return tmpFile.Name()
}
