package commands

import (
	"fmt"
	"time"

	"hrexport/internal/fetch"
	"hrexport/internal/scrapers/hackerrank"
	"hrexport/lib/configutil"
	"hrexport/lib/telemetry"
)

type RetryConfig struct {
	// duration string, ex. "2s"
	Delay string `json:"delay"`
	// -1 retries forever
	PageNotReady   *int `json:"page_not_ready"`
	PageTimeout    *int `json:"page_timeout"`
	DetailNotReady *int `json:"detail_not_ready"`
	DetailTimeout  *int `json:"detail_timeout"`
}

type Config struct {
	BaseUrl string `json:"base_url"`
	// duration string, ex. "30s"
	Timeout           string  `json:"timeout"`
	RequestsPerSecond float64 `json:"requests_per_second"`
	CloudflareBypass  *bool   `json:"cloudflare_bypass"`
	StateDir          string  `json:"state_dir"`
	OutDir            string  `json:"out_dir"`

	Retry     RetryConfig      `json:"retry"`
	Telemetry telemetry.Config `json:"telemetry"`
}

func ptr[T any](v T) *T {
	return &v
}

func defaultConfig() Config {
	policy := fetch.DefaultPolicy()
	return Config{
		BaseUrl:           hackerrank.DefaultBaseUrl,
		Timeout:           "30s",
		RequestsPerSecond: 2,
		CloudflareBypass:  ptr(true),
		StateDir:          ".",
		OutDir:            ".",
		Retry: RetryConfig{
			Delay:          policy.Delay.String(),
			PageNotReady:   ptr(policy.Page.NotReady),
			PageTimeout:    ptr(policy.Page.Timeout),
			DetailNotReady: ptr(policy.Detail.NotReady),
			DetailTimeout:  ptr(policy.Detail.Timeout),
		},
	}
}

func loadConfig(path string) (Config, error) {
	cfg, err := configutil.ReadConfigWithDefaults(path, defaultConfig())
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	return cfg, nil
}

func (c Config) RequestTimeout() (time.Duration, error) {
	timeout, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 0, fmt.Errorf("timeout: %w", err)
	}
	return timeout, nil
}

func (c Config) Policy() (fetch.Policy, error) {
	delay, err := time.ParseDuration(c.Retry.Delay)
	if err != nil {
		return fetch.Policy{}, fmt.Errorf("retry.delay: %w", err)
	}
	return fetch.Policy{
		Page: fetch.Bounds{
			NotReady: *c.Retry.PageNotReady,
			Timeout:  *c.Retry.PageTimeout,
		},
		Detail: fetch.Bounds{
			NotReady: *c.Retry.DetailNotReady,
			Timeout:  *c.Retry.DetailTimeout,
		},
		Delay: delay,
	}, nil
}
