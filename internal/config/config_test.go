package config

import (
	"errors"
	"testing"
	"time"
)

// validConfig returns a configuration that passes Validate. Tests mutate a
// single field to exercise one constraint at a time.
func validConfig() *Config {
	return &Config{
		AppEnv:              "dev",
		HTTPAddr:            ":8080",
		MetricsAddr:         ":9090",
		DatabaseDSN:         "postgres://localhost/tracklight",
		StoreType:           "postgres",
		ActiveStateBackend:  "store",
		RedisAddr:           "localhost:6379",
		JWTSecret:           "dev-secret",
		JWTTTL:              12 * time.Hour,
		AdminUsername:       "admin",
		AdminPassword:       "admin",
		SweepInterval:       10 * time.Second,
		InactivityThreshold: 15 * time.Second,
		AdmissionMode:       "random",
		AdmissionSalt:       "salt",
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantField string
	}{
		{"valid defaults", func(c *Config) {}, ""},
		{"memory store without dsn", func(c *Config) {
			c.StoreType = "memory"
			c.DatabaseDSN = ""
		}, ""},
		{"unknown store type", func(c *Config) { c.StoreType = "sqlite" }, "STORE_TYPE"},
		{"postgres without dsn", func(c *Config) { c.DatabaseDSN = "" }, "DB_DSN"},
		{"unknown state backend", func(c *Config) { c.ActiveStateBackend = "etcd" }, "ACTIVE_STATE_BACKEND"},
		{"redis backend without addr", func(c *Config) {
			c.ActiveStateBackend = "redis"
			c.RedisAddr = ""
		}, "REDIS_ADDR"},
		{"empty http addr", func(c *Config) { c.HTTPAddr = "" }, "APP_HTTP_ADDR"},
		{"empty metrics addr", func(c *Config) { c.MetricsAddr = "" }, "METRICS_ADDR"},
		{"zero token ttl", func(c *Config) { c.JWTTTL = 0 }, "JWT_TTL"},
		{"zero sweep interval", func(c *Config) { c.SweepInterval = 0 }, "SWEEP_INTERVAL"},
		{"sweep slower than threshold", func(c *Config) {
			c.SweepInterval = time.Minute
			c.InactivityThreshold = 15 * time.Second
		}, "SWEEP_INTERVAL"},
		{"unknown admission mode", func(c *Config) { c.AdmissionMode = "canary" }, "ADMISSION_MODE"},
		{"webhooks without secret", func(c *Config) {
			c.WebhookURLs = []string{"https://hooks.example.com"}
			c.WebhookSecret = ""
		}, "WEBHOOK_SECRET"},
		{"webhooks with secret", func(c *Config) {
			c.WebhookURLs = []string{"https://hooks.example.com"}
			c.WebhookSecret = "hook-secret"
		}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			checkValidation(t, cfg.Validate(), tt.wantField)
		})
	}
}

func TestValidateProductionGuards(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantField string
	}{
		{"default jwt secret rejected", func(c *Config) {}, "JWT_SECRET"},
		{"default admin password rejected", func(c *Config) {
			c.JWTSecret = "real-secret"
		}, "ADMIN_PASSWORD"},
		{"generated sticky salt rejected", func(c *Config) {
			c.JWTSecret = "real-secret"
			c.AdminPassword = "real-password"
			c.AdmissionMode = "sticky"
			c.saltGenerated = true
		}, "ADMISSION_SALT"},
		{"hardened prod passes", func(c *Config) {
			c.JWTSecret = "real-secret"
			c.AdminPassword = "real-password"
		}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.AppEnv = "prod"
			tt.mutate(cfg)
			checkValidation(t, cfg.Validate(), tt.wantField)
		})
	}
}

func TestSplitList(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"   ", nil},
		{"https://a.example.com", []string{"https://a.example.com"}},
		{"a, b ,c", []string{"a", "b", "c"}},
		{"a,,b,", []string{"a", "b"}},
	}
	for _, tt := range tests {
		got := splitList(tt.in)
		if len(got) != len(tt.want) {
			t.Errorf("splitList(%q) = %v, want %v", tt.in, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("splitList(%q)[%d] = %q, want %q", tt.in, i, got[i], tt.want[i])
			}
		}
	}
}

func checkValidation(t *testing.T, err error, wantField string) {
	t.Helper()
	if wantField == "" {
		if err != nil {
			t.Fatalf("expected valid config, got %v", err)
		}
		return
	}
	var verr ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if verr.Field != wantField {
		t.Errorf("failed field = %q, want %q", verr.Field, wantField)
	}
}
