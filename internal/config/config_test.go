package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// DatabaseConfig.GetDSN / ServerConfig.GetAddress
// ---------------------------------------------------------------------------

func TestGetDSN(t *testing.T) {
	cfg := DatabaseConfig{
		Host:     "db.example.com",
		Port:     5433,
		User:     "ums",
		Password: "secret",
		Name:     "usermanagement",
		SSLMode:  "disable",
	}
	want := "host=db.example.com port=5433 user=ums password=secret dbname=usermanagement sslmode=disable"
	if got := cfg.GetDSN(); got != want {
		t.Errorf("GetDSN() = %q, want %q", got, want)
	}
}

func TestGetAddress(t *testing.T) {
	s := ServerConfig{Host: "127.0.0.1", Port: 8081}
	if got := s.GetAddress(); got != "127.0.0.1:8081" {
		t.Errorf("GetAddress() = %q, want 127.0.0.1:8081", got)
	}
}

// ---------------------------------------------------------------------------
// Validate
// ---------------------------------------------------------------------------

func minimalValidConfig() *Config {
	return &Config{
		Server:   ServerConfig{Port: 8080},
		Database: DatabaseConfig{Host: "localhost", Name: "usermanagement", User: "ums"},
		Security: SecurityConfig{RateLimiting: RateLimitingConfig{
			Enabled: true, Backend: "memory",
			RequestsPerMinute: 300, Burst: 60, WriteRequestsPerMinute: 60, WriteBurst: 20,
		}},
		Logging:   LoggingConfig{Level: "info", Format: "json"},
		Telemetry: TelemetryConfig{Metrics: MetricsConfig{Enabled: true, Port: 9090}},
		Audit:     AuditConfig{Enabled: true, DefaultActorID: SeedAdminID, DefaultLimit: 100},
	}
}

func TestValidate(t *testing.T) {
	if err := minimalValidConfig().Validate(); err != nil {
		t.Fatalf("Validate() unexpected error on minimal config: %v", err)
	}

	invalid := map[string]func(*Config){
		"server port 0":           func(c *Config) { c.Server.Port = 0 },
		"server port 70000":       func(c *Config) { c.Server.Port = 70000 },
		"missing database host":   func(c *Config) { c.Database.Host = "" },
		"missing database name":   func(c *Config) { c.Database.Name = "" },
		"missing database user":   func(c *Config) { c.Database.User = "" },
		"unknown limiter backend": func(c *Config) { c.Security.RateLimiting.Backend = "memcached" },
		"redis backend no addr":   func(c *Config) { c.Security.RateLimiting.Backend = "redis" },
		"zero burst":              func(c *Config) { c.Security.RateLimiting.WriteBurst = 0 },
		"tls without cert":        func(c *Config) { c.Security.TLS = TLSConfig{Enabled: true, KeyFile: "k.pem"} },
		"tls without key":         func(c *Config) { c.Security.TLS = TLSConfig{Enabled: true, CertFile: "c.pem"} },
		"bad log level":           func(c *Config) { c.Logging.Level = "verbose" },
		"metrics on server port":  func(c *Config) { c.Telemetry.Metrics.Port = 8080 },
		"actor not a uuid":        func(c *Config) { c.Audit.DefaultActorID = "admin" },
		"zero default limit":      func(c *Config) { c.Audit.DefaultLimit = 0 },
		"webhook shipper no url":  func(c *Config) { c.Audit.Shippers = []AuditShipperConfig{{Enabled: true, Type: "webhook"}} },
		"file shipper no path":    func(c *Config) { c.Audit.Shippers = []AuditShipperConfig{{Enabled: true, Type: "file", File: &AuditFileConfig{}}} },
		"unknown shipper type":    func(c *Config) { c.Audit.Shippers = []AuditShipperConfig{{Enabled: true, Type: "syslog"}} },
		"unknown audit store":     func(c *Config) { c.Audit.Store = "mongodb" },
		"memory store in release": func(c *Config) { c.Audit.Store = AuditStoreMemory },
	}
	for name, mutate := range invalid {
		t.Run(name, func(t *testing.T) {
			cfg := minimalValidConfig()
			mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() expected error, got nil")
			}
		})
	}

	valid := map[string]func(*Config){
		"redis backend with addr": func(c *Config) {
			c.Security.RateLimiting.Backend = "redis"
			c.Redis.Addr = "redis:6379"
		},
		"rate limiting disabled":   func(c *Config) { c.Security.RateLimiting = RateLimitingConfig{} },
		"metrics disabled":         func(c *Config) { c.Telemetry.Metrics = MetricsConfig{} },
		"empty default actor":      func(c *Config) { c.Audit.DefaultActorID = "" },
		"disabled invalid shipper": func(c *Config) { c.Audit.Shippers = []AuditShipperConfig{{Type: "syslog"}} },
		"memory store in dev mode": func(c *Config) {
			c.Server.DevMode = true
			c.Audit.Store = AuditStoreMemory
		},
	}
	for name, mutate := range valid {
		t.Run(name, func(t *testing.T) {
			cfg := minimalValidConfig()
			mutate(cfg)
			if err := cfg.Validate(); err != nil {
				t.Errorf("Validate() unexpected error: %v", err)
			}
		})
	}
}

func TestAuditConfig_DefaultActor(t *testing.T) {
	a := AuditConfig{DefaultActorID: SeedAdminID}
	if got := a.DefaultActor(); got != uuid.MustParse(SeedAdminID) {
		t.Errorf("DefaultActor() = %s, want %s", got, SeedAdminID)
	}
	if got := (&AuditConfig{}).DefaultActor(); got != uuid.Nil {
		t.Errorf("DefaultActor() on empty id = %s, want nil UUID", got)
	}
}

// ---------------------------------------------------------------------------
// Load
// ---------------------------------------------------------------------------

// writeTempConfig writes content to config.yaml in a fresh temp dir
func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal("WriteFile:", err)
	}
	return path
}

func TestLoad_DefaultsApplied(t *testing.T) {
	cfg, err := Load(writeTempConfig(t, "database:\n  host: dbhost\n"))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Server.Port != 8080 || cfg.Server.Host != "0.0.0.0" {
		t.Errorf("server defaults = %s, want 0.0.0.0:8080", cfg.Server.GetAddress())
	}
	if cfg.Server.ShutdownTimeout != 15*time.Second {
		t.Errorf("ShutdownTimeout = %v, want 15s", cfg.Server.ShutdownTimeout)
	}
	if cfg.Database.Host != "dbhost" || cfg.Database.Port != 5432 || cfg.Database.SSLMode != "require" {
		t.Errorf("database = %+v", cfg.Database)
	}
	if cfg.Security.RateLimiting.Backend != "memory" {
		t.Errorf("rate limiting backend = %q, want memory", cfg.Security.RateLimiting.Backend)
	}
	if cfg.Audit.DefaultActorID != SeedAdminID || cfg.Audit.DefaultLimit != 100 || !cfg.Audit.Enabled || cfg.Audit.Store != AuditStorePostgres {
		t.Errorf("audit defaults = %+v", cfg.Audit)
	}
	if cfg.Telemetry.Metrics.Port != 9090 {
		t.Errorf("metrics port = %d, want 9090", cfg.Telemetry.Metrics.Port)
	}
	if cfg.Auth.TokenTTL != time.Hour {
		t.Errorf("TokenTTL = %v, want 1h", cfg.Auth.TokenTTL)
	}
}

func TestLoad_WithConfigFile(t *testing.T) {
	const content = `
server:
  port: 9999
database:
  host: "dbhost"
  name: "testdb"
  user: "testuser"
security:
  rate_limiting:
    backend: "Redis"
redis:
  addr: "redis.internal:6379"
logging:
  level: "DEBUG"
  format: "text"
audit:
  default_limit: 250
  shippers:
    - enabled: true
      type: file
      file:
        path: /var/log/ums/audit.jsonl
        max_size_mb: 10
        max_backups: 3
    - enabled: false
      type: webhook
      webhook:
        url: https://siem.example.com/ingest
        headers:
          X-Token: abc
        batch_size: 50
`
	cfg, err := Load(writeTempConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Server.Port != 9999 {
		t.Errorf("Server.Port = %d, want 9999", cfg.Server.Port)
	}
	if cfg.Database.Name != "testdb" || cfg.Database.User != "testuser" {
		t.Errorf("database = %+v", cfg.Database)
	}
	if cfg.Security.RateLimiting.Backend != "redis" || cfg.Redis.Addr != "redis.internal:6379" {
		t.Errorf("rate limiting = %+v, redis = %+v", cfg.Security.RateLimiting, cfg.Redis)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "text" {
		t.Errorf("logging = %+v", cfg.Logging)
	}
	if cfg.Audit.DefaultLimit != 250 {
		t.Errorf("Audit.DefaultLimit = %d, want 250", cfg.Audit.DefaultLimit)
	}
	if len(cfg.Audit.Shippers) != 2 {
		t.Fatalf("len(Audit.Shippers) = %d, want 2", len(cfg.Audit.Shippers))
	}
	if f := cfg.Audit.Shippers[0].File; f == nil || f.Path != "/var/log/ums/audit.jsonl" || f.MaxBackups != 3 {
		t.Errorf("file shipper = %+v", f)
	}
	// viper lower-cases map keys
	if w := cfg.Audit.Shippers[1].Webhook; w == nil || w.BatchSize != 50 || w.Headers["x-token"] != "abc" {
		t.Errorf("webhook shipper = %+v", w)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	t.Setenv("UMS_DATABASE_HOST", "env-host")
	t.Setenv("UMS_SERVER_PORT", "7070")
	t.Setenv("UMS_AUDIT_DEFAULT_ACTOR_ID", "00000000-0000-0000-0000-000000000000")

	cfg, err := Load(writeTempConfig(t, "database:\n  host: file-host\n"))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Database.Host != "env-host" {
		t.Errorf("Database.Host = %q, want env-host", cfg.Database.Host)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("Server.Port = %d, want 7070", cfg.Server.Port)
	}
	if cfg.Audit.DefaultActor() != uuid.Nil {
		t.Errorf("DefaultActor() = %s, want nil UUID", cfg.Audit.DefaultActor())
	}
}

func TestLoad_SecretExpansion(t *testing.T) {
	t.Setenv("TEST_DB_PASS", "mysecret")
	t.Setenv("TEST_JWT", "jwt-secret-value")
	const content = `
database:
  password: "${TEST_DB_PASS}"
auth:
  jwt_secret: "$TEST_JWT"
`
	cfg, err := Load(writeTempConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Database.Password != "mysecret" {
		t.Errorf("Database.Password = %q, want mysecret", cfg.Database.Password)
	}
	if cfg.Auth.JWTSecret != "jwt-secret-value" {
		t.Errorf("Auth.JWTSecret = %q, want jwt-secret-value", cfg.Auth.JWTSecret)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	if _, err := Load(writeTempConfig(t, "server: [unclosed")); err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	_, err := Load(writeTempConfig(t, "logging:\n  level: chatty\n"))
	if err == nil || !strings.Contains(err.Error(), "invalid configuration") {
		t.Errorf("Load() error = %v, want invalid configuration", err)
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("Load() expected error for a missing explicit config file, got nil")
	}
}
