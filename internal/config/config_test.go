package config

import (
	"os"
	"reflect"
	"strings"
	"testing"
	"time"
)

// setSecrets provides the two required secrets so Load can succeed.
func setSecrets(t *testing.T) {
	t.Helper()
	t.Setenv("JWT_SECRET", "jwt-secret")
	t.Setenv("PLUGIN_SECRET_KEY", "plugin-secret")
}

// --- MustLoad ---

func TestMustLoad_PanicsOnInvalidConfig(t *testing.T) {
	setSecrets(t)
	t.Setenv("LOG_LEVEL", "verbose") // invalid -> Load() error
	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("MustLoad should panic on invalid config")
		}
	}()
	_ = MustLoad()
}

func TestMustLoad_Success_NoPanic(t *testing.T) {
	setSecrets(t)
	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("MustLoad should not panic on valid defaults, got: %v", r)
		}
	}()
	cfg := MustLoad()
	if cfg.APIBasePath == "" {
		t.Fatalf("unexpected empty config from MustLoad")
	}
}

// --- Load success + normalization + parsing ---

func TestLoad_Defaults(t *testing.T) {
	setSecrets(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.APIBasePath != "/api/v1" || cfg.Socket.Path != "/socket" {
		t.Fatalf("paths unexpected: api=%q ws=%q", cfg.APIBasePath, cfg.Socket.Path)
	}
	if cfg.DedupWindow != 2*time.Second {
		t.Fatalf("dedup window default = %v, want 2s", cfg.DedupWindow)
	}
	if cfg.LinkCodeTTL != 5*time.Minute {
		t.Fatalf("link code ttl default = %v, want 5m", cfg.LinkCodeTTL)
	}
	if cfg.EventBuffer != 256 || cfg.Socket.SendBuffer != 64 {
		t.Fatalf("buffers unexpected: events=%d send=%d", cfg.EventBuffer, cfg.Socket.SendBuffer)
	}
	if cfg.Redis.Addr != "" || cfg.NATS.URL != "" {
		t.Fatalf("redis/nats should be disabled by default: %+v %+v", cfg.Redis, cfg.NATS)
	}
	if cfg.NATS.SubjectPrefix != "flamewall.events" {
		t.Fatalf("nats prefix default = %q", cfg.NATS.SubjectPrefix)
	}
}

func TestLoad_Success_Overrides(t *testing.T) {
	setSecrets(t)
	t.Setenv("PORT", "8088")
	t.Setenv("READ_TIMEOUT", "2s")
	t.Setenv("READ_HEADER_TIMEOUT", "1s")
	t.Setenv("WRITE_TIMEOUT", "3s")
	t.Setenv("IDLE_TIMEOUT", "4s")
	t.Setenv("MAX_HEADER_BYTES", "8192")
	t.Setenv("GIN_MODE", "weird") // will normalize to "release"

	t.Setenv("LOG_LEVEL", "warning") // will normalize to "warn"
	t.Setenv("LOG_PRETTY", "yes")
	t.Setenv("SWAGGER_ENABLED", "on")
	t.Setenv("API_BASE_PATH", "api/v1/")

	t.Setenv("DB_PATH", "db.sqlite")
	t.Setenv("DEDUP_WINDOW", "500ms")
	t.Setenv("LINK_CODE_TTL", "10m")
	t.Setenv("EVENT_BUFFER", "8")

	t.Setenv("RATE_RPS", "x")      // -> default 5.0
	t.Setenv("RATE_BURST", "nope") // -> default 10

	t.Setenv("CORS_ALLOWED_ORIGINS", " https://a.com , , http://b ")
	t.Setenv("ENABLE_HSTS", "TRUE")
	t.Setenv("HSTS_MAX_AGE", "24h")

	t.Setenv("WS_PATH", "ws/")
	t.Setenv("WS_SEND_BUFFER", "16")
	t.Setenv("WS_RATE_RPS", "2.5")
	t.Setenv("WS_RATE_BURST", "3")
	t.Setenv("WS_PING_INTERVAL", "5s")

	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("REDIS_DB", "2")
	t.Setenv("NATS_URL", "nats://nats:4222")
	t.Setenv("NATS_SUBJECT_PREFIX", "fw")

	t.Setenv("OTEL_ENABLED", "1")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "otel:4317")
	t.Setenv("OTEL_EXPORTER_OTLP_INSECURE", "0")
	t.Setenv("OTEL_SERVICE_NAME", "svc")
	t.Setenv("OTEL_TRACES_SAMPLER_ARG", "0.75")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Port != "8088" ||
		cfg.ReadTimeout != 2*time.Second ||
		cfg.ReadHeaderTimeout != 1*time.Second ||
		cfg.WriteTimeout != 3*time.Second ||
		cfg.IdleTimeout != 4*time.Second ||
		cfg.MaxHeaderBytes != 8192 ||
		cfg.GinMode != "release" {
		t.Fatalf("server fields unexpected: %+v", cfg)
	}
	if cfg.LogLevel != "warn" || !cfg.LogPretty || !cfg.SwaggerEnabled || cfg.APIBasePath != "/api/v1" {
		t.Fatalf("logging/docs unexpected: %+v", cfg)
	}
	if cfg.DBPath != "db.sqlite" || cfg.DedupWindow != 500*time.Millisecond || cfg.LinkCodeTTL != 10*time.Minute || cfg.EventBuffer != 8 {
		t.Fatalf("app fields unexpected: %+v", cfg)
	}
	if cfg.RateRPS != 5.0 || cfg.RateBurst != 10 {
		t.Fatalf("rate limiting unexpected: %+v", cfg)
	}
	if !reflect.DeepEqual(cfg.CORS.AllowedOrigins, []string{"https://a.com", "http://b"}) {
		t.Fatalf("cors origins unexpected: %#v", cfg.CORS.AllowedOrigins)
	}
	if !cfg.Security.EnableHSTS || cfg.Security.HSTSMaxAge != 24*time.Hour {
		t.Fatalf("security unexpected: %+v", cfg.Security)
	}
	want := SocketConfig{Path: "/ws", SendBuffer: 16, RateRPS: 2.5, RateBurst: 3, PingInterval: 5 * time.Second, MaxFrame: 64 << 10}
	if cfg.Socket != want {
		t.Fatalf("socket unexpected: %+v", cfg.Socket)
	}
	if cfg.Redis.Addr != "redis:6379" || cfg.Redis.DB != 2 {
		t.Fatalf("redis unexpected: %+v", cfg.Redis)
	}
	if cfg.NATS.URL != "nats://nats:4222" || cfg.NATS.SubjectPrefix != "fw" {
		t.Fatalf("nats unexpected: %+v", cfg.NATS)
	}
	if cfg.Auth.JWTSecret != "jwt-secret" || cfg.Auth.PluginSecret != "plugin-secret" {
		t.Fatalf("auth unexpected: %+v", cfg.Auth)
	}
	if !cfg.OTEL.Enabled || cfg.OTEL.Endpoint != "otel:4317" || cfg.OTEL.Insecure || cfg.OTEL.ServiceName != "svc" || cfg.OTEL.SampleRatio != 0.75 {
		t.Fatalf("otel unexpected: %+v", cfg.OTEL)
	}
}

// --- Load validations (each case triggers exactly one validation error) ---

func TestLoad_ValidationErrors(t *testing.T) {
	cases := []struct {
		name, key, val, want string
	}{
		{"invalid LOG_LEVEL", "LOG_LEVEL", "verbose", "LOG_LEVEL"},
		{"empty PORT via spaces", "PORT", "   ", "PORT must not be empty"},
		{"non-positive timeouts", "READ_TIMEOUT", "0s", "timeouts must be positive"},
		{"max header bytes <= 0", "MAX_HEADER_BYTES", "0", "MAX_HEADER_BYTES"},
		{"empty DB_PATH", "DB_PATH", "   ", "DB_PATH must not be empty"},
		{"blank JWT_SECRET", "JWT_SECRET", "  ", "JWT_SECRET"},
		{"blank PLUGIN_SECRET_KEY", "PLUGIN_SECRET_KEY", "  ", "PLUGIN_SECRET_KEY"},
		{"token ttl", "TOKEN_TTL", "0s", "TOKEN_TTL"},
		{"dedup window", "DEDUP_WINDOW", "-1s", "DEDUP_WINDOW"},
		{"link code ttl", "LINK_CODE_TTL", "0s", "LINK_CODE_TTL"},
		{"event buffer", "EVENT_BUFFER", "0", "EVENT_BUFFER"},
		{"rate rps negative", "RATE_RPS", "-1", "RATE_RPS"},
		{"ws rate rps negative", "WS_RATE_RPS", "-1", "WS_RATE_RPS"},
		{"rate burst < 1", "RATE_BURST", "0", "RATE_BURST"},
		{"send buffer < 1", "WS_SEND_BUFFER", "0", "WS_SEND_BUFFER"},
		{"ping interval", "WS_PING_INTERVAL", "0s", "WS_PING_INTERVAL"},
		{"max frame", "WS_MAX_FRAME_BYTES", "0", "WS_MAX_FRAME_BYTES"},
		{"hsts max age negative", "HSTS_MAX_AGE", "-1s", "HSTS_MAX_AGE"},
		{"otel sample ratio out of range", "OTEL_TRACES_SAMPLER_ARG", "1.5", "OTEL_TRACES_SAMPLER_ARG"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			setSecrets(t)
			t.Setenv(tc.key, tc.val)
			if _, err := Load(); err == nil || !containsErr(err, tc.want) {
				t.Fatalf("expected %q validation error, got: %v", tc.want, err)
			}
		})
	}
}

func TestLoad_MissingSecrets(t *testing.T) {
	os.Unsetenv("JWT_SECRET")
	os.Unsetenv("PLUGIN_SECRET_KEY")
	if _, err := Load(); err == nil || !containsErr(err, "JWT_SECRET") {
		t.Fatalf("expected JWT_SECRET error, got %v", err)
	}
}

// --- helpers ---

func TestHelpers_getenv(t *testing.T) {
	t.Setenv("X_EMPTY", "")
	if getenv("X_EMPTY", "d") != "d" {
		t.Fatalf("getenv should fall back to default on empty var")
	}
	t.Setenv("X_SET", "val")
	if getenv("X_SET", "d") != "val" {
		t.Fatalf("getenv should read set value")
	}
}

func TestHelpers_getfloat_getint_getdur(t *testing.T) {
	t.Setenv("F_VALID", "3.14")
	if getfloat("F_VALID", 0) != 3.14 {
		t.Fatalf("getfloat parse failed")
	}
	t.Setenv("F_BAD", "nope")
	if getfloat("F_BAD", 1.23) != 1.23 {
		t.Fatalf("getfloat default on bad parse failed")
	}
	t.Setenv("I_VALID", "42")
	if getint("I_VALID", 0) != 42 {
		t.Fatalf("getint parse failed")
	}
	t.Setenv("I_BAD", "x")
	if getint("I_BAD", 7) != 7 {
		t.Fatalf("getint default on bad parse failed")
	}
	t.Setenv("D_VALID", "150ms")
	if getdur("D_VALID", time.Second) != 150*time.Millisecond {
		t.Fatalf("getdur parse failed")
	}
	t.Setenv("D_BAD", "zzz")
	if getdur("D_BAD", 2*time.Second) != 2*time.Second {
		t.Fatalf("getdur default on bad parse failed")
	}
}

func TestHelpers_getbool(t *testing.T) {
	for i, v := range []string{"1", "true", "TRUE", " yes ", "Y", "on"} {
		k := "B_T_" + string(rune('a'+i))
		t.Setenv(k, v)
		if !getbool(k, false) {
			t.Fatalf("getbool(%q) = false; want true", v)
		}
	}
	for i, v := range []string{"0", "false", "FALSE", " no ", "N", "off"} {
		k := "B_F_" + string(rune('a'+i))
		t.Setenv(k, v)
		if getbool(k, true) {
			t.Fatalf("getbool(%q) = true; want false", v)
		}
	}
	t.Setenv("B_EMPTY", "")
	if !getbool("B_EMPTY", true) || getbool("B_EMPTY", false) {
		t.Fatalf("getbool default behavior unexpected")
	}
}

func TestHelpers_splitCSV_and_normalizeBasePath(t *testing.T) {
	if out := splitCSV(""); out != nil {
		t.Fatalf("splitCSV empty should return nil")
	}
	want := []string{"a", "b", "c"}
	if got := splitCSV(" a, ,b ,  c  ,"); !reflect.DeepEqual(got, want) {
		t.Fatalf("splitCSV mismatch: got %#v want %#v", got, want)
	}
	for in, out := range map[string]string{"": "/", "v1": "/v1", "/v1/": "/v1", " / ": "/"} {
		if got := normalizeBasePath(in); got != out {
			t.Fatalf("normalizeBasePath(%q) = %q, want %q", in, got, out)
		}
	}
}

func TestMain(m *testing.M) {
	os.Unsetenv("PORT")
	os.Exit(m.Run())
}

func containsErr(err error, want string) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), want)
}
