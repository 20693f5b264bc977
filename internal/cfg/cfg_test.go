package cfg

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func wantErrContains(t *testing.T, err error, sub string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error containing %q, got <nil>", sub)
	}
	if !strings.Contains(err.Error(), sub) {
		t.Fatalf("error %q does not contain %q", err.Error(), sub)
	}
}

// newTestConfig registers flags on a fresh FlagSet, parses the given args,
// and returns the resulting App. This isolates each test from flag.CommandLine.
func newTestConfig(t *testing.T, args []string) App {
	t.Helper()
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	var c App
	Register(fs, &c)
	if err := fs.Parse(args); err != nil {
		t.Fatalf("flag parse: %v", err)
	}
	return c
}

func TestRegister_Defaults(t *testing.T) {
	c := newTestConfig(t, nil)

	if c.HTTPPort != 8080 || c.AdminPort != 9000 {
		t.Errorf("ports = %d/%d, want 8080/9000", c.HTTPPort, c.AdminPort)
	}
	if c.Production || c.EnableTracing || c.EnablePyroscope {
		t.Errorf("production/tracing/pyroscope should default off: %+v", c)
	}
	if c.StoreBackend != "memory" || c.SweepInterval != 5*time.Minute {
		t.Errorf("store = %q every %s", c.StoreBackend, c.SweepInterval)
	}
	if c.CSRFTTL != time.Hour || !c.CSRFDoubleSubmit {
		t.Errorf("csrf = %s double-submit=%v", c.CSRFTTL, c.CSRFDoubleSubmit)
	}
	if c.JWTTTL != 24*time.Hour || c.JWTSecret != "" {
		t.Errorf("jwt ttl = %s, secret set = %v", c.JWTTTL, c.JWTSecret != "")
	}
	if c.UploadMaxBytes != 5<<20 || c.UploadS3Prefix != "gallery" {
		t.Errorf("upload = %d bytes under %q", c.UploadMaxBytes, c.UploadS3Prefix)
	}
	if c.DBPath != "invitegate.db" || c.TrustedHops != 1 {
		t.Errorf("db = %q, hops = %d", c.DBPath, c.TrustedHops)
	}
	// the defaults must be runnable as-is outside production
	if err := Validate(c); err != nil {
		t.Fatalf("defaults do not validate: %v", err)
	}
}

func TestRegister_CLIOverrides(t *testing.T) {
	c := newTestConfig(t, []string{
		"-production",
		"-store-backend=redis",
		"-redis-addr=cache:6379",
		"-redis-db=2",
		"-csrf-ttl=30m",
		"-csrf-double-submit=false",
		"-jwt-secret-ssm-param=/invitegate/jwt",
		"-upload-s3-bucket=wedding-photos",
		"-upload-max-bytes=1048576",
		"-trusted-hops=2",
	})

	if !c.Production || c.StoreBackend != "redis" || c.RedisAddr != "cache:6379" || c.RedisDB != 2 {
		t.Errorf("store overrides not applied: %+v", c)
	}
	if c.CSRFTTL != 30*time.Minute || c.CSRFDoubleSubmit {
		t.Errorf("csrf = %s double-submit=%v", c.CSRFTTL, c.CSRFDoubleSubmit)
	}
	if c.JWTSecretSSMParam != "/invitegate/jwt" || c.UploadS3Bucket != "wedding-photos" || c.UploadMaxBytes != 1<<20 {
		t.Errorf("secret/upload overrides not applied: %+v", c)
	}
	if err := Validate(c); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func parseWithEnv(t *testing.T, prefix string, args []string, env map[string]string) (App, []string) {
	t.Helper()
	for k, v := range env {
		t.Setenv(prefix+k, v)
	}
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	var c App
	Register(fs, &c)
	if err := fs.Parse(args); err != nil {
		t.Fatalf("flag parse: %v", err)
	}
	var msgs []string
	FillFromEnv(fs, prefix, func(format string, a ...any) {
		msgs = append(msgs, fmt.Sprintf(format, a...))
	})
	return c, msgs
}

func TestFillFromEnv(t *testing.T) {
	c, msgs := parseWithEnv(t, "IGTEST_", nil, map[string]string{
		"STORE_BACKEND":    "redis",
		"REDIS_ADDR":       "redis.internal:6379",
		"CSRF_TTL":         "2h",
		"JWT_SECRET":       strings.Repeat("k", 32),
		"UPLOAD_MAX_BYTES": "2097152",
		"TRACE_SAMPLE":     "0.25",
		"LOG_JSON":         "false",
	})
	if len(msgs) != 0 {
		t.Fatalf("unexpected messages: %v", msgs)
	}
	if c.StoreBackend != "redis" || c.RedisAddr != "redis.internal:6379" {
		t.Errorf("store = %q %q", c.StoreBackend, c.RedisAddr)
	}
	if c.CSRFTTL != 2*time.Hour || len(c.JWTSecret) != 32 || c.UploadMaxBytes != 2<<20 {
		t.Errorf("env not applied: %+v", c)
	}
	if c.TraceSample != 0.25 || c.LogJSON {
		t.Errorf("trace sample = %v, log json = %v", c.TraceSample, c.LogJSON)
	}
}

func TestFillFromEnv_CLITakesPrecedence(t *testing.T) {
	c, msgs := parseWithEnv(t, "IGTEST2_",
		[]string{"-http-port=9090", "-store-backend=memory"},
		map[string]string{"HTTP_PORT": "7777", "STORE_BACKEND": "redis", "DB_PATH": "/data/app.db"},
	)
	if c.HTTPPort != 9090 || c.StoreBackend != "memory" {
		t.Errorf("cli lost: port %d backend %q", c.HTTPPort, c.StoreBackend)
	}
	if c.DBPath != "/data/app.db" {
		t.Errorf("env for an unset flag not applied: %q", c.DBPath)
	}
	if len(msgs) != 2 {
		t.Fatalf("override messages = %v", msgs)
	}
	for _, m := range msgs {
		if !strings.Contains(m, "overrides env") {
			t.Errorf("message %q", m)
		}
	}
}

func TestFillFromEnv_InvalidEnvIgnored(t *testing.T) {
	c, msgs := parseWithEnv(t, "IGTEST3_", nil, map[string]string{"CSRF_TTL": "an hour"})
	if c.CSRFTTL != time.Hour {
		t.Errorf("CSRFTTL = %s, want default", c.CSRFTTL)
	}
	if len(msgs) != 1 || !strings.Contains(msgs[0], "ignoring invalid env IGTEST3_CSRF_TTL") {
		t.Fatalf("messages = %v", msgs)
	}
}

func TestValidate_OK(t *testing.T) {
	c := newTestConfig(t, []string{
		"-enable-pyroscope=true",
		"-pyro-server=https://pyro:4040",
		"-pyro-tenant=test-tenant",
		"-enable-tracing=true",
		"-otlp-endpoint=otel:4317",
		"-trace-sample=0.2",
	})
	if err := Validate(c); err != nil {
		t.Fatalf("Validate() unexpected error: %v", err)
	}
}

func TestValidate_InvalidCombined(t *testing.T) {
	c := newTestConfig(t, []string{
		"-http-port=0",
		"-admin-port=70000",
		"-log-level=nope",
		"-stacktrace-level=alsonope",
		"-trace-sample=2.0",
		"-enable-pyroscope=true",
		"-pyro-server=not-a-url",
		"-enable-tracing=true",
		"-otlp-endpoint=otel",
		"-include-error-links=true",
		"-max-error-links=0",
	})

	err := Validate(c)
	if err == nil {
		t.Fatal("Validate() expected errors, got <nil>")
	}

	wantErrContains(t, err, "invalid HTTP_PORT")
	wantErrContains(t, err, "invalid ADMIN_PORT")
	wantErrContains(t, err, "invalid LOG_LEVEL")
	wantErrContains(t, err, "invalid STACKTRACE_LEVEL")
	wantErrContains(t, err, "invalid TRACE_SAMPLE")
	wantErrContains(t, err, "PYRO_SERVER must be a URL")
	wantErrContains(t, err, "OTLP_ENDPOINT must be host:port")
	wantErrContains(t, err, "MAX_ERROR_LINKS")
}

func TestValidate_Store(t *testing.T) {
	c := newTestConfig(t, []string{"-store-backend=redis"})
	wantErrContains(t, Validate(c), "REDIS_ADDR required")

	c = newTestConfig(t, []string{"-store-backend=redis", "-redis-addr=redis"})
	wantErrContains(t, Validate(c), "REDIS_ADDR must be host:port")

	c = newTestConfig(t, []string{"-store-backend=etcd"})
	wantErrContains(t, Validate(c), "invalid STORE_BACKEND")

	c = newTestConfig(t, []string{"-store-backend=redis", "-redis-addr=localhost:6379"})
	if err := Validate(c); err != nil {
		t.Fatalf("Validate() unexpected error: %v", err)
	}
}

func TestValidate_Production(t *testing.T) {
	c := newTestConfig(t, []string{"-production"})
	err := Validate(c)
	wantErrContains(t, err, "JWT_SECRET or JWT_SECRET_SSM_PARAM required")
	wantErrContains(t, err, "UPLOAD_S3_BUCKET required")

	c = newTestConfig(t, []string{
		"-production",
		"-jwt-secret-ssm-param=/invitegate/jwt",
		"-upload-s3-bucket=photos",
	})
	if err := Validate(c); err != nil {
		t.Fatalf("Validate() unexpected error: %v", err)
	}
}

func TestValidate_Durations(t *testing.T) {
	c := newTestConfig(t, []string{
		"-sweep-interval=0s",
		"-csrf-ttl=-1m",
		"-jwt-ttl=0s",
		"-jwt-secret=short",
		"-upload-max-bytes=0",
	})
	err := Validate(c)
	wantErrContains(t, err, "SWEEP_INTERVAL")
	wantErrContains(t, err, "CSRF_TTL")
	wantErrContains(t, err, "JWT_TTL")
	wantErrContains(t, err, "at least 32 bytes")
	wantErrContains(t, err, "UPLOAD_MAX_BYTES")
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	content := "TESTDOTENV_HTTP_PORT=8181\nTESTDOTENV_LOG_LEVEL=debug\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	// already set variables win over the file
	t.Setenv("TESTDOTENV_LOG_LEVEL", "warn")
	t.Setenv("TESTDOTENV_HTTP_PORT", "")
	os.Unsetenv("TESTDOTENV_HTTP_PORT")

	if err := LoadDotEnv(path); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	var c App
	Register(fs, &c)
	if err := fs.Parse(nil); err != nil {
		t.Fatalf("flag parse: %v", err)
	}
	FillFromEnv(fs, "TESTDOTENV_", nil)

	if c.HTTPPort != 8181 {
		t.Errorf("HTTPPort: want 8181 from .env, got %d", c.HTTPPort)
	}
	if c.LogLevel != "warn" {
		t.Errorf("LogLevel: want warn from env, got %q", c.LogLevel)
	}
}

func TestLoadDotEnv_Missing(t *testing.T) {
	if err := LoadDotEnv(filepath.Join(t.TempDir(), "nope.env")); err != nil {
		t.Fatalf("missing file: %v", err)
	}
	if err := LoadDotEnv(""); err != nil {
		t.Fatalf("empty path: %v", err)
	}
}
