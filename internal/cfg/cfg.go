package cfg

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/keithlinneman/invitegate/internal/log"
)

const EnvPrefix = "INVITEGATE_"

type App struct {
	LogJSON           bool
	LogLevel          string
	HTTPPort          int
	AdminPort         int
	EnablePprof       bool
	EnablePyroscope   bool
	EnableTracing     bool
	PyroServer        string
	PyroTenantID      string
	OTLPEndpoint      string
	TraceSample       float64
	StacktraceLevel   string
	IncludeErrorLinks bool
	MaxErrorLinks     int
	TrustedHops       int
	Production        bool

	StoreBackend  string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	SweepInterval time.Duration

	CSRFTTL          time.Duration
	CSRFDoubleSubmit bool

	DBPath            string
	JWTSecret         string
	JWTSecretSSMParam string
	JWTTTL            time.Duration

	UploadS3Bucket string
	UploadS3Prefix string
	UploadMaxBytes int64

	PolicyFile string
}

// Register binds all config fields to the given FlagSet with defaults inline
func Register(fs *flag.FlagSet, c *App) {
	fs.BoolVar(&c.LogJSON, "log-json", true, "JSON logs (true) or logfmt (false)")
	fs.StringVar(&c.LogLevel, "log-level", "info", "debug|info|warn|error")
	fs.IntVar(&c.HTTPPort, "http-port", 8080, "listen TCP port (1..65535)")
	fs.IntVar(&c.AdminPort, "admin-port", 9000, "admin listen TCP port (1..65535)")
	fs.BoolVar(&c.EnablePprof, "enable-pprof", true, "Enable pprof profiling (on admin port only)")
	fs.BoolVar(&c.EnableTracing, "enable-tracing", false, "Enable OTLP tracing and push to otlp-endpoint")
	fs.BoolVar(&c.EnablePyroscope, "enable-pyroscope", false, "Enable pushing Pyroscope data to server set in -pyro-server")
	fs.BoolVar(&c.IncludeErrorLinks, "include-error-links", true, "Include error links in log messages")
	fs.IntVar(&c.MaxErrorLinks, "max-error-links", 5, "max error chain depth (1..64)")
	fs.Float64Var(&c.TraceSample, "trace-sample", 0.0, "trace sampling ratio (0..1)")
	fs.StringVar(&c.StacktraceLevel, "stacktrace-level", "error", "debug|info|warn|error")
	fs.StringVar(&c.PyroServer, "pyro-server", "", "pyroscope server url to push to")
	fs.StringVar(&c.PyroTenantID, "pyro-tenant", "", "tenant (x-scope-orgid) to use for pyro-server")
	fs.StringVar(&c.OTLPEndpoint, "otlp-endpoint", "", "OTLP endpoint to push to (gRPC) (host:port)")
	fs.IntVar(&c.TrustedHops, "trusted-hops", 1, "number of trusted reverse proxies in front of the server (0..10)")
	fs.BoolVar(&c.Production, "production", false, "production mode: secure cookies, required secrets and upload bucket")

	fs.StringVar(&c.StoreBackend, "store-backend", "memory", "security store backend: memory|redis")
	fs.StringVar(&c.RedisAddr, "redis-addr", "", "redis host:port for the redis store backend")
	fs.StringVar(&c.RedisPassword, "redis-password", "", "redis password")
	fs.IntVar(&c.RedisDB, "redis-db", 0, "redis database number")
	fs.DurationVar(&c.SweepInterval, "sweep-interval", 5*time.Minute, "interval between sweeps of expired in-memory entries")

	fs.DurationVar(&c.CSRFTTL, "csrf-ttl", time.Hour, "CSRF token lifetime")
	fs.BoolVar(&c.CSRFDoubleSubmit, "csrf-double-submit", true, "also require the CSRF cookie to match the submitted token")

	fs.StringVar(&c.DBPath, "db-path", "invitegate.db", "sqlite database file")
	fs.StringVar(&c.JWTSecret, "jwt-secret", "", "HMAC secret for bearer tokens (at least 32 bytes)")
	fs.StringVar(&c.JWTSecretSSMParam, "jwt-secret-ssm-param", "", "ssm parameter name to load the JWT secret from")
	fs.DurationVar(&c.JWTTTL, "jwt-ttl", 24*time.Hour, "bearer token lifetime")

	fs.StringVar(&c.UploadS3Bucket, "upload-s3-bucket", "", "s3 bucket for gallery photos (memory store when empty)")
	fs.StringVar(&c.UploadS3Prefix, "upload-s3-prefix", "gallery", "s3 key prefix for gallery photos")
	fs.Int64Var(&c.UploadMaxBytes, "upload-max-bytes", 5<<20, "max bytes per uploaded photo")

	fs.StringVar(&c.PolicyFile, "policy-file", "", "optional YAML file overriding rate limit and CSRF policies")
}

// LoadDotEnv reads KEY=VALUE pairs from path into the environment without
// overriding variables that are already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// FillFromEnv sets any flag not explicitly passed on the CLI from
// environment variables. Flag "foo-bar" maps to PREFIX_FOO_BAR.
// Precedence: cli flag > env var > default.
func FillFromEnv(fs *flag.FlagSet, prefix string, logf func(string, ...any)) {
	explicit := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

	fs.VisitAll(func(f *flag.Flag) {
		key := prefix + strings.ReplaceAll(strings.ToUpper(f.Name), "-", "_")
		envVal, envSet := os.LookupEnv(key)
		if !envSet {
			return
		}
		if explicit[f.Name] {
			if logf != nil {
				logf("flag -%s: cli value %q overrides env %s=%q", f.Name, f.Value.String(), key, envVal)
			}
			return
		}
		prev := f.Value.String()
		if err := fs.Set(f.Name, envVal); err != nil {
			fs.Set(f.Name, prev)
			if logf != nil {
				logf("flag -%s: ignoring invalid env %s=%q: %v", f.Name, key, envVal, err)
			}
		}
	})
}

// Validate checks that config values are within expected ranges and formats.
// Returns an error describing all invalid fields, or nil if all valid.
func Validate(c App) error {
	var errs []error

	// Ports
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.HTTPPort))
	}
	if c.AdminPort < 1 || c.AdminPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid ADMIN_PORT %d (must be 1..65535)", c.AdminPort))
	}
	if c.AdminPort == c.HTTPPort {
		errs = append(errs, fmt.Errorf("ADMIN_PORT and HTTP_PORT must differ (both %d)", c.HTTPPort))
	}

	// Log levels
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("invalid LOG_LEVEL %q: %w", c.LogLevel, err))
	}
	if c.StacktraceLevel != "" {
		if _, err := log.ParseLevel(c.StacktraceLevel); err != nil {
			errs = append(errs, fmt.Errorf("invalid STACKTRACE_LEVEL %q: %w", c.StacktraceLevel, err))
		}
	}

	// Tracing sample
	if c.TraceSample < 0 || c.TraceSample > 1 {
		errs = append(errs, fmt.Errorf("invalid TRACE_SAMPLE %.3f (must be 0..1)", c.TraceSample))
	}

	// Pyroscope (URL, scheme and tenant)
	if c.EnablePyroscope {
		if c.PyroServer == "" {
			errs = append(errs, fmt.Errorf("PYRO_SERVER required when ENABLE_PYROSCOPE=true"))
		} else if u, err := url.Parse(c.PyroServer); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("PYRO_SERVER must be a URL (got %q)", c.PyroServer))
		}
		if c.PyroTenantID == "" {
			errs = append(errs, fmt.Errorf("PYRO_TENANT required when ENABLE_PYROSCOPE=true"))
		}
	}

	// OTLP tracing (grpc exporter wants host:port, no scheme)
	if c.EnableTracing {
		if c.OTLPEndpoint == "" {
			errs = append(errs, fmt.Errorf("OTLP_ENDPOINT required when ENABLE_TRACING=true"))
		} else if _, _, err := net.SplitHostPort(c.OTLPEndpoint); err != nil {
			errs = append(errs, fmt.Errorf("OTLP_ENDPOINT must be host:port (got %q): %v", c.OTLPEndpoint, err))
		}
	}

	// Error link limits
	if c.IncludeErrorLinks {
		if c.MaxErrorLinks < 1 || c.MaxErrorLinks > 64 {
			errs = append(errs, fmt.Errorf("MAX_ERROR_LINKS must be 1..64 (got %d)", c.MaxErrorLinks))
		}
	}

	if c.TrustedHops < 0 || c.TrustedHops > 10 {
		errs = append(errs, fmt.Errorf("TRUSTED_HOPS must be 0..10 (got %d)", c.TrustedHops))
	}

	// Security store
	switch c.StoreBackend {
	case "memory":
	case "redis":
		if c.RedisAddr == "" {
			errs = append(errs, fmt.Errorf("REDIS_ADDR required when STORE_BACKEND=redis"))
		} else if _, _, err := net.SplitHostPort(c.RedisAddr); err != nil {
			errs = append(errs, fmt.Errorf("REDIS_ADDR must be host:port (got %q): %v", c.RedisAddr, err))
		}
		if c.RedisDB < 0 {
			errs = append(errs, fmt.Errorf("REDIS_DB must be >= 0 (got %d)", c.RedisDB))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid STORE_BACKEND %q (must be memory|redis)", c.StoreBackend))
	}
	if c.SweepInterval <= 0 {
		errs = append(errs, fmt.Errorf("SWEEP_INTERVAL must be positive (got %s)", c.SweepInterval))
	}
	if c.CSRFTTL <= 0 {
		errs = append(errs, fmt.Errorf("CSRF_TTL must be positive (got %s)", c.CSRFTTL))
	}

	if c.DBPath == "" {
		errs = append(errs, fmt.Errorf("DB_PATH is required"))
	}
	if c.JWTTTL <= 0 {
		errs = append(errs, fmt.Errorf("JWT_TTL must be positive (got %s)", c.JWTTTL))
	}
	if c.JWTSecret != "" && len(c.JWTSecret) < 32 {
		errs = append(errs, fmt.Errorf("JWT_SECRET must be at least 32 bytes"))
	}
	if c.UploadMaxBytes < 1 || c.UploadMaxBytes > 50<<20 {
		errs = append(errs, fmt.Errorf("UPLOAD_MAX_BYTES must be 1..%d (got %d)", 50<<20, c.UploadMaxBytes))
	}

	// Production refuses ephemeral secrets and in-memory uploads
	if c.Production {
		if c.JWTSecret == "" && c.JWTSecretSSMParam == "" {
			errs = append(errs, fmt.Errorf("JWT_SECRET or JWT_SECRET_SSM_PARAM required when PRODUCTION=true"))
		}
		if c.UploadS3Bucket == "" {
			errs = append(errs, fmt.Errorf("UPLOAD_S3_BUCKET required when PRODUCTION=true"))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
