package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/keithlinneman/invitegate/internal/api"
	"github.com/keithlinneman/invitegate/internal/auth"
	"github.com/keithlinneman/invitegate/internal/cfg"
	"github.com/keithlinneman/invitegate/internal/csrf"
	"github.com/keithlinneman/invitegate/internal/cryptoutil"
	"github.com/keithlinneman/invitegate/internal/health"
	"github.com/keithlinneman/invitegate/internal/httpmw"
	"github.com/keithlinneman/invitegate/internal/httpserver"
	"github.com/keithlinneman/invitegate/internal/log"
	"github.com/keithlinneman/invitegate/internal/metrics"
	"github.com/keithlinneman/invitegate/internal/opshttp"
	"github.com/keithlinneman/invitegate/internal/otelx"
	"github.com/keithlinneman/invitegate/internal/pipeline"
	"github.com/keithlinneman/invitegate/internal/policy"
	"github.com/keithlinneman/invitegate/internal/prof"
	"github.com/keithlinneman/invitegate/internal/ratelimit"
	"github.com/keithlinneman/invitegate/internal/repo"
	"github.com/keithlinneman/invitegate/internal/secrets"
	"github.com/keithlinneman/invitegate/internal/secstore"
	"github.com/keithlinneman/invitegate/internal/upload"
	"github.com/keithlinneman/invitegate/internal/validate"
	v "github.com/keithlinneman/invitegate/internal/version"
)

const drainPeriod = 30 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	vi := v.Get()

	var conf cfg.App
	var showVersion bool
	var envFile string

	cfg.Register(flag.CommandLine, &conf)
	flag.BoolVar(&showVersion, "V", false, "Print version+build information and exit")
	flag.StringVar(&envFile, "env-file", ".env", "optional dotenv file read before the environment")
	flag.Parse()

	if showVersion {
		fmt.Printf("%s %s (commit=%s, commit_date=%s, build_id=%s, build_date=%s, go=%s, dirty=%v)\n",
			vi.App, vi.Version, vi.Commit, vi.CommitDate, vi.BuildID, vi.BuildDate, vi.GoVersion,
			vi.VCSDirty != nil && *vi.VCSDirty,
		)
		os.Exit(0)
	}

	if err := cfg.LoadDotEnv(envFile); err != nil {
		fmt.Fprintln(os.Stderr, "dotenv error:", err)
		os.Exit(1)
	}
	cfg.FillFromEnv(flag.CommandLine, cfg.EnvPrefix, func(format string, args ...any) {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	})
	if err := cfg.Validate(conf); err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}

	lvl, err := log.ParseLevel(conf.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid log level %s: %v\n", conf.LogLevel, err)
		os.Exit(1)
	}
	stackLvl, _ := log.ParseLevel(conf.StacktraceLevel)
	lg, err := log.New(log.Options{
		App:               v.AppName,
		Version:           vi.Version,
		Commit:            vi.Commit,
		Level:             lvl,
		StacktraceLevel:   stackLvl,
		JSONFormat:        conf.LogJSON,
		MaxErrorLinks:     conf.MaxErrorLinks,
		IncludeErrorLinks: conf.IncludeErrorLinks,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger init error:", err)
		os.Exit(1)
	}
	defer lg.Sync()
	L := lg.With("component", "server")
	ctx = log.WithContext(ctx, L)

	L.Info(ctx, "initializing application",
		"version", vi.Version,
		"commit", vi.Commit,
		"build_id", vi.BuildID,
		"go_version", vi.GoVersion,
		"http_port", conf.HTTPPort,
		"admin_port", conf.AdminPort,
		"production", conf.Production,
		"store_backend", conf.StoreBackend,
		"db_path", conf.DBPath,
		"upload_s3_bucket", conf.UploadS3Bucket,
		"policy_file", conf.PolicyFile,
		"trusted_hops", conf.TrustedHops,
		"enable_tracing", conf.EnableTracing,
		"enable_pyroscope", conf.EnablePyroscope,
	)

	m := metrics.New()
	m.SetBuildInfoFromVersion("server", vi)

	stopProf, err := prof.Start(ctx, prof.Options{
		Enabled:       conf.EnablePyroscope,
		AppName:       v.AppName,
		ServerAddress: conf.PyroServer,
		TenantID:      conf.PyroTenantID,
		Tags: map[string]string{
			"component": "server",
			"version":   vi.Version,
			"commit":    vi.Commit,
		},
	})
	m.SetProfilingActive(conf.EnablePyroscope && err == nil)
	defer stopProf()

	// collector runs on localhost
	shutdownOTEL, err := otelx.Init(ctx, otelx.Options{
		Enabled:   conf.EnableTracing,
		Endpoint:  conf.OTLPEndpoint,
		Insecure:  true,
		Sample:    conf.TraceSample,
		Service:   v.AppName,
		Component: "server",
		Version:   vi.Version,
	})
	if err != nil {
		L.Error(ctx, err, "otel init failed, tracing disabled")
		shutdownOTEL = func(context.Context) error { return nil }
	}
	defer func() { _ = shutdownOTEL(context.Background()) }()

	pol, err := policy.Load(conf.PolicyFile)
	if err != nil {
		L.Error(ctx, err, "failed to load security policy", "path", conf.PolicyFile)
		os.Exit(1)
	}

	stores, err := secstore.Open(ctx, conf.StoreBackend, conf.RedisAddr, conf.RedisPassword, conf.RedisDB)
	if err != nil {
		L.Error(ctx, err, "failed to open security store", "backend", conf.StoreBackend)
		os.Exit(1)
	}
	defer stores.Close()
	// returns at once for redis, which expires keys itself
	go secstore.NewSweeper(stores,
		secstore.WithInterval(conf.SweepInterval),
		secstore.WithOnSweep(m.SetStoreEntries),
	).Run(ctx)

	limiters, err := ratelimit.NewSet(pol.Limiters, stores.Windows, stores.History,
		ratelimit.WithOnDenied(m.IncRateLimited),
	)
	if err != nil {
		L.Error(ctx, err, "invalid rate limit policy")
		os.Exit(1)
	}
	L.Info(ctx, "rate limiters configured", "limiters", limiters.Names())

	flood := ratelimit.NewFloodGuard(ctx,
		ratelimit.WithRate(pol.Flood.PerSecond, pol.Flood.Burst),
		ratelimit.WithFloodDenied(func(string) { m.IncFloodDenied() }),
		// logged once per visitor until it is evicted
		ratelimit.WithOnFirstDenied(func(ip string) {
			L.Warn(ctx, "flood guard triggered", "client.address", ip)
		}),
		ratelimit.WithOnCapacity(func() {
			m.IncFloodCapacity()
			L.Warn(ctx, "flood guard at capacity, rejecting new clients until idle ones are evicted")
		}),
	)

	guard := csrf.New(stores.Tokens,
		csrf.WithTTL(conf.CSRFTTL),
		csrf.WithDoubleSubmit(conf.CSRFDoubleSubmit),
		csrf.WithSecureCookie(conf.Production),
		csrf.WithSkipPaths(pol.SkipPaths...),
		csrf.WithOnReject(func(r csrf.Reason) { m.IncCSRFRejected(string(r)) }),
	)

	secret, err := secrets.Resolve(ctx, conf.JWTSecret, conf.JWTSecretSSMParam, L)
	if err != nil {
		if conf.Production {
			L.Error(ctx, err, "failed to resolve JWT secret")
			os.Exit(1)
		}
		hex, rerr := cryptoutil.RandomHex(32)
		if rerr != nil {
			L.Error(ctx, rerr, "failed to generate JWT secret")
			os.Exit(1)
		}
		secret = []byte(hex)
		L.Warn(ctx, "no JWT secret configured, using an ephemeral one; tokens will not survive a restart")
	}
	tokens, err := auth.NewTokenService(secret, v.AppName, conf.JWTTTL, nil)
	if err != nil {
		L.Error(ctx, err, "failed to create token service")
		os.Exit(1)
	}

	db, err := repo.Open(ctx, conf.DBPath, nil)
	if err != nil {
		L.Error(ctx, err, "failed to open database", "path", conf.DBPath)
		os.Exit(1)
	}
	defer db.Close()

	var uploads upload.Store
	if conf.UploadS3Bucket != "" {
		uploads, err = upload.NewS3Store(ctx, upload.S3Options{
			Logger: L,
			Bucket: conf.UploadS3Bucket,
			Prefix: conf.UploadS3Prefix,
		})
		if err != nil {
			L.Error(ctx, err, "failed to create S3 upload store")
			os.Exit(1)
		}
	} else {
		L.Warn(ctx, "no upload bucket configured, gallery photos are kept in memory")
		uploads = upload.NewMemoryStore()
	}
	uploadPolicy := upload.ImagePolicy()
	uploadPolicy.MaxBytes = conf.UploadMaxBytes

	svc, err := api.New(api.Options{
		Store:        db,
		Tokens:       tokens,
		Hasher:       auth.NewHasher(0),
		Uploads:      uploads,
		UploadPolicy: &uploadPolicy,
		Pipelines: pipeline.Deps{
			Limiters: limiters,
			Auth:     tokens,
			CSRF:     guard,
			OnValidationFailed: func(s validate.Surface) {
				m.IncValidationFailed(string(s))
			},
			OnContentRejected: m.IncContentRejected,
		},
	})
	if err != nil {
		L.Error(ctx, err, "failed to build api")
		os.Exit(1)
	}

	var gate health.ShutdownGate
	readiness := health.All(
		gate.Probe(),
		health.Dependency("database", 2*time.Second, db.Ping),
		health.Dependency("secstore", 2*time.Second, stores.Ping),
	)

	siteHTTPStop, err := httpserver.Start(ctx, &httpserver.Options{
		Logger:       L,
		Port:         conf.HTTPPort,
		UseRecoverMW: true,
		OnPanic:      m.IncHttpPanic,
		MetricsMW:    m.Middleware,
		Health:       health.Fixed(true, ""),
		Readiness:    readiness,
		APIRoutes:    svc.Routes,
		ClientIPOpts: httpmw.ClientIPOptions{TrustedHops: conf.TrustedHops},
		FloodMW:      flood.Middleware,
		// room for a full gallery batch plus multipart framing
		MaxBodyBytes: uploadPolicy.MaxBytes*int64(uploadPolicy.MaxFiles) + 1<<20,
	})
	if err != nil {
		L.Error(ctx, err, "failed to start http listener")
		os.Exit(1)
	}
	defer func() { _ = siteHTTPStop(context.Background()) }()

	// the admin port also rejects public peers in middleware in case the
	// network boundary is ever misconfigured
	opsHTTPStop, err := opshttp.Start(ctx, L, &opshttp.Options{
		Port:         conf.AdminPort,
		Metrics:      m.Handler(),
		EnablePprof:  conf.EnablePprof,
		Health:       health.Fixed(true, ""),
		Readiness:    readiness,
		UseRecoverMW: true,
		OnPanic:      m.IncHttpPanic,
	})
	if err != nil {
		L.Error(ctx, err, "failed to start ops http listener")
		os.Exit(1)
	}
	defer func() { _ = opsHTTPStop(context.Background()) }()

	if err := notifySystemd(); err != nil {
		L.Debug(ctx, "systemd notify skipped", "reason", err.Error())
	}

	<-ctx.Done()
	stop()
	L.Info(context.Background(), "shutdown signal received")

	// fail readiness so the load balancer stops routing here
	gate.Set("draining")
	L.Info(context.Background(), "draining", "period", drainPeriod.String())

	forceCh := make(chan os.Signal, 1)
	signal.Notify(forceCh, os.Interrupt, syscall.SIGTERM)
	select {
	case <-time.After(drainPeriod):
		L.Info(context.Background(), "drain period complete")
	case <-forceCh:
		L.Warn(context.Background(), "second signal received, skipping drain")
	}
	signal.Stop(forceCh)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := siteHTTPStop(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "http server shutdown")
	}
	if err := opsHTTPStop(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "ops http server shutdown")
	}
	if err := shutdownOTEL(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "otel shutdown")
	}
	L.Info(context.Background(), "shutdown complete")
}

func notifySystemd() error {
	// set by systemd for Type=notify units
	addr := os.Getenv("NOTIFY_SOCKET")
	if addr == "" {
		return fmt.Errorf("NOTIFY_SOCKET not set")
	}
	conn, err := net.Dial("unixgram", addr)
	if err != nil {
		return fmt.Errorf("systemd notify: dial: %w", err)
	}
	defer conn.Close()
	if _, err := conn.Write([]byte("READY=1")); err != nil {
		return fmt.Errorf("systemd notify: write: %w", err)
	}
	return nil
}
