// Command trustd serves the trust engine over HTTP.
//
// Collaborators are picked from flags (each falls back to a GOTRUST_*
// environment variable):
//
//	-postgres   accounts and biometric templates; in-memory when empty
//	-redis      sessions and the step-up throttle; in-process when empty
//	-audit-db   SQLite audit log (default gotrust-audit.db)
//	-mqtt       optional broker the audit stream is mirrored to
//	-s3-bucket  optional bucket for biometric preview artifacts
//	-influx     optional InfluxDB the metrics are pushed to
//	-totp-secrets  optional YAML file of account_id: secret; enables TOTP
//	               step-up
//
// Biometric samples are feature vectors sent as JSON arrays
// (biometric.VectorExtractor); the factor is on when Biometric.Enabled is
// set in the config.
//
// Endpoints:
//
//	POST /v1/login                 {"handle":"...","password":"..."}
//	POST /v1/logout                bearer token
//	GET  /v1/session               bearer token
//	POST /v1/password              {"current":"...","next":"..."}
//	POST /v1/step-up/totp          {"code":"123456"}
//	POST /v1/step-up/biometric     {"sample":[...]}
//	GET  /v1/biometric             own enrollments
//	POST /v1/biometric             {"sample":[...] or {"vector":[...],"preview":"<base64>"},"label":"..."}
//	POST /v1/biometric/{id}/confirm {"sample":[...]}
//	DELETE /v1/biometric/{id}      biometric.remove (step-up)
//	POST /v1/accounts/{id}/unlock  account.unlock (step-up)
//	GET  /v1/audit                 audit.read
//	GET  /metrics                  Prometheus text format
//	GET  /healthz
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	goTrust "github.com/MrEthical07/goTrust"
	"github.com/MrEthical07/goTrust/biometric"
	"github.com/MrEthical07/goTrust/internal/logging"
	"github.com/MrEthical07/goTrust/metrics/export/influx"
	"github.com/MrEthical07/goTrust/metrics/export/prometheus"
	"github.com/MrEthical07/goTrust/sink/mqtt"
	"github.com/MrEthical07/goTrust/store"
	"github.com/MrEthical07/goTrust/store/memory"
	"github.com/MrEthical07/goTrust/store/postgres"
	"github.com/MrEthical07/goTrust/store/s3preview"
	"github.com/MrEthical07/goTrust/store/sqlite"
)

type options struct {
	configPath  string
	addr        string
	postgresDSN string
	redisAddr   string
	auditDB     string
	mqttBroker  string
	s3Bucket    string
	s3Endpoint  string
	influxURL   string
	influxToken string
	influxOrg   string
	influxBkt   string
	totpSecrets string
	seedAdmin   string
}

func envOr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func parseFlags(args []string) (options, error) {
	var o options
	fs := flag.NewFlagSet("trustd", flag.ContinueOnError)
	fs.StringVar(&o.configPath, "config", envOr("GOTRUST_CONFIG", ""), "YAML or TOML config file")
	fs.StringVar(&o.addr, "addr", envOr("GOTRUST_ADDR", ":8080"), "listen address")
	fs.StringVar(&o.postgresDSN, "postgres", envOr("GOTRUST_POSTGRES_DSN", ""), "postgres DSN")
	fs.StringVar(&o.redisAddr, "redis", envOr("GOTRUST_REDIS_ADDR", ""), "redis address")
	fs.StringVar(&o.auditDB, "audit-db", envOr("GOTRUST_AUDIT_DB", "gotrust-audit.db"), "SQLite audit database")
	fs.StringVar(&o.mqttBroker, "mqtt", envOr("GOTRUST_MQTT_BROKER", ""), "MQTT broker URL")
	fs.StringVar(&o.s3Bucket, "s3-bucket", envOr("GOTRUST_S3_BUCKET", ""), "bucket for biometric previews")
	fs.StringVar(&o.s3Endpoint, "s3-endpoint", envOr("GOTRUST_S3_ENDPOINT", ""), "S3-compatible endpoint")
	fs.StringVar(&o.influxURL, "influx", envOr("GOTRUST_INFLUX_URL", ""), "InfluxDB URL")
	fs.StringVar(&o.influxToken, "influx-token", envOr("GOTRUST_INFLUX_TOKEN", ""), "InfluxDB token")
	fs.StringVar(&o.influxOrg, "influx-org", envOr("GOTRUST_INFLUX_ORG", ""), "InfluxDB organization")
	fs.StringVar(&o.influxBkt, "influx-bucket", envOr("GOTRUST_INFLUX_BUCKET", "gotrust"), "InfluxDB bucket")
	fs.StringVar(&o.totpSecrets, "totp-secrets", envOr("GOTRUST_TOTP_SECRETS", ""), "YAML file of account_id: TOTP secret")
	fs.StringVar(&o.seedAdmin, "seed-admin", envOr("GOTRUST_SEED_ADMIN", ""), "handle:password of an admin to create at startup")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	return o, nil
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts); err != nil {
		fmt.Fprintf(os.Stderr, "trustd: %v\n", err)
		os.Exit(1)
	}
}

// accountStore is what trustd needs from a durable store beyond the
// engine's interfaces: creating the seed account.
type accountStore interface {
	store.AccountStore
	store.TemplateStore
	CreateAccount(ctx context.Context, a store.Account) error
}

type memoryStore struct {
	*memory.Accounts
	*memory.Templates
}

func (m memoryStore) CreateAccount(ctx context.Context, a store.Account) error {
	if _, err := m.GetAccountByHandle(ctx, a.Handle); err == nil {
		return store.ErrConflict
	}
	m.Put(a)
	return nil
}

func run(ctx context.Context, opts options) error {
	cfg := goTrust.DefaultConfig()
	if opts.configPath != "" {
		var err error
		if cfg, err = goTrust.LoadConfig(opts.configPath); err != nil {
			return err
		}
	}
	logger := logging.New(cfg.Logging)

	// -------- STORES --------
	var accounts accountStore = memoryStore{memory.NewAccounts(), memory.NewTemplates()}
	if opts.postgresDSN != "" {
		db, err := postgres.Open(ctx, opts.postgresDSN, 5*time.Second)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := postgres.Migrate(ctx, db); err != nil {
			return err
		}
		accounts = postgres.New(db)
		logger.Info("using postgres store")
	} else {
		logger.Warn("no postgres DSN, accounts are kept in memory")
	}

	// -------- AUDIT --------
	auditLog, err := sqlite.Open(ctx, opts.auditDB)
	if err != nil {
		return err
	}
	defer auditLog.Close()
	sinks := goTrust.MultiSink{auditLog}
	if opts.mqttBroker != "" {
		pub, err := mqtt.Connect(mqtt.Config{Broker: opts.mqttBroker, ClientID: "trustd", QoS: 1})
		if err != nil {
			return err
		}
		defer pub.Close()
		sinks = append(sinks, pub)
	}

	// -------- ENGINE --------
	var secrets goTrust.TOTPSecretProvider
	if opts.totpSecrets != "" {
		s, err := loadTOTPSecrets(opts.totpSecrets)
		if err != nil {
			return err
		}
		secrets = s
		cfg.TOTP.Enabled = true
	}

	builder := goTrust.New().
		WithConfig(cfg).
		WithLogger(logger).
		WithAccountStore(accounts).
		WithTemplateStore(accounts).
		WithFeatureExtractor(biometric.VectorExtractor{}).
		WithAuditSink(sinks)
	if secrets != nil {
		builder = builder.WithTOTPSecrets(secrets)
	}

	if opts.redisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: opts.redisAddr})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping: %w", err)
		}
		builder = builder.WithRedis(rdb)
	}
	if opts.s3Bucket != "" {
		previews, err := s3preview.New(ctx, s3preview.Config{
			Bucket:    opts.s3Bucket,
			Prefix:    "gotrust",
			Endpoint:  opts.s3Endpoint,
			AccessKey: os.Getenv("GOTRUST_S3_ACCESS_KEY"),
			SecretKey: os.Getenv("GOTRUST_S3_SECRET_KEY"),
		})
		if err != nil {
			return err
		}
		builder = builder.WithPreviewStore(previews)
	}

	engine, err := builder.Build()
	if err != nil {
		return err
	}
	defer engine.Close()

	if opts.seedAdmin != "" {
		if err := seedAdmin(ctx, cfg, accounts, opts.seedAdmin); err != nil {
			return err
		}
	}

	// -------- METRICS --------
	if opts.influxURL != "" {
		exp, err := influx.Connect(ctx, influx.Config{
			URL:    opts.influxURL,
			Token:  opts.influxToken,
			Org:    opts.influxOrg,
			Bucket: opts.influxBkt,
		}, engine)
		if err != nil {
			return err
		}
		defer exp.Close()
		go exp.Run(ctx, 10*time.Second, logger)
	}

	srv := &http.Server{
		Addr:              opts.addr,
		Handler:           newServer(engine, auditLog, prometheus.New(engine), logger).routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", slog.String("addr", opts.addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	logger.Info("shutting down")
	return srv.Shutdown(shutdownCtx)
}

func seedAdmin(ctx context.Context, cfg goTrust.Config, accounts accountStore, seed string) error {
	handle, secret, ok := strings.Cut(seed, ":")
	if !ok || handle == "" || secret == "" {
		return errors.New("seed-admin must be handle:password")
	}
	hasher, err := goTrust.NewPasswordHasher(cfg)
	if err != nil {
		return err
	}
	hash, err := hasher.Hash(secret)
	if err != nil {
		return err
	}
	err = accounts.CreateAccount(ctx, store.Account{
		ID:           "admin-" + strings.ToLower(handle),
		Handle:       handle,
		PasswordHash: hash,
		Role:         "admin",
	})
	if errors.Is(err, store.ErrConflict) {
		return nil
	}
	return err
}
