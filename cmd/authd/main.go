package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	auth "github.com/goliatone/go-auth-lifecycle"
	"github.com/goliatone/go-auth-lifecycle/activitymap"
	"github.com/goliatone/go-auth-lifecycle/api"
	"github.com/goliatone/go-auth-lifecycle/config"
	"github.com/goliatone/go-auth-lifecycle/logging"
	"github.com/goliatone/go-auth-lifecycle/mailer"
	"github.com/goliatone/go-auth-lifecycle/middleware/csrf"
	"github.com/goliatone/go-auth-lifecycle/repository"
	"github.com/goliatone/go-auth-lifecycle/store/memory"
	redisstore "github.com/goliatone/go-auth-lifecycle/store/redis"
	"github.com/redis/go-redis/v9"
)

func main() {
	configFile := flag.String("config", "", "path to a YAML config file")
	envFile := flag.String("env", ".env", "path to a dotenv file")
	flag.Parse()

	if err := run(*configFile, *envFile); err != nil {
		fmt.Fprintf(os.Stderr, "authd: %v\n", err)
		os.Exit(1)
	}
}

func run(configFile, envFile string) error {
	opts := []config.Option{config.WithEnvFile(envFile)}
	if configFile != "" {
		opts = append(opts, config.WithFile(configFile))
	}

	cfg, err := config.Load(opts...)
	if err != nil {
		return err
	}

	zl, err := logging.New(cfg.Log.Level)
	if err != nil {
		return err
	}
	defer zl.Sync()
	logger := logging.NewAdapter(zl)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := repository.Open(cfg.Database.DSN)
	if err != nil {
		return err
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := repository.CreateSchema(ctx, db); err != nil {
			return err
		}
	}
	accounts := repository.NewAccountRepository(db)

	store, health, err := newTokenStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	codec := auth.NewTokenCodecFromConfig(cfg, auth.WithCodecLogger(logger.Named("codec")))
	hasher := auth.NewHasher(cfg.GetHashCost())
	sink := activitymap.ZapSink(zl.Named("activity"))

	sessions := auth.NewSessionIssuer(accounts, hasher, codec, store,
		auth.WithSessionTimeout(cfg.GetOperationTimeout()),
		auth.WithSessionLogger(logger.Named("session")),
		auth.WithSessionActivitySink(sink),
	)

	lifecycle := auth.NewAccountLifecycle(accounts, hasher, codec, store, newMailer(cfg, logger),
		auth.WithLifecycleTimeout(cfg.GetOperationTimeout()),
		auth.WithLifecycleLogger(logger.Named("accounts")),
		auth.WithLifecycleActivitySink(sink),
		auth.WithLinkBuilder(auth.LinkBuilder{
			BaseURL:     cfg.Mail.BaseURL,
			ConfirmPath: cfg.Mail.ConfirmPath,
			ResetPath:   cfg.Mail.ResetPath,
		}),
	)

	guard := auth.NewAuthGuard(codec, logger.Named("guard"))

	controller := api.NewController(sessions, lifecycle,
		api.WithControllerLogger(logger.Named("http")),
		api.WithCookies(api.CookieOptions{
			Enabled:     cfg.Cookies.Enabled,
			Secure:      cfg.Cookies.Secure,
			SameSite:    cfg.Cookies.SameSite,
			Domain:      cfg.Cookies.Domain,
			AccessName:  cfg.Cookies.AccessName,
			RefreshName: cfg.Cookies.RefreshName,
		}),
		api.WithAuthGuard(guard),
		api.WithHealthCheck(health...),
	)

	app := fiber.New(fiber.Config{
		AppName:               "authd",
		ReadTimeout:           cfg.Server.ReadTimeout,
		WriteTimeout:          cfg.Server.WriteTimeout,
		DisableStartupMessage: true,
	})
	app.Use(recover.New())
	if cfg.Cookies.Enabled && cfg.Cookies.CSRF {
		app.Use(csrf.New(csrf.Config{
			SessionCookies: []string{cfg.Cookies.AccessName, cfg.Cookies.RefreshName},
			CookieDomain:   cfg.Cookies.Domain,
			CookieSecure:   cfg.Cookies.Secure,
			CookieSameSite: cfg.Cookies.SameSite,
			SecureKey:      []byte(cfg.Cookies.CSRFKey),
			Expiration:     csrf.DefaultExpiration,
		}))
		csrf.RegisterRoutes(app)
	}
	controller.Register(app)

	errc := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Server.Addr, "store", cfg.Store.Driver, "mail", cfg.Mail.Driver)
		errc <- app.Listen(cfg.Server.Addr)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	return app.ShutdownWithTimeout(cfg.Server.ShutdownTimeout)
}

type closableStore interface {
	auth.TokenStore
	io.Closer
}

func newTokenStore(ctx context.Context, cfg *config.Config) (closableStore, []api.HealthCheck, error) {
	if cfg.Store.Driver != config.StoreRedis {
		return memory.New(
			memory.WithShards(cfg.Store.Shards),
			memory.WithReapInterval(cfg.Store.ReapInterval),
		), nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Store.RedisAddr,
		Password: cfg.Store.RedisPassword,
		DB:       cfg.Store.RedisDB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, nil, auth.WrapKind(auth.ErrStoreUnavailable, err, "redis ping")
	}

	check := func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}
	return redisstore.New(client, redisstore.WithPrefix(cfg.Store.RedisPrefix)), []api.HealthCheck{check}, nil
}

func newMailer(cfg *config.Config, logger *logging.Adapter) *mailer.Mailer {
	var sender mailer.Sender = mailer.LogSender{Logger: logger.Named("mail")}
	if cfg.Mail.Driver == config.MailSMTP {
		sender = mailer.NewSMTPSender(mailer.SMTPConfig{
			Host:     cfg.Mail.SMTPHost,
			Port:     cfg.Mail.SMTPPort,
			Username: cfg.Mail.SMTPUsername,
			Password: cfg.Mail.SMTPPassword,
		})
	}
	return mailer.New(cfg.Mail.From, mailer.NewRenderer(nil), sender)
}
