package main // Entry point package

import (
	"context"
	"errors"
	"log" // Logging library
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/iliyamo/quiz-auth/internal/config"
	"github.com/iliyamo/quiz-auth/internal/database"
	"github.com/iliyamo/quiz-auth/internal/handler"
	"github.com/iliyamo/quiz-auth/internal/observability"
	"github.com/iliyamo/quiz-auth/internal/queue"
	"github.com/iliyamo/quiz-auth/internal/repository"
	"github.com/iliyamo/quiz-auth/internal/router"
	"github.com/iliyamo/quiz-auth/internal/service"
	"github.com/iliyamo/quiz-auth/internal/utils"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file loaded: %v", err)
	}
	cfg := config.Load() // Load environment config

	if err := observability.InitSentry(cfg.SentryDSN, cfg.Env); err != nil {
		log.Printf("sentry init failed: %v", err)
	}
	defer observability.FlushSentry()

	db, err := database.Open(cfg)
	if err != nil {
		log.Fatalf("mysql: %v", err)
	}
	defer db.Close()
	if err := database.RunMigrations(db); err != nil {
		log.Fatalf("migrations: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	codec := utils.NewTokenCodec(cfg.JWTAccessSecret, cfg.JWTRefreshSecret, cfg.AccessTTL(), cfg.RefreshTTL())
	checks := map[string]handler.Pinger{"mysql": db.PingContext}

	var sessions service.SessionStore
	switch cfg.SessionBackend {
	case "mysql":
		repo := repository.NewSQLSessionRepo(db, codec.RefreshTTL)
		go purgeSessions(ctx, repo)
		sessions = repo
	case "redis":
		rdb, err := config.NewRedisClient(config.LoadRedisConfig())
		if err != nil {
			log.Fatalf("redis: %v", err)
		}
		defer rdb.Close()
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
		sessions = repository.NewSessionRepo(rdb, cfg.SessionPrefix, codec.RefreshTTL)
	default:
		log.Fatalf("unknown SESSION_BACKEND %q", cfg.SessionBackend)
	}

	svc := service.NewAuthService(service.Deps{
		Accounts: repository.NewUserRepo(db),
		Sessions: sessions,
		Tokens:   codec,
		Notifier: queue.NewPublisher(cfg.RabbitURL),
	}, service.Options{APIURL: cfg.APIURL, BcryptCost: cfg.BcryptCost})

	go func() {
		err := queue.StartActivationConsumer(ctx, cfg.RabbitURL, queue.NewFileMailer("logs"))
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("activation-consumer: stopped: %v", err)
		}
	}()

	e := echo.New() // Create Echo instance
	e.HideBanner = true
	e.Use(echomw.Recover(), echomw.RequestID(), echomw.Logger())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:     []string{cfg.ClientURL},
		AllowCredentials: true,
	}))

	router.RegisterRoutes(e, handler.Health(checks))
	router.RegisterAuth(e, handler.NewAuthHandler(svc, cfg), codec)

	addr := ":" + cfg.Port                                // Address string with port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env) // Print startup info

	go func() {
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("http server: %v", err)
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown: %v", err)
	}
	// let detached activation mails finish publishing
	svc.Wait()
}

// purgeSessions drops expired rows of the MySQL session store hourly.
func purgeSessions(ctx context.Context, repo *repository.SQLSessionRepo) {
	t := time.NewTicker(time.Hour)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := repo.PurgeExpired(ctx)
			if err != nil {
				log.Printf("sessions: purge failed: %v", err)
				continue
			}
			if n > 0 {
				log.Printf("sessions: purged %d expired", n)
			}
		}
	}
}
