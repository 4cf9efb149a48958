package main // Entry point package

import (
	"context"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/two-step-auth/internal/code"
	"github.com/iliyamo/two-step-auth/internal/config"
	"github.com/iliyamo/two-step-auth/internal/cookie"
	"github.com/iliyamo/two-step-auth/internal/database"
	"github.com/iliyamo/two-step-auth/internal/handler"
	"github.com/iliyamo/two-step-auth/internal/middleware"
	"github.com/iliyamo/two-step-auth/internal/notifier"
	"github.com/iliyamo/two-step-auth/internal/queue"
	"github.com/iliyamo/two-step-auth/internal/repository"
	"github.com/iliyamo/two-step-auth/internal/router"
	"github.com/iliyamo/two-step-auth/internal/session"
	"github.com/iliyamo/two-step-auth/internal/token"
)

func main() {
	_ = godotenv.Load() // .env is optional; real env vars win
	cfg := config.Load()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	if err := database.Migrate(context.Background(), db); err != nil {
		log.Fatalf("migrate database: %v", err)
	}

	accounts := repository.NewAccountRepo(db)
	codes := repository.NewCodeRepo(db)
	sessions := repository.NewSessionRepo(db)

	// Without a broker, codes go to the process log instead of the queue.
	var codeNotifier code.Notifier = notifier.NewLog()
	if notifier.BrokerConfigured() {
		codeNotifier = notifier.NewAMQP()
		// Background consumer standing in for the mailer.
		go func() {
			if err := queue.StartCodeConsumer(); err != nil {
				log.Printf("code consumer stopped: %v", err)
			}
		}()
	} else {
		log.Printf("no message broker configured; codes will be logged")
	}

	codec := token.NewCodec(cfg, sessions)
	sessionMgr := session.NewManager(cfg, sessions, codec)
	codeMgr := code.NewManager(codes, codeNotifier)
	jar := cookie.NewJar(cfg.Cookie)
	gate := middleware.NewGate(codec, sessionMgr, accounts, jar)

	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Printf("redis unavailable; rate limiting disabled")
	}
	limiter := middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb)

	go session.StartSweeper(context.Background(), sessions, 12*time.Hour)

	e := echo.New()
	router.Register(e, router.Deps{
		Auth:    handler.NewAuthHandler(cfg, accounts, codec, sessionMgr, codeMgr, jar),
		Code:    handler.NewCodeHandler(accounts, codec, sessionMgr, codeMgr, jar),
		Gate:    gate,
		Limiter: limiter,
	})

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env)

	if err := e.Start(addr); err != nil {
		log.Fatal(err)
	}
}
