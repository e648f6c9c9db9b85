package main // Entry point package

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"    // optional .env loading for local development
	"github.com/labstack/echo/v4" // Echo web framework

	"github.com/iliyamo/ticket-waitroom/internal/booking"
	"github.com/iliyamo/ticket-waitroom/internal/config"
	"github.com/iliyamo/ticket-waitroom/internal/database"
	"github.com/iliyamo/ticket-waitroom/internal/handler"
	"github.com/iliyamo/ticket-waitroom/internal/ledger"
	"github.com/iliyamo/ticket-waitroom/internal/middleware"
	"github.com/iliyamo/ticket-waitroom/internal/model"
	"github.com/iliyamo/ticket-waitroom/internal/notify"
	"github.com/iliyamo/ticket-waitroom/internal/queue"
	"github.com/iliyamo/ticket-waitroom/internal/repository"
	"github.com/iliyamo/ticket-waitroom/internal/router"
	"github.com/iliyamo/ticket-waitroom/internal/session"
)

func main() {
	_ = godotenv.Load() // .env is optional; real deployments set env directly
	cfg := config.Load()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("mysql: %v", err)
	}
	defer db.Close()
	if err := database.Migrate(context.Background(), db); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	rdb := config.NewRedisClient()
	if rdb == nil {
		// The queue and session registry live in Redis; without it the
		// service cannot admit anyone.
		log.Fatal("redis: connection failed")
	}
	defer rdb.Close()

	events := repository.NewEventRepo(db)
	customers := repository.NewCustomerRepo(db)
	bookings := repository.NewBookingRepo(db)

	// Seed the in-memory seat ledger from the catalog.  Sold seats come
	// back sold; holds are volatile and start fresh.
	seatLedger := ledger.New()
	upcoming, err := events.ListUpcoming(context.Background())
	if err != nil {
		log.Fatalf("load events: %v", err)
	}
	for _, ev := range upcoming {
		seats, err := events.LoadSeats(context.Background(), ev.ID)
		if err != nil {
			log.Fatalf("load seats for event %d: %v", ev.ID, err)
		}
		seatLedger.Seed(ev.ID, seats)
		log.Printf("seeded event %d (%s) with %d seats", ev.ID, ev.Name, len(seats))
	}

	sessions := session.NewRegistry(rdb, cfg.SessionTTL)
	admission := queue.NewAdmissionQueue(rdb, cfg.QueueDefaultWait)

	var pub notify.Publisher = notify.NopPublisher{}
	if cfg.AMQPURL != "" {
		pub = notify.NewAMQPPublisher(cfg.AMQPURL)
		go notify.StartBookingConsumer(cfg.AMQPURL)
	} else {
		log.Println("AMQP_URL not set; notifications disabled")
	}

	orch := booking.New(seatLedger, bookings, sessions, pub, cfg.HoldTTL, cfg.PaymentWindow)

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Reclaim expired holds and stale bookings on a timer.  Reclaimed
	// holds feed back into the orchestrator so displaced sessions learn
	// their seat is gone.
	go func() {
		t := time.NewTicker(cfg.SweepInterval)
		defer t.Stop()
		for {
			select {
			case <-rootCtx.Done():
				return
			case <-t.C:
				if reclaimed := seatLedger.SweepExpired(); len(reclaimed) > 0 {
					log.Printf("sweep reclaimed %d holds", len(reclaimed))
					orch.HandleReclaimed(rootCtx, reclaimed)
				}
				if n := orch.ExpireStale(rootCtx); n > 0 {
					log.Printf("expired %d stale bookings", n)
				}
			}
		}
	}()

	// Admission controller: open slots for each seeded event and move
	// admitted sessions from waiting to selecting.
	go func() {
		t := time.NewTicker(cfg.AdmitInterval)
		defer t.Stop()
		for {
			select {
			case <-rootCtx.Done():
				return
			case <-t.C:
				for _, ev := range upcoming {
					ids, err := admission.AdmitNext(rootCtx, ev.ID, int64(cfg.AdmitBatch))
					if err != nil {
						log.Printf("admit for event %d: %v", ev.ID, err)
						continue
					}
					for _, sid := range ids {
						if err := sessions.SetState(rootCtx, sid, model.SessionSelecting, ev.ID, ""); err != nil {
							log.Printf("admit state for %s: %v", sid, err)
						}
						if err := pub.QueueUpdate(rootCtx, sid, 0, true); err != nil {
							log.Printf("admit notify for %s: %v", sid, err)
						}
					}
				}
			}
		}
	}()

	e := echo.New()
	e.HideBanner = true

	rlCfg := config.LoadRateLimitConfig()
	e.Use(middleware.NewTokenBucket(rlCfg, rdb))

	var cacheMW echo.MiddlewareFunc
	if cacheCfg := config.LoadCacheConfig(); cacheCfg.Enabled {
		cacheMW = middleware.NewRedisCache(cacheCfg, rdb)
	}

	h := router.Handlers{
		Auth:     handler.NewAuthHandler(cfg, customers, sessions),
		Sessions: handler.NewSessionHandler(sessions),
		Events:   handler.NewEventHandler(events),
		Queue:    handler.NewQueueHandler(admission, events, sessions),
		Seats:    handler.NewSeatHandler(seatLedger, orch),
		Bookings: handler.NewBookingHandler(orch, bookings),
	}
	router.RegisterRoutes(e, h, cacheMW)
	router.RegisterSession(e, h, sessions)
	router.RegisterAuth(e, h, cfg.JWTSecret)

	addr := ":" + cfg.Port
	go func() {
		log.Printf("listening on %s (env=%s)", addr, cfg.Env)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server: %v", err)
		}
	}()

	<-rootCtx.Done()
	log.Println("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
}
