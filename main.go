package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/denisbrodbeck/machineid"
	"github.com/google/uuid"

	"polytrack/internal/api"
	"polytrack/internal/bot"
	"polytrack/internal/capture"
	"polytrack/internal/events"
	"polytrack/internal/strategy"
	"polytrack/internal/stream"
	"polytrack/internal/tracker"
	"polytrack/pkg/clob"
	"polytrack/pkg/config"
	"polytrack/pkg/db"
	"polytrack/pkg/gamma"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	buildVersion := os.Getenv("APP_VERSION")
	if buildVersion == "" {
		buildVersion = "v1.0-dev"
	}
	log.Printf("polytrack %s starting on port %s", buildVersion, cfg.Port)

	instanceID, err := machineid.ProtectedID("polytrack")
	if err != nil {
		log.Printf("⚠️ machine id unavailable: %v", err)
		instanceID = "unknown"
	} else {
		log.Printf("polytrack: instance %s", instanceID[:8])
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Core services
	bus := events.NewBus()
	defer bus.Close()

	database, err := db.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("db init failed: %v", err)
	}
	defer database.Close()
	if err := db.ApplyMigrations(database); err != nil {
		log.Fatalf("db migrations failed: %v", err)
	}
	log.Printf("✓ database ready at %s", cfg.DBPath)

	clobClient := clob.New(clob.Config{
		Host: cfg.CLOBHost,
		Creds: clob.Credentials{
			APIKey:        cfg.APIKey,
			APISecret:     cfg.APISecret,
			APIPassphrase: cfg.APIPassphrase,
		},
	})

	// Market discovery: token ids from env win, otherwise resolve the slug
	// through Gamma.
	tokens := cfg.Tokens()
	var conditionID string
	if cfg.MarketSlug != "" {
		gammaClient := gamma.New(cfg.GammaHost)
		markets, err := gammaClient.GetMarkets(ctx, gamma.Filter{Slug: cfg.MarketSlug})
		if err != nil {
			log.Printf("⚠️ gamma lookup for %q failed: %v", cfg.MarketSlug, err)
		} else if len(markets) == 0 {
			log.Printf("⚠️ gamma has no market for slug %q", cfg.MarketSlug)
		} else {
			m := markets[0]
			conditionID = m.ConditionID
			if len(tokens) == 0 {
				tokens = m.TokenIDs()
			}
			if err := database.UpsertMarket(ctx, db.Market{
				ConditionID: m.ConditionID,
				Slug:        m.Slug,
				Question:    m.Question,
				Liquidity:   m.Liquidity,
				Volume:      m.Volume,
				Active:      m.Active,
			}); err != nil {
				log.Printf("store market %s: %v", m.Slug, err)
			}
			log.Printf("✓ market %s (%s), %d tokens", m.Slug, m.ConditionID, len(tokens))
		}
	}
	if len(tokens) == 0 {
		log.Fatal("no tokens to track: set TOKEN1_ID/TOKEN2_ID or MARKET_SLUG")
	}

	// Strategy: YAML file wins when given, otherwise env-driven parameters.
	params := strategy.DefaultParams()
	if cfg.StrategyConfig != "" {
		params, err = strategy.LoadParams(cfg.StrategyConfig)
		if err != nil {
			log.Fatalf("strategy config failed: %v", err)
		}
		log.Printf("✓ strategy parameters from %s", cfg.StrategyConfig)
	} else {
		params.BuyThreshold = cfg.BuyThreshold
		params.SellThreshold = cfg.SellThreshold
		params.InitialCash = cfg.InitialCash
		params.MaxTrades = cfg.MaxTrades
	}
	dip := strategy.NewDip(params)

	// Terminal orders fan out to the book, the archive and the fills table.
	var tradingBot *bot.Bot
	sink := func(rec tracker.Record) {
		if tradingBot != nil {
			tradingBot.ApplyFill(rec)
		}

		archCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		now := time.Now().UTC()
		if err := database.ArchiveOrder(archCtx, db.Order{
			ID:         rec.OrderID,
			AssetID:    rec.AssetID,
			Side:       string(rec.Side),
			Price:      rec.Price,
			Qty:        rec.Quantity,
			FilledQty:  rec.FilledQuantity,
			Status:     string(rec.Status),
			InstanceID: instanceID,
			CreatedAt:  rec.CreatedAt,
			ClosedAt:   now,
		}); err != nil {
			log.Printf("archive %s: %v", rec.OrderID, err)
		}
		if rec.FilledQuantity > 0 {
			if err := database.CreateFill(archCtx, db.Fill{
				ID:        uuid.NewString(),
				OrderID:   rec.OrderID,
				AssetID:   rec.AssetID,
				Side:      string(rec.Side),
				Price:     rec.Price,
				Qty:       rec.FilledQuantity,
				CreatedAt: now,
			}); err != nil {
				log.Printf("store fill for %s: %v", rec.OrderID, err)
			}
		}
	}

	trk := tracker.New(tracker.Config{
		Gateway:             clobClient,
		Sink:                sink,
		Bus:                 bus,
		StatusCheckInterval: cfg.StatusCheckInterval,
		CleanupInterval:     cfg.CleanupInterval,
		DefaultTimeout:      cfg.OrderTimeout,
	})
	trk.Start(ctx)

	tradingBot = bot.New(bot.Config{
		Gateway:      clobClient,
		Tracker:      trk,
		Strategy:     dip,
		Book:         dip,
		OrderTimeout: cfg.OrderTimeout,
	})

	// User-channel stream feeds the tracker.
	var streamClient *stream.Client
	if cfg.APIKey != "" {
		var markets []string
		if conditionID != "" {
			markets = []string{conditionID}
		}
		streamClient = stream.New(stream.Config{
			URL: cfg.WSURL,
			Auth: &stream.Auth{
				APIKey:     cfg.APIKey,
				Secret:     cfg.APISecret,
				Passphrase: cfg.APIPassphrase,
			},
			Handler:           trk.HandleEvent,
			KeepAliveInterval: cfg.KeepAliveInterval,
			OnDown: func() {
				bus.Publish(events.EventStreamDown, nil)
				log.Printf("⚠️ stream down, tracker continues on polling alone")
			},
		})
		if err := streamClient.Start(ctx, stream.ChannelUser, markets, nil); err != nil {
			log.Fatalf("stream start failed: %v", err)
		}
	} else {
		log.Printf("⚠️ no API credentials, running without the user stream")
	}

	slug := cfg.MarketSlug
	if slug == "" {
		slug = "market"
	}
	capSvc, err := capture.New(capture.Config{
		Data:     clobClient,
		Slug:     slug,
		Tokens:   tokens,
		Dir:      "./data/capture",
		Interval: cfg.CaptureInterval,
		OnRow: func(row capture.Row) {
			bus.Publish(events.EventPriceTick, row)
			tradingBot.Handle(ctx, row)
		},
	})
	if err != nil {
		log.Fatalf("capture init failed: %v", err)
	}
	go capSvc.Run(ctx)

	server := api.NewServer(trk, database, cfg.JWTSecret, api.SystemMeta{
		InstanceID: instanceID,
		MarketSlug: cfg.MarketSlug,
		Version:    buildVersion,
	})
	go func() {
		if err := server.Start(":" + cfg.Port); err != nil {
			log.Fatalf("api server failed: %v", err)
		}
	}()
	log.Printf("✓ api listening on :%s", cfg.Port)

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Println("polytrack: shutting down")

	cancel()
	if streamClient != nil {
		streamClient.Stop()
	}
	shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
	defer done()
	trk.Stop(shutdownCtx)
	capSvc.Close()
	log.Println("✓ polytrack: shutdown complete")
}
