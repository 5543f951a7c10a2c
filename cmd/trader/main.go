package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	polymarket "github.com/GoPolymarket/polymarket-go-sdk"
	"github.com/GoPolymarket/polymarket-go-sdk/pkg/auth"

	"github.com/GoPolymarket/updown-arb/internal/api"
	"github.com/GoPolymarket/updown-arb/internal/config"
	"github.com/GoPolymarket/updown-arb/internal/divergence"
	"github.com/GoPolymarket/updown-arb/internal/execution"
	"github.com/GoPolymarket/updown-arb/internal/feed"
	"github.com/GoPolymarket/updown-arb/internal/market"
	"github.com/GoPolymarket/updown-arb/internal/metrics"
	"github.com/GoPolymarket/updown-arb/internal/notify"
	"github.com/GoPolymarket/updown-arb/internal/oracle"
	"github.com/GoPolymarket/updown-arb/internal/position"
	"github.com/GoPolymarket/updown-arb/internal/resolution"
	"github.com/GoPolymarket/updown-arb/internal/strike"
	"github.com/GoPolymarket/updown-arb/internal/trader"
	"github.com/GoPolymarket/updown-arb/internal/venue"
	"github.com/GoPolymarket/updown-arb/internal/volatility"
)

const marketDiscoveryInterval = 30 * time.Second

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.LoadFile(*cfgPath)
	if err != nil {
		log.Printf("warning: config file: %v, using defaults", err)
		cfg = config.Default()
	}
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}

	log.Printf("updown-arb starting (paper_trading=%t)", cfg.PaperTrading)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	venueClient := venue.NewClient(cfg.VenueBaseURL)

	var oracleFeed *oracle.ChainlinkFeed
	if cfg.EthRPCURL != "" && cfg.ChainlinkFeedAddr != "" {
		oracleFeed, err = oracle.Dial(cfg.EthRPCURL, cfg.ChainlinkFeedAddr)
		if err != nil {
			log.Fatalf("oracle: %v", err)
		}
	} else {
		log.Println("no oracle configured; divergence uses the static adjustment only")
	}

	var strikeOracle strike.OracleSource
	if oracleFeed != nil {
		strikeOracle = oracleFeed
	}
	strikes := strike.New(venueClient, strikeOracle)

	div := divergence.New(cfg.DivergenceWindow, cfg.StaticOracleAdjustment, cfg.DivergenceStatePath)

	var tr *trader.Trader
	latestMid := func() (float64, bool) {
		if tr == nil {
			return 0, false
		}
		return tr.LatestMid()
	}

	vol := volatility.New(
		volatility.NewBinanceCandles(cfg.BinanceSymbol),
		volatility.NewDeribit(cfg.DeribitCurrency),
		cfg.VolRefreshInterval,
		latestMid,
	)

	pos := position.NewManager(position.Limits{
		MinOrderUSD:    cfg.MinOrderUSD,
		MaxOrderUSD:    cfg.MaxOrderUSD,
		MaxPositionUSD: cfg.MaxPositionUSD,
		MaxTotalUSD:    cfg.MaxTotalUSD,
	})

	sdkClient := polymarket.NewClient()
	wsClient := sdkClient.CLOBWS

	var sink execution.Sink
	if cfg.PaperTrading {
		sink = execution.NewPaperSink()
	} else {
		signer, sErr := auth.NewPrivateKeySigner(strings.TrimSpace(cfg.PrivateKey), 137)
		if sErr != nil {
			log.Fatalf("signer: %v", sErr)
		}
		apiKey := &auth.APIKey{
			Key:        strings.TrimSpace(cfg.APIKey),
			Secret:     strings.TrimSpace(cfg.APISecret),
			Passphrase: strings.TrimSpace(cfg.APIPassphrase),
		}
		clobClient := sdkClient.CLOB.WithAuth(signer, apiKey)
		wsClient = sdkClient.CLOBWS.Authenticate(signer, apiKey)
		sink = execution.NewCLOBSink(clobClient, signer)
	}

	execMetrics := execution.NewMetrics(5 * time.Minute)
	resolutions := resolution.NewTracker(resolutionSource{venueClient}, cfg.ResolutionGrace, cfg.ResolutionInterval)

	tgNotifier := notify.NewNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID)
	var notifier trader.Notifier
	if tgNotifier.Enabled() {
		notifier = tgNotifier
		resolutions.OnResolved = func(conditionID string, outcome resolution.Outcome, trades, wins int) {
			_ = tgNotifier.NotifyResolution(context.Background(), conditionID, outcome, trades, wins)
		}
	}

	tr = trader.New(trader.Config{
		PaperTrading:     cfg.PaperTrading,
		EdgeMinimum:      cfg.EdgeMinimum,
		StopBeforeEnd:    time.Duration(cfg.StopBeforeEndSec) * time.Second,
		StartupCooldown:  time.Duration(cfg.StartupCooldownSec) * time.Second,
		TradeCooldown:    time.Duration(cfg.TradeCooldownMs) * time.Millisecond,
		MaxBuyPrice:      cfg.MaxBuyPrice,
		SlippageBps:      cfg.SlippageBps,
		StaticAdjustment: cfg.StaticOracleAdjustment,
		ManualStrike:     cfg.ManualStrike,
		MaxTotalUSD:      cfg.MaxTotalUSD,
	}, vol, div, strikes, pos, sink, execMetrics, resolutions, notifier)

	bookFeed := feed.NewBookFeed(wsClient)
	midFeed := feed.NewBinanceMidFeed(cfg.BinanceSymbol)

	// Background services.
	go func() {
		if rErr := vol.Run(ctx); rErr != nil && rErr != context.Canceled {
			log.Printf("volatility service stopped: %v", rErr)
		}
	}()
	if oracleFeed != nil {
		go func() {
			if rErr := div.Run(ctx, oracleFeed, cfg.OraclePollInterval, latestMid); rErr != nil && rErr != context.Canceled {
				log.Printf("divergence tracker stopped: %v", rErr)
			}
		}()
	}
	go func() {
		if rErr := resolutions.Run(ctx); rErr != nil && rErr != context.Canceled {
			log.Printf("resolution tracker stopped: %v", rErr)
		}
	}()

	// Feeds.
	go func() {
		if rErr := midFeed.Run(ctx, func(t market.MidTick) { tr.OnPrice(ctx, t) }); rErr != nil && rErr != context.Canceled {
			log.Printf("mid feed stopped: %v", rErr)
		}
	}()
	go func() {
		if rErr := bookFeed.Run(ctx, func(b market.BookSnapshot) { tr.OnBook(ctx, b) }); rErr != nil && rErr != context.Canceled {
			log.Printf("book feed stopped: %v", rErr)
		}
	}()

	// Market discovery: adopt the active 15-minute market and roll over as
	// markets expire.
	go runDiscovery(ctx, venueClient, cfg.MarketSeries, tr, bookFeed)

	if cfg.Metrics.Enabled {
		go metrics.Serve(ctx, cfg.Metrics.Addr)
	}

	var apiServer *api.Server
	if cfg.API.Enabled {
		apiServer = api.NewServer(cfg.API.Addr, tr, pos, execMetrics, resolutions)
		if aErr := apiServer.Start(ctx); aErr != nil {
			log.Fatalf("api server: %v", aErr)
		}
	}

	log.Println("trading engine started")
	<-sigCh
	log.Println("shutdown signal received")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if apiServer != nil {
		_ = apiServer.Shutdown(shutdownCtx)
	}
	if cErr := div.Close(); cErr != nil {
		log.Printf("divergence state save: %v", cErr)
	}

	snap := pos.Snapshot()
	resStats := resolutions.Stats()
	log.Printf("session complete: trades=%d spent=%.2f resolved=%d capture=%.2f",
		snap.SessionTrades, snap.TotalSpentUSD, resStats.TotalTrades, resStats.EdgeCapture)
	_ = tgNotifier.NotifyShutdown(shutdownCtx, snap.SessionTrades, snap.TotalSpentUSD, resStats.MeanRealizedReturn*float64(resStats.TotalTrades))
}

// runDiscovery polls the venue for the active market and switches the
// trader when a new one starts.
func runDiscovery(ctx context.Context, client *venue.Client, series string, tr *trader.Trader, bookFeed *feed.BookFeed) {
	adopt := func() {
		m, err := client.ActiveMarket(ctx, series)
		if err != nil {
			log.Printf("market discovery: %v", err)
			return
		}
		if current, ok := tr.Market(); ok && current.ConditionID == m.ConditionID {
			return
		}
		bookFeed.SetMarket(m)
		tr.SetMarket(m)
	}

	adopt()
	ticker := time.NewTicker(marketDiscoveryInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			adopt()
		}
	}
}

// resolutionSource adapts the venue client to the resolution tracker.
type resolutionSource struct {
	client *venue.Client
}

func (s resolutionSource) Outcome(ctx context.Context, conditionID string) (resolution.Outcome, error) {
	out, err := s.client.Outcome(ctx, conditionID)
	if err != nil {
		return resolution.OutcomeUnresolved, err
	}
	return resolution.Outcome(out), nil
}
