// Command marketsync is the process entrypoint: it wires one exchange
// transport through the in-process event bus into the per-symbol
// synchronization/kline/quality pipeline, then publishes applied order-book
// updates to NATS and serves a read-only monitoring API. Detected anomalies
// are logged (and recorded when a postgres store is configured); closed
// klines are only logged. Flag
// parsing and shutdown wiring follow the teacher's cmd/feed/main.go.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/sequex-io/marketsync/internal/buildinfo"
	"github.com/sequex-io/marketsync/internal/config"
	"github.com/sequex-io/marketsync/internal/marketdata/bus"
	"github.com/sequex-io/marketsync/internal/marketdata/event"
	"github.com/sequex-io/marketsync/internal/marketdata/kline"
	"github.com/sequex-io/marketsync/internal/marketdata/metrics"
	"github.com/sequex-io/marketsync/internal/marketdata/orderbook"
	"github.com/sequex-io/marketsync/internal/marketdata/quality"
	"github.com/sequex-io/marketsync/internal/marketdata/subscription"
	"github.com/sequex-io/marketsync/internal/marketdata/sync"
	"github.com/sequex-io/marketsync/internal/model/sqx"
	"github.com/sequex-io/marketsync/internal/persistence"
	"github.com/sequex-io/marketsync/internal/pubsub"
	"github.com/sequex-io/marketsync/pkg/logger"
	"github.com/sequex-io/marketsync/pkg/shutdown"

	"github.com/sequex-io/marketsync/api/marketdata"
	sqxbinance "github.com/sequex-io/marketsync/pkg/exchange/binance"
	binancetransport "github.com/sequex-io/marketsync/transport/binance"
)

var instanceID = uuid.New().String()

func main() {
	configPath := flag.String("config", "", "path to the JSON config file")
	apiAddr := flag.String("api-addr", ":8090", "listen address for the read-only monitoring API")
	dev := flag.Bool("dev", false, "enable verbose development logging")
	dbHost := flag.String("db-host", "", "postgres host for the audit-log store (empty disables persistence)")
	dbPort := flag.Int("db-port", 5432, "postgres port for the audit-log store")
	dbUser := flag.String("db-user", "marketsync", "postgres user for the audit-log store")
	dbPassword := flag.String("db-password", "", "postgres password for the audit-log store")
	dbName := flag.String("db-name", "marketsync", "postgres database name for the audit-log store")
	dbSSLMode := flag.String("db-sslmode", "disable", "postgres sslmode for the audit-log store")

	flag.Usage = func() {
		logger.Log.Info().Msg(`marketsync synchronizes exchange order-book and trade streams into a
provably-consistent local book, and republishes applied order-book updates
to NATS.

Usage:
  marketsync -config /path/to/config.json [flags]
`)
		flag.PrintDefaults()
	}
	flag.Parse()

	logger.InitLogger(*dev)
	logger.Log.Info().
		Str("instance_id", instanceID).
		Str("version", buildinfo.Version).
		Str("buildTime", buildinfo.BuildTime).
		Str("commitHash", buildinfo.CommitHash).
		Msg("marketsync starting")

	if *configPath == "" {
		logger.Log.Error().Msg("-config is required")
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.Log.Error().Err(err).Msg("failed to load config")
		os.Exit(1)
	}

	symbols := splitAndTrim(cfg.Symbol)
	if len(symbols) == 0 {
		logger.Log.Error().Msg("config.symbol must name at least one symbol")
		os.Exit(1)
	}

	sd := shutdown.NewShutdown(logger.Log)

	connConfigs, err := parseNATSURIs(cfg.NATS)
	if err != nil {
		logger.Log.Error().Err(err).Msg("invalid NATS configuration")
		os.Exit(1)
	}
	pubManager, err := pubsub.NewPubManager(connConfigs, logger.Log)
	if err != nil {
		logger.Log.Error().Err(err).Msg("failed to create pub manager")
		os.Exit(1)
	}
	sd.HookShutdownCallback("pubsub", pubManager.Close, 10*time.Second)

	var store *persistence.Store
	if *dbHost != "" {
		store, err = persistence.New(*dbHost, *dbPort, *dbUser, *dbPassword, *dbName, *dbSSLMode, "UTC")
		if err != nil {
			logger.Log.Error().Err(err).Msg("failed to open audit-log store, continuing without persistence")
			store = nil
		} else {
			sd.HookShutdownCallback("persistence", func() {
				if cerr := store.Close(); cerr != nil {
					logger.Log.Warn().Err(cerr).Msg("failed to close audit-log store")
				}
			}, 5*time.Second)
		}
	}

	metricsRecorder := metrics.New()
	subsManager := subscription.New(subscriptionConfig(cfg.Subscription))
	eventBus := bus.New(logger.Log, metricsRecorder, subsManager)

	subsManager.OnStateChange(func(symbol, eventType string, old, new subscription.State) {
		logger.Log.Debug().Str("symbol", symbol).Str("event_type", eventType).
			Str("old", old.String()).Str("new", new.String()).Msg("subscription state changed")
		if store != nil {
			if perr := store.RecordSubscriptionTransition(symbol, eventType, old.String(), new.String()); perr != nil {
				logger.Log.Warn().Err(perr).Msg("failed to persist subscription transition")
			}
		}
	})

	binanceCfg := sqxbinance.DefaultConfig()
	binanceCfg.Timeout = 10 * time.Second
	snapshotFetcher := binancetransport.NewSnapshotFetcher(binanceCfg.GetBaseURL(), 5*time.Second)
	depthSource := binancetransport.NewDepthSource(binanceCfg, logger.Log, symbols)

	syncCfg := sync.DefaultConfig()
	syncCfg.MaxBufferSize = cfg.ManagedBook.MaxBufferSize
	syncCfg.MaxDepthLevels = cfg.ManagedBook.MaxDepthLevels
	syncCfg.SnapshotTimeout = time.Duration(cfg.ManagedBook.SnapshotTimeoutMs) * time.Millisecond
	syncCfg.OrderBook = orderbook.Config{
		MaxBufferSize:  cfg.OrderBook.MaxBufferSize,
		MaxSequenceGap: cfg.OrderBook.MaxSequenceGap,
	}
	applyZeroDefaults(&syncCfg)

	klineCfg := kline.Config{
		MaxHistoryPerInterval: cfg.Kline.MaxHistoryPerInterval,
		EmitOnUpdate:          cfg.Kline.EmitOnUpdate,
		EmitOnClose:           cfg.Kline.EmitOnClose,
	}
	if klineCfg.MaxHistoryPerInterval == 0 {
		klineCfg = kline.DefaultConfig()
	}

	qualityCfg := quality.Config{
		PriceLookbackCount:    cfg.Quality.PriceLookbackCount,
		VolumeLookbackCount:   cfg.Quality.VolumeLookbackCount,
		PriceSpikeThreshold:   cfg.Quality.PriceSpikeThreshold,
		VolumeSpikeMultiplier: cfg.Quality.VolumeSpikeMultiplier,
		VolumeDropThreshold:   cfg.Quality.VolumeDropThreshold,
		MaxSpreadBps:          cfg.Quality.MaxSpreadBps,
		StaleThresholdMs:      cfg.Quality.StaleThresholdMs,
		MaxClockSkewMs:        cfg.Quality.MaxClockSkewMs,
		MaxAnomalyHistory:     1_000,
		WeightFreshness:       cfg.Quality.FreshnessWeight,
		WeightCompleteness:    cfg.Quality.CompletenessWeight,
		WeightConsistency:     cfg.Quality.ConsistencyWeight,
		WeightReliability:     cfg.Quality.ReliabilityWeight,
	}
	if qualityCfg.PriceSpikeThreshold == 0 {
		qualityCfg = quality.DefaultConfig()
	}

	samplerCfg := quality.SamplerConfig{
		Strategy:            quality.ParseSamplerStrategy(cfg.Sampler.Strategy),
		IntervalMs:          cfg.Sampler.TimeIntervalMs,
		CountInterval:       cfg.Sampler.CountInterval,
		VolatilityThreshold: cfg.Sampler.VolatilityThreshold,
	}

	rootCtx := sd.Context()

	for _, symbol := range symbols {
		symbol := symbol
		mob := sync.New(symbol, syncCfg, snapshotFetcher, logger.Log)
		agg := kline.New(symbol, klineCfg)
		qa := quality.New(symbol, qualityCfg)
		sampler := quality.NewDataSampler(samplerCfg)

		mob.OnUpdate(func(ob *orderbook.OrderBook) {
			evt := bookUpdateEvent(symbol, ob)
			if perr := pubManager.PublishMarketEvent(evt); perr != nil {
				logger.Log.Warn().Err(perr).Str("symbol", symbol).Msg("failed to publish book update")
			}
		})
		agg.OnClose(func(k kline.AggregatedKline) {
			logger.Log.Debug().Str("symbol", symbol).Str("interval", k.Interval.String()).Msg("kline closed")
		})
		qa.OnAnomaly(func(an quality.Anomaly) {
			logger.Log.Warn().Str("symbol", symbol).Str("kind", an.Kind.String()).Float64("severity", an.Severity).Msg("anomaly detected")
			if store != nil {
				if perr := store.RecordAnomaly(symbol, an.Kind.String(), an.Severity, an.Description, an.TsMs); perr != nil {
					logger.Log.Warn().Err(perr).Msg("failed to persist anomaly")
				}
			}
		})

		if err := eventBus.Register(symbol, mob, agg, qa, sampler); err != nil {
			logger.Log.Error().Err(err).Str("symbol", symbol).Msg("failed to register symbol on bus")
			os.Exit(1)
		}

		subsManager.Subscribe(symbol, sqx.DataTypeDepth.String(), instanceID)
		subsManager.Subscribe(symbol, sqx.DataTypeTrade.String(), instanceID)
		subsManager.ConfirmSubscription(symbol, sqx.DataTypeDepth.String())
		subsManager.ConfirmSubscription(symbol, sqx.DataTypeTrade.String())

		mob.Start(rootCtx)
	}

	if err := depthSource.Subscribe(rootCtx, eventBus.Publish); err != nil {
		logger.Log.Error().Err(err).Msg("failed to subscribe to exchange transport")
		os.Exit(1)
	}
	sd.HookShutdownCallback("depth-source", func() {
		if cerr := depthSource.Close(); cerr != nil {
			logger.Log.Warn().Err(cerr).Msg("failed to close depth source")
		}
	}, 10*time.Second)

	apiServer := marketdata.New(eventBus, metricsRecorder, subsManager)
	httpServer := &http.Server{Addr: *apiAddr, Handler: apiServer.Engine()}
	go func() {
		if serr := httpServer.ListenAndServe(); serr != nil && serr != http.ErrServerClosed {
			logger.Log.Error().Err(serr).Msg("monitoring API server failed")
		}
	}()
	sd.HookShutdownCallback("api-server", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if serr := httpServer.Shutdown(ctx); serr != nil {
			logger.Log.Warn().Err(serr).Msg("failed to gracefully stop monitoring API server")
		}
	}, 10*time.Second)

	logger.Log.Info().Strs("symbols", symbols).Str("api_addr", *apiAddr).Msg("marketsync running")
	sd.WaitForShutdown(syscall.SIGINT, syscall.SIGTERM)
	logger.Log.Info().Msg("marketsync stopped")
}

// bookUpdateEvent snapshots an OrderBook's current top-of-book into the
// outbound MarketEvent envelope (§6 "Update callback").
func bookUpdateEvent(symbol string, ob *orderbook.OrderBook) event.MarketEvent {
	bids := ob.TopN(true, 50)
	asks := ob.TopN(false, 50)
	return event.MarketEvent{
		Kind:         event.KindBookTop,
		Venue:        sqx.ExchangeBinance,
		Symbol:       symbol,
		MarketKind:   sqx.InstrumentTypeSpot,
		TsExchangeNs: time.Now().UnixNano(),
		TsRecvNs:     time.Now().UnixNano(),
		Book: &event.BookData{
			Bids:     bids,
			Asks:     asks,
			Sequence: ob.Sequence(),
		},
	}
}

func subscriptionConfig(c config.SubscriptionConfig) subscription.Config {
	cfg := subscription.Config{
		MaxSubscriptionsPerSecond: c.MaxSubscriptionsPerSecond,
		MaxTotalSubscriptions:     c.MaxTotalSubscriptions,
		MaxSubscriptionsPerSymbol: c.MaxSubscriptionsPerSymbol,
	}
	if cfg.MaxSubscriptionsPerSecond == 0 {
		cfg = subscription.DefaultConfig()
	}
	return cfg
}

// applyZeroDefaults fills any zero-valued knob left by an incomplete
// config file with the package defaults, rather than running with a
// zero buffer size or timeout.
func applyZeroDefaults(cfg *sync.Config) {
	def := sync.DefaultConfig()
	if cfg.MaxBufferSize == 0 {
		cfg.MaxBufferSize = def.MaxBufferSize
	}
	if cfg.MaxDepthLevels == 0 {
		cfg.MaxDepthLevels = def.MaxDepthLevels
	}
	if cfg.SnapshotTimeout == 0 {
		cfg.SnapshotTimeout = def.SnapshotTimeout
	}
	if cfg.InitialBufferDelay == 0 {
		cfg.InitialBufferDelay = def.InitialBufferDelay
	}
	if cfg.SnapshotRetryBackoff == 0 {
		cfg.SnapshotRetryBackoff = def.SnapshotRetryBackoff
	}
	if cfg.OrderBook.MaxBufferSize == 0 {
		cfg.OrderBook.MaxBufferSize = def.OrderBook.MaxBufferSize
	}
	if cfg.OrderBook.MaxSequenceGap == 0 {
		cfg.OrderBook.MaxSequenceGap = def.OrderBook.MaxSequenceGap
	}
}

func splitAndTrim(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseNATSURIs(n config.NATSConfig) ([]*config.ConnectionConfig, error) {
	uris := n.GetNATSURIs()
	if len(uris) == 0 {
		return nil, fmt.Errorf("nats.uris cannot be empty")
	}
	connConfigs := make([]*config.ConnectionConfig, 0, len(uris))
	for _, uri := range uris {
		connConfig, err := config.ParseConnectionString(uri)
		if err != nil {
			return nil, fmt.Errorf("invalid connection string %q: %w", uri, err)
		}
		connConfigs = append(connConfigs, connConfig)
	}
	return connConfigs, nil
}
