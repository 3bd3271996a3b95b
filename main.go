// FILE: main.go
// Package main – Program entrypoint and HTTP/metrics server.
//
// Boot sequence (SPEC_FULL.md §10):
//   1) loadBotEnv()                 – read .env (no shell exports required)
//   2) cfg := loadAppConfigFromEnv() – build runtime AppConfig
//   3) wire venues, rate limiter, time-sync, breakers, reliability gate,
//      settlement scheduler, risk manager, margin monitor, reconciler,
//      alert sink, metrics collectors into an engine.Deps
//   4) start HTTP mux (/health/live, /health/ready, /health/status,
//      /health/detailed, /metrics) on cfg.Port
//   5) engine.Run(ctx, tickInterval); on signal, the engine closes all
//      live arbitrages before the HTTP server shuts down
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/riskforge/fundingarb/internal/alert"
	"github.com/riskforge/fundingarb/internal/breaker"
	"github.com/riskforge/fundingarb/internal/engine"
	"github.com/riskforge/fundingarb/internal/margin"
	"github.com/riskforge/fundingarb/internal/money"
	"github.com/riskforge/fundingarb/internal/ratelimit"
	"github.com/riskforge/fundingarb/internal/reconcile"
	"github.com/riskforge/fundingarb/internal/reliability"
	"github.com/riskforge/fundingarb/internal/risk"
	"github.com/riskforge/fundingarb/internal/settlement"
	"github.com/riskforge/fundingarb/internal/timesync"
	"github.com/riskforge/fundingarb/internal/venue"
)

func main() {
	loadBotEnv()
	cfg := loadAppConfigFromEnv()

	venues := buildVenues(cfg)

	limiter := ratelimit.NewLimiter(ratelimit.DefaultTunables(), nil)

	tsMonitor := timesync.NewMonitor(cfg.TimeSyncServers, timesync.SNTPQuerier{Timeout: 3 * time.Second}, 60*time.Second, 500, 3)

	breakers := breaker.NewRegistry(
		breaker.Config{WindowSeconds: 300, FailureThreshold: 5, SuccessThreshold: 3, TimeoutSeconds: 60},
		breaker.Config{WindowSeconds: 300, FailureThreshold: 3, SuccessThreshold: 3, TimeoutSeconds: 120},
		breaker.Config{WindowSeconds: 300, FailureThreshold: 3, SuccessThreshold: 3, TimeoutSeconds: 120},
	)

	riskMgr := risk.NewManager(risk.Limits{
		NotionalPerVenue:      cfg.Engine.MaxNotionalPerExchange,
		NotionalPerSubaccount: cfg.Engine.MaxNotionalPerExchange,
		TotalNotional:         cfg.Engine.MaxTotalNotional,
		MaxLeverage:           cfg.Engine.MaxLeverage,
		MaxHedgeGapPct:        cfg.Engine.MaxHedgeGapPct,
		MaxConcentrationPct:   cfg.Engine.MaxConcentrationPct,
		WarningThreshold:      money.FromFloat(0.8),
	})

	marginMon := margin.NewMonitor(margin.TierTable{}, money.FromFloat(0.10), cfg.Engine.AutoLeverageReduction)
	marginHealth := margin.NewHealthTracker()

	var alertSink alert.Sink = alert.LogSink{}
	if cfg.AlertWebhookURL != "" {
		alertSink = alert.NewWebhookSink(cfg.AlertWebhookURL)
	}

	readiness := reliability.NewTradingReadiness(
		func() (reliability.HealthLevel, string) { return marginHealthLevel(marginHealth) },
		func() (cpu, mem, disk float64) { return 0, 0, 0 },
	)
	gate := reliability.NewGate(tsMonitor, breakers, readiness, limiter)

	calendars := make(map[venue.Id]settlement.Calendar, len(cfg.Venues))
	for _, v := range cfg.Venues {
		if strings.EqualFold(v, "hyperliquid") {
			calendars[venue.Id(v)] = settlement.HourlyCalendar(2*time.Minute, 30*time.Second)
		} else {
			calendars[venue.Id(v)] = settlement.ThreeDailyCalendar(5*time.Minute, 1*time.Minute)
		}
	}
	scheduler := settlement.NewScheduler(calendars)

	reconciler := reconcile.NewReconciler(cfg.Engine.AutoPositionReconciliation, money.FromFloat(0.10), func(d reconcile.Discrepancy) error {
		alertSink.Emit(alert.Alert{
			Severity: alert.SeverityMedium,
			Title:    "reconcile auto-fix",
			Message:  fmt.Sprintf("applying %s for %s", d.SuggestedAction, d.Kind),
			Time:     time.Now().UTC(),
		})
		return nil
	})

	deps := engine.Deps{
		Venues:      venues,
		Gate:        gate,
		Breakers:    breakers,
		RateLimiter: limiter,
		Scheduler:   scheduler,
		RiskMgr:     riskMgr,
		MarginMon:    marginMon,
		Reconciler:   reconciler,
		Alerts:       alertSink,
		Metrics:      Collectors{},
		MarginHealth: marginHealth,
		Config:       cfg.Engine,
	}
	eng := engine.New(deps)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go tsMonitor.Run(ctx)

	for id, v := range venues {
		subscribeVenue(ctx, id, v, eng, readiness)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok\n"))
	})
	mux.HandleFunc("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		ok, reason := gate.CanTrade(time.Now().UTC())
		setReadinessMetric(ok)
		if !ok {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(reason + "\n"))
			return
		}
		_, _ = w.Write([]byte("ready\n"))
	})
	mux.HandleFunc("/health/status", func(w http.ResponseWriter, _ *http.Request) {
		ok, reason := gate.CanTrade(time.Now().UTC())
		writeJSON(w, map[string]any{"can_trade": ok, "reason": reason})
	})
	mux.HandleFunc("/health/detailed", func(w http.ResponseWriter, _ *http.Request) {
		arbs := eng.Snapshot()
		writeJSON(w, map[string]any{
			"arbitrages":      len(arbs),
			"time_sync_drift": tsMonitor.History(),
		})
	})
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Port), Handler: mux}
	go func() {
		log.Printf("serving metrics on :%d/metrics", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server: %v", err)
		}
	}()

	eng.Run(ctx, time.Duration(cfg.TickIntervalSeconds)*time.Second)

	shutdownCtx, c := context.WithTimeout(context.Background(), 2*time.Second)
	defer c()
	_ = srv.Shutdown(shutdownCtx)
}

// marginHealthLevel adapts margin.HealthTracker's worst-observed Health
// into the coarse reliability.HealthLevel TradingReadiness expects,
// breaking the reliability<->margin import cycle spec.md §9 warns
// against: reliability never imports margin directly, only this
// closure's return type.
func marginHealthLevel(t *margin.HealthTracker) (reliability.HealthLevel, string) {
	worst, reason := t.Worst()
	switch worst {
	case margin.HealthLiquidationRisk, margin.HealthCritical:
		return reliability.HealthCritical, reason
	case margin.HealthDanger, margin.HealthWarning:
		return reliability.HealthWarning, reason
	default:
		return reliability.HealthOK, reason
	}
}

// buildVenues constructs one connector per configured venue id,
// switching on VenueMode the way the teacher's main.go switches on
// BROKER (SPEC_FULL.md §10 step 2a).
func buildVenues(cfg AppConfig) map[venue.Id]venue.Venue {
	out := make(map[venue.Id]venue.Venue, len(cfg.Venues))
	for _, name := range cfg.Venues {
		id := venue.Id(name)
		switch cfg.VenueMode {
		case VenueModeBridge:
			out[id] = venue.NewBridgeVenue(id, cfg.BridgeURL, cfg.BridgeWSURL)
		default:
			balances := map[string]money.Decimal{
				"USDT": cfg.Engine.DemoAccountBalanceQuote,
				"USD":  cfg.Engine.DemoAccountBalanceQuote,
			}
			out[id] = venue.NewPaperVenue(id,
				balances,
				time.Duration(cfg.Engine.DemoFillDelaySeconds)*time.Second,
				time.Duration(cfg.Engine.DemoCloseDelaySeconds)*time.Second,
			)
		}
	}
	return out
}

// subscribeVenue drains one venue's event stream into the engine and
// mirrors connection-status events into TradingReadiness, the way the
// teacher's live.go loop feeds a single broker's polled state into the
// trader. Runs until ctx is cancelled.
func subscribeVenue(ctx context.Context, id venue.Id, v venue.Venue, eng *engine.Engine, readiness *reliability.TradingReadiness) {
	events, err := v.Subscribe(ctx)
	if err != nil {
		log.Printf("venue %s: subscribe failed: %v", id, err)
		return
	}
	readiness.UpdateConnection(venue.ConnectionStatus{
		Venue: id, Channel: venue.ChannelWebSocket, State: venue.ConnStateOK, LastSeen: time.Now().UTC(),
	})
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-events:
				if !ok {
					return
				}
				if ev.Kind == venue.EventConnectionStatus && ev.Connection != nil {
					readiness.UpdateConnection(*ev.Connection)
				}
				eng.PushEvent(ev)
			}
		}
	}()
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
