// FILE: config.go
// Package main – runtime configuration model and loader, generalized
// from the teacher's single-product config.go into spec.md §6's full
// configuration table plus the venue-wiring knobs SPEC_FULL.md §10 adds.
package main

import (
	"github.com/riskforge/fundingarb/internal/engine"
	"github.com/riskforge/fundingarb/internal/money"
)

// VenueMode selects how venue connectors are constructed.
type VenueMode string

const (
	VenueModeDemo   VenueMode = "demo"   // PaperVenue per configured venue id
	VenueModeBridge VenueMode = "bridge" // BridgeVenue (HTTP+WS sidecar) per configured venue id
)

// AppConfig bundles the engine.Config tick-loop tunables with the
// process-level wiring knobs (port, venue mode, alert transport).
type AppConfig struct {
	Engine engine.Config

	Port int

	VenueMode   VenueMode
	Venues      []string // venue ids to instantiate
	BridgeURL   string
	BridgeWSURL string

	AlertWebhookURL string
	TimeSyncServers []string
	TickIntervalSeconds int64
}

// loadAppConfigFromEnv reads the process env (already hydrated by
// loadBotEnv()) into an AppConfig, defaulting every knob to a
// conservative value when unset.
func loadAppConfigFromEnv() AppConfig {
	return AppConfig{
		Engine: engine.Config{
			MinFundingRateDiff:       getEnvDecimal("MIN_FUNDING_RATE_DIFF", money.FromFloat(0.0001)),
			MinEdgeRequired:          getEnvDecimal("MIN_EDGE_REQUIRED", money.FromFloat(5)),
			ProfitabilityToTakeProfit: getEnvDecimal("PROFITABILITY_TO_TAKE_PROFIT", money.FromFloat(0.02)),
			FundingRateDiffStopLoss:  getEnvDecimal("FUNDING_RATE_DIFF_STOP_LOSS", money.FromFloat(-0.05)),

			MaxNotionalPerExchange: getEnvDecimal("MAX_NOTIONAL_PER_EXCHANGE", money.FromFloat(5000)),
			MaxTotalNotional:       getEnvDecimal("MAX_TOTAL_NOTIONAL", money.FromFloat(20000)),
			MaxLeverage:            getEnvDecimal("MAX_LEVERAGE", money.FromFloat(3)),
			MaxHedgeGapPct:         getEnvDecimal("MAX_HEDGE_GAP_PCT", money.FromFloat(0.05)),
			MaxConcentrationPct:    getEnvDecimal("MAX_CONCENTRATION_PCT", money.FromFloat(0.30)),

			MaxPositionsPerConnector: getEnvInt("MAX_POSITIONS_PER_CONNECTOR", 0),

			MaxSlippagePct:              getEnvDecimal("MAX_SLIPPAGE_PCT", money.FromFloat(0.003)),
			MinOrderBookDepthMultiplier: getEnvDecimal("MIN_ORDER_BOOK_DEPTH_MULTIPLIER", money.FromFloat(3)),
			CheckOrderBookDepthEnabled:  getEnvBool("CHECK_ORDER_BOOK_DEPTH_ENABLED", true),

			MinTimeToNextFundingSeconds: getEnvInt64("MIN_TIME_TO_NEXT_FUNDING_SECONDS", 300),

			PendingValidationTimeoutSeconds: getEnvInt64("PENDING_VALIDATION_TIMEOUT_SECONDS", 60),
			PendingValidationMaxAttempts:    getEnvInt("PENDING_VALIDATION_MAX_ATTEMPTS", 5),
			CloseValidationTimeoutSeconds:   getEnvInt64("CLOSE_VALIDATION_TIMEOUT_SECONDS", 120),
			MinPositionHoldTimeMinutes:      getEnvInt64("MIN_POSITION_HOLD_TIME_MINUTES", 15),

			MaxPositionImbalancePct: getEnvDecimal("MAX_POSITION_IMBALANCE_PCT", money.FromFloat(0.10)),

			EmergencyCloseOnImbalance:     getEnvBool("EMERGENCY_CLOSE_ON_IMBALANCE", true),
			AutoLeverageReduction:         getEnvBool("AUTO_LEVERAGE_REDUCTION", false),
			AutoPositionReconciliation:    getEnvBool("AUTO_POSITION_RECONCILIATION", false),
			EmergencyStopOnCriticalIssues: getEnvBool("EMERGENCY_STOP_ON_CRITICAL_ISSUES", true),

			DemoMode:                getEnvBool("DEMO_MODE", true),
			DemoAccountBalanceQuote: getEnvDecimal("DEMO_ACCOUNT_BALANCE_QUOTE", money.FromFloat(10000)),
			DemoFillDelaySeconds:    getEnvInt64("DEMO_FILL_DELAY_SECONDS", 2),
			DemoCloseDelaySeconds:   getEnvInt64("DEMO_CLOSE_DELAY_SECONDS", 2),

			StatsIntervalSeconds: getEnvInt64("STATS_INTERVAL_SECONDS", 300),

			FundingPeriodHours:  getEnvDecimal("FUNDING_PERIOD_HOURS", money.FromFloat(8)),
			SettlementBufferBps: getEnvInt64("SETTLEMENT_BUFFER_BPS", 2),

			MarginCheckIntervalSeconds:            getEnvInt64("MARGIN_CHECK_INTERVAL_SECONDS", 60),
			PartialCloseFractionOnLeverageRefusal: getEnvDecimal("PARTIAL_CLOSE_FRACTION_ON_LEVERAGE_REFUSAL", money.FromFloat(0.5)),

			ReconcileIntervalSeconds: getEnvInt64("RECONCILE_INTERVAL_SECONDS", 120),
		},

		Port: getEnvInt("PORT", 8080),

		VenueMode:   VenueMode(getEnv("VENUE_MODE", string(VenueModeDemo))),
		Venues:      getEnvList("VENUES", []string{"binance", "bybit", "okx"}),
		BridgeURL:   getEnv("BRIDGE_URL", "http://127.0.0.1:8787"),
		BridgeWSURL: getEnv("BRIDGE_WS_URL", "ws://127.0.0.1:8787/stream"),

		AlertWebhookURL:     getEnv("ALERT_WEBHOOK_URL", ""),
		TimeSyncServers:     getEnvList("TIME_SYNC_SERVERS", []string{"time.google.com", "pool.ntp.org"}),
		TickIntervalSeconds: getEnvInt64("TICK_INTERVAL_SECONDS", 5),
	}
}
