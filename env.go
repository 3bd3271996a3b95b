// FILE: env.go
// Package main – environment variable helpers and a dependency-free
// .env loader, generalized from the teacher's env.go. getEnvDecimal is
// new: every monetary/rate/ratio knob in this module is a
// shopspring/decimal value (spec.md §3), never a float64.
package main

import (
	"bufio"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/riskforge/fundingarb/internal/money"
)

func getEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch v {
	case "1", "true", "y", "yes":
		return true
	case "0", "false", "n", "no":
		return false
	default:
		return def
	}
}

func getEnvInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func getEnvInt64(key string, def int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return i
}

// getEnvDecimal parses an exact decimal literal, falling back to def on
// a missing or unparseable value — config knobs never silently truncate
// precision the way a float parse would.
func getEnvDecimal(key string, def money.Decimal) money.Decimal {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := money.FromString(v)
	if err != nil {
		return def
	}
	return d
}

func getEnvList(key string, def []string) []string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}

// loadBotEnv reads .env from "." and ".." and sets ONLY the keys this
// process needs, never overriding a variable already present in the
// environment, matching the teacher's env.go loader.
func loadBotEnv() {
	needed := map[string]struct{}{
		"VENUE_MODE": {}, "VENUES": {}, "BRIDGE_URL": {}, "BRIDGE_WS_URL": {},
		"PORT": {}, "DEMO_MODE": {}, "DEMO_ACCOUNT_BALANCE_QUOTE": {},
		"DEMO_FILL_DELAY_SECONDS": {}, "DEMO_CLOSE_DELAY_SECONDS": {},
		"MIN_FUNDING_RATE_DIFF": {}, "MIN_EDGE_REQUIRED": {},
		"PROFITABILITY_TO_TAKE_PROFIT": {}, "FUNDING_RATE_DIFF_STOP_LOSS": {},
		"MAX_NOTIONAL_PER_EXCHANGE": {}, "MAX_TOTAL_NOTIONAL": {}, "MAX_LEVERAGE": {},
		"MAX_HEDGE_GAP_PCT": {}, "MAX_CONCENTRATION_PCT": {}, "MAX_POSITIONS_PER_CONNECTOR": {},
		"MAX_SLIPPAGE_PCT": {}, "MIN_ORDER_BOOK_DEPTH_MULTIPLIER": {}, "CHECK_ORDER_BOOK_DEPTH_ENABLED": {},
		"MIN_TIME_TO_NEXT_FUNDING_SECONDS": {}, "PENDING_VALIDATION_TIMEOUT_SECONDS": {},
		"PENDING_VALIDATION_MAX_ATTEMPTS": {}, "CLOSE_VALIDATION_TIMEOUT_SECONDS": {},
		"MIN_POSITION_HOLD_TIME_MINUTES": {}, "MAX_POSITION_IMBALANCE_PCT": {},
		"EMERGENCY_CLOSE_ON_IMBALANCE": {}, "AUTO_LEVERAGE_REDUCTION": {},
		"AUTO_POSITION_RECONCILIATION": {}, "EMERGENCY_STOP_ON_CRITICAL_ISSUES": {},
		"STATS_INTERVAL_SECONDS": {}, "FUNDING_PERIOD_HOURS": {}, "SETTLEMENT_BUFFER_BPS": {},
		"TICK_INTERVAL_SECONDS": {}, "ALERT_WEBHOOK_URL": {}, "TIME_SYNC_SERVERS": {},
		"MARGIN_CHECK_INTERVAL_SECONDS": {}, "PARTIAL_CLOSE_FRACTION_ON_LEVERAGE_REFUSAL": {},
		"RECONCILE_INTERVAL_SECONDS": {},
	}
	try := func(path string) {
		f, err := os.Open(path)
		if err != nil {
			return
		}
		defer f.Close()
		s := bufio.NewScanner(f)
		for s.Scan() {
			line := strings.TrimSpace(s.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			if strings.HasPrefix(line, "export ") {
				line = strings.TrimSpace(line[len("export "):])
			}
			eq := strings.Index(line, "=")
			if eq <= 0 {
				continue
			}
			key := strings.TrimSpace(line[:eq])
			if _, ok := needed[key]; !ok {
				continue
			}
			val := strings.TrimSpace(line[eq+1:])
			if len(val) >= 2 && ((val[0] == '"' && val[len(val)-1] == '"') || (val[0] == '\'' && val[len(val)-1] == '\'')) {
				val = val[1 : len(val)-1]
			}
			if idx := strings.IndexAny(val, "#"); idx >= 0 {
				val = strings.TrimSpace(val[:idx])
			}
			if os.Getenv(key) == "" {
				_ = os.Setenv(key, val)
			}
		}
	}
	for _, base := range []string{".", ".."} {
		try(filepath.Join(base, ".env"))
	}
}
