package main

import (
	"os"
	"testing"

	"github.com/riskforge/fundingarb/internal/money"
)

func TestGetEnvFallsBackToDefault(t *testing.T) {
	os.Unsetenv("FUNDINGARB_TEST_KEY")
	if got := getEnv("FUNDINGARB_TEST_KEY", "fallback"); got != "fallback" {
		t.Fatalf("getEnv = %q, want fallback", got)
	}
	os.Setenv("FUNDINGARB_TEST_KEY", "set")
	defer os.Unsetenv("FUNDINGARB_TEST_KEY")
	if got := getEnv("FUNDINGARB_TEST_KEY", "fallback"); got != "set" {
		t.Fatalf("getEnv = %q, want set", got)
	}
}

func TestGetEnvBoolParsesTruthyAndFalsy(t *testing.T) {
	cases := map[string]bool{"1": true, "true": true, "yes": true, "y": true, "0": false, "false": false, "no": false, "n": false}
	for raw, want := range cases {
		os.Setenv("FUNDINGARB_TEST_BOOL", raw)
		if got := getEnvBool("FUNDINGARB_TEST_BOOL", !want); got != want {
			t.Errorf("getEnvBool(%q) = %v, want %v", raw, got, want)
		}
	}
	os.Unsetenv("FUNDINGARB_TEST_BOOL")
	if got := getEnvBool("FUNDINGARB_TEST_BOOL", true); !got {
		t.Error("unset key must fall back to default")
	}
	os.Setenv("FUNDINGARB_TEST_BOOL", "garbage")
	defer os.Unsetenv("FUNDINGARB_TEST_BOOL")
	if got := getEnvBool("FUNDINGARB_TEST_BOOL", true); !got {
		t.Error("unrecognized value must fall back to default, not panic")
	}
}

func TestGetEnvIntInvalidFallsBack(t *testing.T) {
	os.Setenv("FUNDINGARB_TEST_INT", "not-a-number")
	defer os.Unsetenv("FUNDINGARB_TEST_INT")
	if got := getEnvInt("FUNDINGARB_TEST_INT", 42); got != 42 {
		t.Fatalf("getEnvInt = %d, want fallback 42", got)
	}
}

func TestGetEnvInt64ParsesValid(t *testing.T) {
	os.Setenv("FUNDINGARB_TEST_INT64", "9000000000")
	defer os.Unsetenv("FUNDINGARB_TEST_INT64")
	if got := getEnvInt64("FUNDINGARB_TEST_INT64", 0); got != 9000000000 {
		t.Fatalf("getEnvInt64 = %d, want 9000000000", got)
	}
}

func TestGetEnvDecimalPreservesPrecision(t *testing.T) {
	os.Setenv("FUNDINGARB_TEST_DECIMAL", "0.000123456789")
	defer os.Unsetenv("FUNDINGARB_TEST_DECIMAL")
	got := getEnvDecimal("FUNDINGARB_TEST_DECIMAL", money.Zero)
	want, _ := money.FromString("0.000123456789")
	if !got.Equal(want) {
		t.Fatalf("getEnvDecimal = %s, want %s", got, want)
	}
}

func TestGetEnvDecimalInvalidFallsBack(t *testing.T) {
	os.Setenv("FUNDINGARB_TEST_DECIMAL_BAD", "not-a-decimal")
	defer os.Unsetenv("FUNDINGARB_TEST_DECIMAL_BAD")
	def := money.FromFloat(1.5)
	if got := getEnvDecimal("FUNDINGARB_TEST_DECIMAL_BAD", def); !got.Equal(def) {
		t.Fatalf("getEnvDecimal = %s, want default %s", got, def)
	}
}

func TestGetEnvListSplitsAndTrims(t *testing.T) {
	os.Setenv("FUNDINGARB_TEST_LIST", "binance, bybit ,hyperliquid")
	defer os.Unsetenv("FUNDINGARB_TEST_LIST")
	got := getEnvList("FUNDINGARB_TEST_LIST", nil)
	want := []string{"binance", "bybit", "hyperliquid"}
	if len(got) != len(want) {
		t.Fatalf("getEnvList = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("getEnvList = %v, want %v", got, want)
		}
	}
}

func TestGetEnvListEmptyFallsBackToDefault(t *testing.T) {
	os.Unsetenv("FUNDINGARB_TEST_LIST_EMPTY")
	def := []string{"binance"}
	got := getEnvList("FUNDINGARB_TEST_LIST_EMPTY", def)
	if len(got) != 1 || got[0] != "binance" {
		t.Fatalf("getEnvList = %v, want default %v", got, def)
	}
}
