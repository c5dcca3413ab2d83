package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "8080" {
		t.Errorf("port=%s", cfg.Port)
	}
	if cfg.StatusCheckInterval != 60*time.Second {
		t.Errorf("status interval=%v", cfg.StatusCheckInterval)
	}
	if cfg.OrderTimeout != 45*time.Minute {
		t.Errorf("order timeout=%v", cfg.OrderTimeout)
	}
	if cfg.BuyThreshold != -0.04 || cfg.SellThreshold != 0.04 {
		t.Errorf("thresholds=%v/%v", cfg.BuyThreshold, cfg.SellThreshold)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ORDER_TIMEOUT", "30m")
	t.Setenv("STATUS_CHECK_INTERVAL", "15") // bare number taken as seconds
	t.Setenv("MAX_TRADES", "7")
	t.Setenv("BUY_THRESHOLD", "-0.02")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "9090" {
		t.Errorf("port=%s", cfg.Port)
	}
	if cfg.OrderTimeout != 30*time.Minute {
		t.Errorf("order timeout=%v", cfg.OrderTimeout)
	}
	if cfg.StatusCheckInterval != 15*time.Second {
		t.Errorf("status interval=%v", cfg.StatusCheckInterval)
	}
	if cfg.MaxTrades != 7 {
		t.Errorf("max trades=%d", cfg.MaxTrades)
	}
	if cfg.BuyThreshold != -0.02 {
		t.Errorf("buy threshold=%v", cfg.BuyThreshold)
	}
}

func TestTokens(t *testing.T) {
	t.Setenv("TOKEN1_ID", " 111 ")
	t.Setenv("TOKEN2_ID", "222")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	toks := cfg.Tokens()
	if len(toks) != 2 || toks[0] != "111" || toks[1] != "222" {
		t.Errorf("tokens=%v", toks)
	}

	t.Setenv("TOKEN1_ID", "")
	t.Setenv("TOKEN2_ID", "")
	cfg, _ = Load()
	if got := cfg.Tokens(); len(got) != 0 {
		t.Errorf("tokens=%v, expected none", got)
	}
}
