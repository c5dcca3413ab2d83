package strategy

import (
	"os"

	"gopkg.in/yaml.v3"
)

// Params tunes the dip strategy.
type Params struct {
	BuyThreshold  float64 `yaml:"buy_threshold"`  // one-step return at or below which to buy, negative
	SellThreshold float64 `yaml:"sell_threshold"` // one-step return at or above which to sell
	TakeProfit    float64 `yaml:"take_profit"`    // exit when unrealized return reaches this
	StopLoss      float64 `yaml:"stop_loss"`      // exit when unrealized return falls to minus this
	TradeValue    float64 `yaml:"trade_value"`    // target notional per entry
	MinOrderValue float64 `yaml:"min_order_value"`
	MaxTrades     int     `yaml:"max_trades"`
	InitialCash   float64 `yaml:"initial_cash"`
}

// ConfigFile represents the top-level YAML structure.
type ConfigFile struct {
	Strategy Params `yaml:"strategy"`
}

// DefaultParams returns the parameters used when no YAML file is given.
func DefaultParams() Params {
	return Params{
		BuyThreshold:  -0.04,
		SellThreshold: 0.04,
		TakeProfit:    0.10,
		StopLoss:      0.05,
		TradeValue:    2,
		MinOrderValue: 1,
		MaxTrades:     5,
		InitialCash:   10,
	}
}

// LoadParams reads strategy parameters from a YAML file. Unset fields keep
// their defaults.
func LoadParams(path string) (Params, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Params{}, err
	}

	file := ConfigFile{Strategy: DefaultParams()}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return Params{}, err
	}
	return file.Strategy, nil
}
