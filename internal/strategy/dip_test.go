package strategy

import (
	"os"
	"path/filepath"
	"testing"

	"polytrack/pkg/clob"
)

func testParams() Params {
	p := DefaultParams()
	p.TradeValue = 2
	p.InitialCash = 10
	return p
}

func TestDipBuySignal(t *testing.T) {
	d := NewDip(testParams())

	if sig := d.OnTick("tok", 0.50); sig != nil {
		t.Fatalf("first observation must not signal, got %+v", sig)
	}
	// A 6% drop crosses the -4% threshold.
	sig := d.OnTick("tok", 0.47)
	if sig == nil || sig.Side != clob.SideBuy {
		t.Fatalf("expected buy signal, got %+v", sig)
	}
	if sig.Quantity != 2/0.47 {
		t.Errorf("quantity=%v, expected trade value over price", sig.Quantity)
	}

	// A drop within the threshold is a hold.
	if sig := d.OnTick("tok", 0.465); sig != nil {
		t.Errorf("small move signalled: %+v", sig)
	}
}

func TestDipSpikeSellsOnlyWithPosition(t *testing.T) {
	d := NewDip(testParams())

	d.OnTick("tok", 0.50)
	if sig := d.OnTick("tok", 0.55); sig != nil {
		t.Fatalf("spike without position signalled: %+v", sig)
	}

	d.RecordBuy("tok", 4, 0.50)
	d.OnTick("tok", 0.50)
	sig := d.OnTick("tok", 0.53)
	if sig == nil || sig.Side != clob.SideSell || sig.Quantity != 4 {
		t.Fatalf("expected full-position sell on spike, got %+v", sig)
	}
}

func TestDipTakeProfitAndStopLoss(t *testing.T) {
	cases := []struct {
		name  string
		price float64
		note  string
	}{
		{"take profit", 0.56, "take-profit"}, // +12% on 0.50 entry
		{"stop loss", 0.47, "stop-loss"},     // -6% on 0.50 entry
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			d := NewDip(testParams())
			d.RecordBuy("tok", 4, 0.50)

			sig := d.OnTick("tok", c.price)
			if sig == nil || sig.Side != clob.SideSell || sig.Note != c.note {
				t.Fatalf("expected %s exit, got %+v", c.note, sig)
			}
			if sig.Quantity != 4 {
				t.Errorf("exit quantity=%v", sig.Quantity)
			}
		})
	}
}

func TestDipRespectsTradeBudgetAndCash(t *testing.T) {
	p := testParams()
	p.MaxTrades = 1
	p.StopLoss = 0.5 // keep the open position from exiting during the test
	d := NewDip(p)

	d.OnTick("tok", 0.50)
	if sig := d.OnTick("tok", 0.47); sig == nil {
		t.Fatal("expected first dip to signal")
	}
	d.RecordBuy("tok", 4, 0.47)

	// Budget of one trade is spent.
	d.OnTick("tok", 0.47)
	if sig := d.OnTick("tok", 0.44); sig != nil {
		t.Errorf("dip beyond trade budget signalled: %+v", sig)
	}

	// With cash below the venue minimum no buy goes out.
	p = testParams()
	p.InitialCash = 0.5
	low := NewDip(p)
	low.OnTick("tok", 0.50)
	if sig := low.OnTick("tok", 0.47); sig != nil {
		t.Errorf("buy below minimum order value signalled: %+v", sig)
	}
}

func TestRecordBuySellBookkeeping(t *testing.T) {
	d := NewDip(testParams())

	d.RecordBuy("tok", 2, 0.50)
	d.RecordBuy("tok", 2, 0.60)
	pos, ok := d.Position("tok")
	if !ok || pos.Quantity != 4 {
		t.Fatalf("position=%+v ok=%v", pos, ok)
	}
	if pos.AvgPrice != 0.55 {
		t.Errorf("avg price=%v", pos.AvgPrice)
	}
	if got := d.Cash(); got != 10-2*0.50-2*0.60 {
		t.Errorf("cash=%v", got)
	}

	d.RecordSell("tok", 4, 0.70)
	if _, ok := d.Position("tok"); ok {
		t.Error("fully sold position should be removed")
	}
	if got := d.Cash(); got != 10-2*0.50-2*0.60+4*0.70 {
		t.Errorf("cash after sell=%v", got)
	}
}

func TestLoadParams(t *testing.T) {
	path := filepath.Join(t.TempDir(), "strategy.yaml")
	yaml := `strategy:
  buy_threshold: -0.02
  sell_threshold: 0.03
  max_trades: 9
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	p, err := LoadParams(path)
	if err != nil {
		t.Fatalf("LoadParams: %v", err)
	}
	if p.BuyThreshold != -0.02 || p.SellThreshold != 0.03 || p.MaxTrades != 9 {
		t.Errorf("params=%+v", p)
	}
	// Fields absent from the file keep their defaults.
	if p.TakeProfit != DefaultParams().TakeProfit {
		t.Errorf("take profit=%v, expected default", p.TakeProfit)
	}

	if _, err := LoadParams(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
