package capture

import (
	"context"
	"encoding/csv"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"polytrack/pkg/clob"
)

// Row is one market-data observation for one token.
type Row struct {
	Timestamp time.Time
	TokenID   string
	Midpoint  float64
	BestBuy   float64
	BestSell  float64
	Spread    float64
}

// MarketData is the subset of the CLOB client the capture needs.
type MarketData interface {
	GetMidpoint(ctx context.Context, tokenID string) (float64, error)
	GetPrice(ctx context.Context, tokenID string, side clob.Side) (float64, error)
	GetSpread(ctx context.Context, tokenID string) (float64, error)
}

// Config holds capture settings.
type Config struct {
	Data     MarketData
	Slug     string
	Tokens   []string
	Dir      string        // parent directory, a per-slug subdirectory is created
	Interval time.Duration // default 1m
	OnRow    func(Row)     // optional hook, called for each captured row
}

// Capture periodically samples midpoint, best prices and spread for a set of
// tokens and appends them to <slug>/<slug>_combined.csv.
type Capture struct {
	cfg  Config
	mu   sync.Mutex
	file *os.File
	w    *csv.Writer
}

var header = []string{"timestamp", "token_id", "midpoint", "best_buy", "best_sell", "spread"}

// New opens (or creates) the capture file and writes the header on first use.
func New(cfg Config) (*Capture, error) {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	dir := filepath.Join(cfg.Dir, cfg.Slug)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("capture dir: %w", err)
	}
	path := filepath.Join(dir, cfg.Slug+"_combined.csv")

	info, statErr := os.Stat(path)
	fresh := statErr != nil || info.Size() == 0

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open capture file: %w", err)
	}

	c := &Capture{cfg: cfg, file: file, w: csv.NewWriter(file)}
	if fresh {
		if err := c.w.Write(header); err != nil {
			file.Close()
			return nil, fmt.Errorf("write header: %w", err)
		}
		c.w.Flush()
	}
	log.Printf("capture: writing %s every %v", path, cfg.Interval)
	return c, nil
}

// Run samples on the configured interval until the context ends.
func (c *Capture) Run(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Snapshot(ctx)
		}
	}
}

// Snapshot samples every token once. A failed fetch skips that token's row;
// the next interval tries again.
func (c *Capture) Snapshot(ctx context.Context) {
	now := time.Now().UTC()
	for _, tok := range c.cfg.Tokens {
		row, err := c.sample(ctx, now, tok)
		if err != nil {
			log.Printf("capture: %s: %v", tok, err)
			continue
		}
		if err := c.append(row); err != nil {
			log.Printf("capture: write row for %s: %v", tok, err)
			continue
		}
		if c.cfg.OnRow != nil {
			c.cfg.OnRow(row)
		}
	}
}

func (c *Capture) sample(ctx context.Context, now time.Time, tokenID string) (Row, error) {
	mid, err := c.cfg.Data.GetMidpoint(ctx, tokenID)
	if err != nil {
		return Row{}, fmt.Errorf("midpoint: %w", err)
	}
	buy, err := c.cfg.Data.GetPrice(ctx, tokenID, clob.SideBuy)
	if err != nil {
		return Row{}, fmt.Errorf("best buy: %w", err)
	}
	sell, err := c.cfg.Data.GetPrice(ctx, tokenID, clob.SideSell)
	if err != nil {
		return Row{}, fmt.Errorf("best sell: %w", err)
	}
	spread, err := c.cfg.Data.GetSpread(ctx, tokenID)
	if err != nil {
		return Row{}, fmt.Errorf("spread: %w", err)
	}
	return Row{Timestamp: now, TokenID: tokenID, Midpoint: mid, BestBuy: buy, BestSell: sell, Spread: spread}, nil
}

func (c *Capture) append(row Row) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	err := c.w.Write([]string{
		row.Timestamp.Format(time.RFC3339),
		row.TokenID,
		strconv.FormatFloat(row.Midpoint, 'f', -1, 64),
		strconv.FormatFloat(row.BestBuy, 'f', -1, 64),
		strconv.FormatFloat(row.BestSell, 'f', -1, 64),
		strconv.FormatFloat(row.Spread, 'f', -1, 64),
	})
	if err != nil {
		return err
	}
	c.w.Flush()
	return c.w.Error()
}

// Close flushes and closes the capture file.
func (c *Capture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.w.Flush()
	return c.file.Close()
}
