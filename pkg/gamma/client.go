package gamma

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Market is one entry from the Gamma markets API.
type Market struct {
	ID           string   `json:"id"`
	Slug         string   `json:"slug"`
	Question     string   `json:"question"`
	ConditionID  string   `json:"conditionId"`
	ClobTokenIDs string   `json:"clobTokenIds"` // JSON-encoded array of token ids
	Liquidity    float64  `json:"liquidityNum"`
	Volume       float64  `json:"volumeNum"`
	Active       bool     `json:"active"`
	Closed       bool     `json:"closed"`
	Outcomes     []string `json:"-"`
}

// TokenIDs decodes the embedded CLOB token id list.
func (m Market) TokenIDs() []string {
	var ids []string
	if err := json.Unmarshal([]byte(m.ClobTokenIDs), &ids); err != nil {
		return nil
	}
	return ids
}

// Filter narrows market listings. Zero values mean "no constraint".
type Filter struct {
	Slug         string
	Active       *bool
	Closed       *bool
	LiquidityMin float64
	VolumeMin    float64
	Order        string
	Ascending    bool
}

// Client queries the Gamma markets API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	pageSize   int
}

// New builds a Gamma client.
func New(host string) *Client {
	if host == "" {
		host = "https://gamma-api.polymarket.com"
	}
	return &Client{
		baseURL:    host,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		// Pagination walks many pages back to back; keep a gentle pace.
		limiter:  rate.NewLimiter(rate.Every(50*time.Millisecond), 1),
		pageSize: 100,
	}
}

// GetMarkets fetches every market matching the filter, walking pagination
// until a short page signals the end.
func (c *Client) GetMarkets(ctx context.Context, f Filter) ([]Market, error) {
	params := url.Values{}
	params.Set("limit", strconv.Itoa(c.pageSize))
	if f.Slug != "" {
		params.Set("slug", f.Slug)
	}
	if f.Active != nil {
		params.Set("active", strconv.FormatBool(*f.Active))
	}
	if f.Closed != nil {
		params.Set("closed", strconv.FormatBool(*f.Closed))
	}
	if f.LiquidityMin > 0 {
		params.Set("liquidity_num_min", strconv.FormatFloat(f.LiquidityMin, 'f', -1, 64))
	}
	if f.VolumeMin > 0 {
		params.Set("volume_num_min", strconv.FormatFloat(f.VolumeMin, 'f', -1, 64))
	}
	if f.Order != "" {
		params.Set("order", f.Order)
		params.Set("ascending", strconv.FormatBool(f.Ascending))
	}

	var all []Market
	offset := 0
	for {
		params.Set("offset", strconv.Itoa(offset))
		page, err := c.getPage(ctx, params)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) < c.pageSize {
			return all, nil
		}
		offset += c.pageSize
	}
}

// GetMarket fetches one market by id.
func (c *Client) GetMarket(ctx context.Context, id string) (Market, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return Market{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/markets/"+url.PathEscape(id), nil)
	if err != nil {
		return Market{}, err
	}
	res, err := c.httpClient.Do(req)
	if err != nil {
		return Market{}, err
	}
	defer res.Body.Close()

	body, _ := io.ReadAll(res.Body)
	if res.StatusCode >= 300 {
		return Market{}, fmt.Errorf("gamma GET /markets/%s status %d: %s", id, res.StatusCode, string(body))
	}
	var m Market
	if err := json.Unmarshal(body, &m); err != nil {
		return Market{}, fmt.Errorf("decode market: %w", err)
	}
	return m, nil
}

func (c *Client) getPage(ctx context.Context, params url.Values) ([]Market, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/markets?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	body, _ := io.ReadAll(res.Body)
	if res.StatusCode >= 300 {
		return nil, fmt.Errorf("gamma GET /markets status %d: %s", res.StatusCode, string(body))
	}
	var page []Market
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("decode markets page: %w", err)
	}
	return page, nil
}

// FilterBySlugKeyword keeps markets whose slug contains the keyword (case-insensitive).
func FilterBySlugKeyword(markets []Market, keyword string) []Market {
	if keyword == "" {
		return markets
	}
	keyword = strings.ToLower(keyword)
	var out []Market
	for _, m := range markets {
		if strings.Contains(strings.ToLower(m.Slug), keyword) {
			out = append(out, m)
		}
	}
	return out
}
