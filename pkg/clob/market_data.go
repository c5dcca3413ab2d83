package clob

import (
	"context"
	"fmt"
	"net/url"
)

// GetMidpoint returns the midpoint price for a token.
func (c *Client) GetMidpoint(ctx context.Context, tokenID string) (float64, error) {
	var resp struct {
		Mid string `json:"mid"`
	}
	if err := c.doPublic(ctx, "/midpoint?token_id="+url.QueryEscape(tokenID), &resp); err != nil {
		return 0, fmt.Errorf("midpoint %s: %w", tokenID, err)
	}
	return toFloat(resp.Mid), nil
}

// GetPrice returns the best bid (side=BUY) or ask (side=SELL) for a token.
func (c *Client) GetPrice(ctx context.Context, tokenID string, side Side) (float64, error) {
	var resp struct {
		Price string `json:"price"`
	}
	path := fmt.Sprintf("/price?token_id=%s&side=%s", url.QueryEscape(tokenID), side)
	if err := c.doPublic(ctx, path, &resp); err != nil {
		return 0, fmt.Errorf("price %s %s: %w", tokenID, side, err)
	}
	return toFloat(resp.Price), nil
}

// GetSpread returns the bid/ask spread for a token.
func (c *Client) GetSpread(ctx context.Context, tokenID string) (float64, error) {
	var resp struct {
		Spread string `json:"spread"`
	}
	if err := c.doPublic(ctx, "/spread?token_id="+url.QueryEscape(tokenID), &resp); err != nil {
		return 0, fmt.Errorf("spread %s: %w", tokenID, err)
	}
	return toFloat(resp.Spread), nil
}

type bookResponse struct {
	AssetID string `json:"asset_id"`
	Bids    []struct {
		Price string `json:"price"`
		Size  string `json:"size"`
	} `json:"bids"`
	Asks []struct {
		Price string `json:"price"`
		Size  string `json:"size"`
	} `json:"asks"`
}

// GetOrderBook returns the order book snapshot for a token.
func (c *Client) GetOrderBook(ctx context.Context, tokenID string) (Book, error) {
	var resp bookResponse
	if err := c.doPublic(ctx, "/book?token_id="+url.QueryEscape(tokenID), &resp); err != nil {
		return Book{}, fmt.Errorf("book %s: %w", tokenID, err)
	}

	book := Book{TokenID: resp.AssetID}
	for _, b := range resp.Bids {
		book.Bids = append(book.Bids, BookLevel{Price: toFloat(b.Price), Size: toFloat(b.Size)})
	}
	for _, a := range resp.Asks {
		book.Asks = append(book.Asks, BookLevel{Price: toFloat(a.Price), Size: toFloat(a.Size)})
	}
	return book, nil
}
