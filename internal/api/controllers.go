package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"polytrack/internal/tracker"
	"polytrack/pkg/db"
)

// orderView is the JSON shape of one active order.
type orderView struct {
	OrderID   string  `json:"order_id"`
	AssetID   string  `json:"asset_id"`
	Side      string  `json:"side"`
	Quantity  float64 `json:"quantity"`
	Price     float64 `json:"price"`
	FilledQty float64 `json:"filled_quantity"`
	Status    string  `json:"status"`
	CreatedAt string  `json:"created_at"`
}

func toOrderView(r tracker.Record) orderView {
	return orderView{
		OrderID:   r.OrderID,
		AssetID:   r.AssetID,
		Side:      string(r.Side),
		Quantity:  r.Quantity,
		Price:     r.Price,
		FilledQty: r.FilledQuantity,
		Status:    string(r.Status),
		CreatedAt: r.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// getOrders lists the active orders, optionally filtered by ?asset=.
func (s *Server) getOrders(c *gin.Context) {
	var recs []tracker.Record
	if asset := c.Query("asset"); asset != "" {
		recs = s.Tracker.ByAsset(asset)
	} else {
		recs = s.Tracker.Active()
	}

	views := make([]orderView, 0, len(recs))
	for _, r := range recs {
		views = append(views, toOrderView(r))
	}
	c.JSON(http.StatusOK, gin.H{"orders": views, "count": len(views)})
}

func (s *Server) getOrder(c *gin.Context) {
	id := c.Param("id")
	rec, ok := s.Tracker.Get(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{
			"code":  "ORDER_NOT_FOUND",
			"error": "no active order with that id",
		})
		return
	}
	c.JSON(http.StatusOK, toOrderView(rec))
}

func (s *Server) getExposure(c *gin.Context) {
	asset := c.Param("asset")
	c.JSON(http.StatusOK, gin.H{
		"asset_id": asset,
		"exposure": s.Tracker.Exposure(asset),
		"orders":   len(s.Tracker.ByAsset(asset)),
	})
}

// getHistory lists archived terminal orders for an asset from sqlite.
func (s *Server) getHistory(c *gin.Context) {
	asset := c.Param("asset")
	orders, err := s.DB.GetOrdersByAsset(c.Request.Context(), asset, 100)
	if err != nil && !errors.Is(err, db.ErrNotFound) {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":  "INTERNAL_ERROR",
			"error": err.Error(),
		})
		return
	}

	type archivedView struct {
		OrderID   string  `json:"order_id"`
		AssetID   string  `json:"asset_id"`
		Side      string  `json:"side"`
		Quantity  float64 `json:"quantity"`
		Price     float64 `json:"price"`
		FilledQty float64 `json:"filled_quantity"`
		Status    string  `json:"status"`
		ClosedAt  string  `json:"closed_at"`
	}
	views := make([]archivedView, 0, len(orders))
	for _, o := range orders {
		views = append(views, archivedView{
			OrderID:   o.ID,
			AssetID:   o.AssetID,
			Side:      o.Side,
			Quantity:  o.Qty,
			Price:     o.Price,
			FilledQty: o.FilledQty,
			Status:    o.Status,
			ClosedAt:  o.ClosedAt.UTC().Format(time.RFC3339),
		})
	}
	c.JSON(http.StatusOK, gin.H{"orders": views, "count": len(views)})
}
