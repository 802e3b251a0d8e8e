package api

import (
	"github.com/gin-gonic/gin"

	"github.com/Aidin1998/pincex_spot/api/responses"
	"github.com/Aidin1998/pincex_spot/common/errors"
	"github.com/Aidin1998/pincex_spot/pkg/models"
)

type listTradesQuery struct {
	Symbol string `form:"symbol" binding:"omitempty,symbol"`
}

// listTrades returns the caller's trades with its side and sales value.
func (s *Server) listTrades(c *gin.Context) {
	var q listTradesQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		bindError(c, err)
		return
	}
	var symbol models.Symbol
	if q.Symbol != "" {
		symbol, _ = models.ParseSymbol(q.Symbol)
	}
	trades, err := s.tradeStore.ListForUser(c.Request.Context(), currentUser(c), symbol)
	if err != nil {
		errors.HandleError(c, err)
		return
	}
	responses.List(c, trades, len(trades), 0, len(trades))
}
