package api

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/Aidin1998/pincex_spot/api/responses"
	"github.com/Aidin1998/pincex_spot/common/errors"
	"github.com/Aidin1998/pincex_spot/internal/trading/lifecycle"
	"github.com/Aidin1998/pincex_spot/internal/trading/repository"
	"github.com/Aidin1998/pincex_spot/pkg/models"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

type placeOrderRequest struct {
	Symbol string          `json:"symbol" binding:"required,symbol"`
	Side   string          `json:"side" binding:"required,side"`
	Price  decimal.Decimal `json:"price"`
	Amount decimal.Decimal `json:"amount"`
}

type listOrdersQuery struct {
	Symbol string `form:"symbol" binding:"omitempty,symbol"`
	Side   string `form:"side" binding:"omitempty,side"`
	Status string `form:"status" binding:"omitempty,status"`
	Limit  int    `form:"limit" binding:"omitempty,min=1,max=500"`
	Offset int    `form:"offset" binding:"omitempty,min=0"`
}

// placeOrder accepts a limit order. Matching runs asynchronously, so the
// returned order is the OPEN order as created.
func (s *Server) placeOrder(c *gin.Context) {
	var req placeOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	// both parse: the validators already accepted them
	symbol, _ := models.ParseSymbol(req.Symbol)
	side, _ := models.ParseSide(req.Side)

	order, err := s.orders.Create(c.Request.Context(), lifecycle.CreateOrderParams{
		UserID: currentUser(c),
		Symbol: symbol,
		Side:   side,
		Price:  req.Price,
		Amount: req.Amount,
	})
	if err != nil {
		errors.HandleError(c, err)
		return
	}
	responses.Created(c, order, "Order accepted")
}

func (s *Server) cancelOrder(c *gin.Context) {
	orderID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		errors.BadRequest(c, "invalid order id",
			errors.ValidationError{Field: "id", Message: "must be a positive integer", Code: "uint"})
		return
	}
	order, err := s.orders.Cancel(c.Request.Context(), currentUser(c), orderID)
	if err != nil {
		errors.HandleError(c, err)
		return
	}
	responses.Success(c, order, "Order cancelled")
}

func (s *Server) listOrders(c *gin.Context) {
	var q listOrdersQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		bindError(c, err)
		return
	}
	filter := repository.OrderFilter{
		UserID: currentUser(c),
		Limit:  q.Limit,
		Offset: q.Offset,
	}
	if filter.Limit == 0 {
		filter.Limit = defaultPageSize
	}
	if filter.Limit > maxPageSize {
		filter.Limit = maxPageSize
	}
	if q.Symbol != "" {
		filter.Symbol, _ = models.ParseSymbol(q.Symbol)
	}
	if q.Side != "" {
		filter.Side, _ = models.ParseSide(q.Side)
	}
	if q.Status != "" {
		filter.Status, _ = models.ParseStatus(q.Status)
	}

	orders, err := s.orderStore.List(c.Request.Context(), filter)
	if err != nil {
		errors.HandleError(c, err)
		return
	}
	responses.List(c, orders, filter.Limit, filter.Offset, len(orders))
}
