package controllers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"shop-service/apperr"
	"shop-service/middlewares"
	"shop-service/models"
	"shop-service/orders"
)

type OrderController struct {
	orders *orders.Service
}

func NewOrderController(svc *orders.Service) *OrderController {
	return &OrderController{orders: svc}
}

func (oc *OrderController) Create(c *gin.Context) {
	defer func() {
		middlewares.RecordOrderOperation("create", c.Writer.Status() < 400)
	}()
	var in orders.CreateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		bindError(c, err)
		return
	}
	o, err := oc.orders.CreateOrder(c.Request.Context(), middlewares.UserID(c), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, o)
}

func (oc *OrderController) CreateFromCart(c *gin.Context) {
	defer func() {
		middlewares.RecordOrderOperation("create_from_cart", c.Writer.Status() < 400)
	}()
	var in orders.CreateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		bindError(c, err)
		return
	}
	o, err := oc.orders.CreateOrderFromCart(c.Request.Context(), middlewares.UserID(c), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, o)
}

func (oc *OrderController) ListMine(c *gin.Context) {
	defer func() {
		middlewares.RecordOrderOperation("list", c.Writer.Status() < 400)
	}()
	limit, offset := pagination(c)
	list, err := oc.orders.ListUserOrders(c.Request.Context(), middlewares.UserID(c), limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": list, "count": len(list)})
}

// Get returns one order. Customers only see their own; admins see any.
func (oc *OrderController) Get(c *gin.Context) {
	defer func() {
		middlewares.RecordOrderOperation("details", c.Writer.Status() < 400)
	}()
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	o, err := oc.orders.GetOrder(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	if o.UserID != middlewares.UserID(c) && !middlewares.IsAdmin(c) {
		respondError(c, apperr.Newf(apperr.KindNotFound, "order %d not found", id))
		return
	}
	c.JSON(http.StatusOK, o)
}

func (oc *OrderController) GetByNumber(c *gin.Context) {
	defer func() {
		middlewares.RecordOrderOperation("details", c.Writer.Status() < 400)
	}()
	number := c.Param("number")
	o, err := oc.orders.GetOrderByNumber(c.Request.Context(), number)
	if err != nil {
		respondError(c, err)
		return
	}
	if o.UserID != middlewares.UserID(c) && !middlewares.IsAdmin(c) {
		respondError(c, apperr.Newf(apperr.KindNotFound, "order %s not found", number))
		return
	}
	c.JSON(http.StatusOK, o)
}

func (oc *OrderController) ListByStatus(c *gin.Context) {
	defer func() {
		middlewares.RecordOrderOperation("list_by_status", c.Writer.Status() < 400)
	}()
	limit, offset := pagination(c)
	status := models.OrderStatus(c.Query("status"))
	list, err := oc.orders.ListOrdersByStatus(c.Request.Context(), status, limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": list, "count": len(list)})
}

func (oc *OrderController) ListByDateRange(c *gin.Context) {
	defer func() {
		middlewares.RecordOrderOperation("list_by_date", c.Writer.Status() < 400)
	}()
	from, err := time.Parse(time.RFC3339, c.Query("from"))
	if err != nil {
		bindError(c, err)
		return
	}
	to, err := time.Parse(time.RFC3339, c.Query("to"))
	if err != nil {
		bindError(c, err)
		return
	}
	limit, offset := pagination(c)
	list, err := oc.orders.ListOrdersByDateRange(c.Request.Context(), from, to, limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": list, "count": len(list)})
}

type statusUpdateRequest struct {
	Status models.OrderStatus `json:"status" binding:"required"`
	Reason string             `json:"reason"`
}

func (oc *OrderController) UpdateStatus(c *gin.Context) {
	defer func() {
		middlewares.RecordOrderOperation("update_status", c.Writer.Status() < 400)
	}()
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req statusUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	actorID := middlewares.UserID(c)
	o, err := oc.orders.UpdateOrderStatus(c.Request.Context(), id, req.Status, req.Reason, &actorID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

func (oc *OrderController) Pay(c *gin.Context) {
	defer func() {
		middlewares.RecordOrderOperation("pay", c.Writer.Status() < 400)
	}()
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var result models.PaymentResult
	if err := c.ShouldBindJSON(&result); err != nil {
		bindError(c, err)
		return
	}
	o, err := oc.orders.GetOrder(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	if o.UserID != middlewares.UserID(c) && !middlewares.IsAdmin(c) {
		respondError(c, apperr.Newf(apperr.KindNotFound, "order %d not found", id))
		return
	}
	paid, err := oc.orders.ProcessPayment(c.Request.Context(), id, result)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, paid)
}

type cancelRequest struct {
	Reason       string           `json:"reason"`
	RefundAmount *decimal.Decimal `json:"refund_amount,omitempty"`
}

func (oc *OrderController) Cancel(c *gin.Context) {
	defer func() {
		middlewares.RecordOrderOperation("cancel", c.Writer.Status() < 400)
	}()
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req cancelRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		bindError(c, err)
		return
	}
	o, err := oc.orders.GetOrder(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	if o.UserID != middlewares.UserID(c) && !middlewares.IsAdmin(c) {
		respondError(c, apperr.Newf(apperr.KindNotFound, "order %d not found", id))
		return
	}
	actorID := middlewares.UserID(c)
	cancelled, err := oc.orders.CancelOrder(c.Request.Context(), id, req.Reason, &actorID, req.RefundAmount)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cancelled)
}

func (oc *OrderController) Fulfill(c *gin.Context) {
	defer func() {
		middlewares.RecordOrderOperation("fulfill", c.Writer.Status() < 400)
	}()
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var details models.FulfillmentDetails
	if err := c.ShouldBindJSON(&details); err != nil {
		bindError(c, err)
		return
	}
	actorID := middlewares.UserID(c)
	o, err := oc.orders.FulfillOrder(c.Request.Context(), id, details, &actorID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

type refundRequest struct {
	Amount *decimal.Decimal `json:"amount,omitempty"`
}

func (oc *OrderController) Refund(c *gin.Context) {
	defer func() {
		middlewares.RecordOrderOperation("refund", c.Writer.Status() < 400)
	}()
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req refundRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		bindError(c, err)
		return
	}
	actorID := middlewares.UserID(c)
	o, err := oc.orders.RefundOrder(c.Request.Context(), id, req.Amount, &actorID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

// HandleDeadLetter is the ops escape hatch: support posts a dead-lettered
// event here after fixing the underlying cause.
func (oc *OrderController) HandleDeadLetter(c *gin.Context) {
	defer func() {
		middlewares.RecordOrderOperation("dead_letter", c.Writer.Status() < 400)
	}()
	var deadLetter struct {
		OrderID int64  `json:"order_id" binding:"required"`
		Reason  string `json:"reason"`
	}
	if err := c.ShouldBindJSON(&deadLetter); err != nil {
		bindError(c, err)
		return
	}
	log.Warn().Int64("orderID", deadLetter.OrderID).Str("reason", deadLetter.Reason).
		Msg("dead letter replayed by operator")
	c.JSON(http.StatusOK, gin.H{"status": "ok", "message": "dead letter processed"})
}
