package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"shop-service/cart"
	"shop-service/middlewares"
	"shop-service/models"
)

const sessionHeader = "X-Session-ID"

type CartController struct {
	carts *cart.Service
}

func NewCartController(carts *cart.Service) *CartController {
	return &CartController{carts: carts}
}

// owner resolves who the cart belongs to: the authenticated user when there
// is one, otherwise the guest session. A guest without a session gets one
// minted and echoed back in the response header.
func (cc *CartController) owner(c *gin.Context) cart.Owner {
	if userID, exists := c.Get(middlewares.ContextUserID); exists {
		return cart.UserOwner(userID.(int64))
	}
	sessionID := c.GetHeader(sessionHeader)
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	c.Header(sessionHeader, sessionID)
	return cart.SessionOwner(sessionID)
}

func (cc *CartController) Get(c *gin.Context) {
	defer func() {
		middlewares.RecordCartOperation("get", c.Writer.Status() < 400)
	}()
	crt, err := cc.carts.Get(c.Request.Context(), cc.owner(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, crt)
}

type cartItemRequest struct {
	ProductID int64 `json:"product_id" binding:"required"`
	Quantity  int   `json:"quantity" binding:"required"`
}

func (cc *CartController) AddItem(c *gin.Context) {
	defer func() {
		middlewares.RecordCartOperation("add_item", c.Writer.Status() < 400)
	}()
	var req cartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	crt, err := cc.carts.AddItem(c.Request.Context(), cc.owner(c), req.ProductID, req.Quantity)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, crt)
}

func (cc *CartController) UpdateItem(c *gin.Context) {
	defer func() {
		middlewares.RecordCartOperation("update_item", c.Writer.Status() < 400)
	}()
	productID, ok := pathID(c, "productID")
	if !ok {
		return
	}
	var req struct {
		Quantity int `json:"quantity"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	crt, err := cc.carts.UpdateItemQuantity(c.Request.Context(), cc.owner(c), productID, req.Quantity)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, crt)
}

func (cc *CartController) RemoveItem(c *gin.Context) {
	defer func() {
		middlewares.RecordCartOperation("remove_item", c.Writer.Status() < 400)
	}()
	productID, ok := pathID(c, "productID")
	if !ok {
		return
	}
	crt, err := cc.carts.RemoveItem(c.Request.Context(), cc.owner(c), productID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, crt)
}

func (cc *CartController) Clear(c *gin.Context) {
	defer func() {
		middlewares.RecordCartOperation("clear", c.Writer.Status() < 400)
	}()
	crt, err := cc.carts.ClearCart(c.Request.Context(), cc.owner(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, crt)
}

func (cc *CartController) Validate(c *gin.Context) {
	defer func() {
		middlewares.RecordCartOperation("validate", c.Writer.Status() < 400)
	}()
	issues, err := cc.carts.ValidateCart(c.Request.Context(), cc.owner(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": len(issues) == 0, "issues": issues})
}

func (cc *CartController) RefreshPrices(c *gin.Context) {
	defer func() {
		middlewares.RecordCartOperation("refresh_prices", c.Writer.Status() < 400)
	}()
	changed, err := cc.carts.RefreshCartPrices(c.Request.Context(), cc.owner(c))
	if err != nil {
		respondError(c, err)
		return
	}
	crt, err := cc.carts.Get(c.Request.Context(), cc.owner(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated_items": changed, "cart": crt})
}

func (cc *CartController) Abandon(c *gin.Context) {
	defer func() {
		middlewares.RecordCartOperation("abandon", c.Writer.Status() < 400)
	}()
	if err := cc.carts.Abandon(c.Request.Context(), cc.owner(c)); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type discountRequest struct {
	Code   string              `json:"code" binding:"required"`
	Type   models.DiscountType `json:"type" binding:"required"`
	Amount decimal.Decimal     `json:"amount" binding:"required"`
}

func (cc *CartController) ApplyDiscount(c *gin.Context) {
	defer func() {
		middlewares.RecordCartOperation("apply_discount", c.Writer.Status() < 400)
	}()
	var req discountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	crt, err := cc.carts.ApplyDiscount(c.Request.Context(), cc.owner(c), req.Code, req.Type, req.Amount)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, crt)
}
