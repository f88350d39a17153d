package controllers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"shop-service/inventory"
	"shop-service/models"
)

type ProductStore interface {
	Create(ctx context.Context, p *models.Product) error
	GetByID(ctx context.Context, id int64) (*models.Product, error)
	GetBySlug(ctx context.Context, slug string) (*models.Product, error)
	List(ctx context.Context, limit, offset int) ([]models.Product, error)
	Update(ctx context.Context, p *models.Product) error
	SoftDelete(ctx context.Context, id int64) error
}

type ProductController struct {
	products ProductStore
	ledger   *inventory.Ledger
}

func NewProductController(products ProductStore, ledger *inventory.Ledger) *ProductController {
	return &ProductController{products: products, ledger: ledger}
}

type productRequest struct {
	SKU         string          `json:"sku" binding:"required"`
	Slug        string          `json:"slug" binding:"required"`
	Name        string          `json:"name" binding:"required"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price" binding:"required"`
	Stock       int             `json:"stock"`
	Image       string          `json:"image"`
}

func (pc *ProductController) Create(c *gin.Context) {
	var req productRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	p := &models.Product{
		SKU:         req.SKU,
		Slug:        req.Slug,
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
		Stock:       req.Stock,
		Image:       req.Image,
	}
	if err := pc.products.Create(c.Request.Context(), p); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

// Get looks a product up by numeric ID or, failing that, by slug; storefronts
// link both ways.
func (pc *ProductController) Get(c *gin.Context) {
	key := c.Param("id")
	if id, err := strconv.ParseInt(key, 10, 64); err == nil {
		p, err := pc.products.GetByID(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, p)
		return
	}
	p, err := pc.products.GetBySlug(c.Request.Context(), key)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (pc *ProductController) List(c *gin.Context) {
	limit, offset := pagination(c)
	products, err := pc.products.List(c.Request.Context(), limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"products": products, "count": len(products)})
}

func (pc *ProductController) Update(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req productRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	p := &models.Product{
		ID:          id,
		SKU:         req.SKU,
		Slug:        req.Slug,
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
		Stock:       req.Stock,
		Image:       req.Image,
	}
	if err := pc.products.Update(c.Request.Context(), p); err != nil {
		respondError(c, err)
		return
	}
	updated, err := pc.products.GetByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (pc *ProductController) Delete(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := pc.products.SoftDelete(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type inventoryCheckRequest struct {
	Items []inventory.Item `json:"items" binding:"required,min=1,dive"`
}

// CheckInventory answers a read-only batch availability question; it never
// reserves anything.
func (pc *ProductController) CheckInventory(c *gin.Context) {
	var req inventoryCheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	levels, err := pc.ledger.CheckInventory(c.Request.Context(), req.Items)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": levels})
}
