package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"shop-service/middlewares"
	"shop-service/reviews"
)

type ReviewController struct {
	reviews *reviews.Service
}

func NewReviewController(svc *reviews.Service) *ReviewController {
	return &ReviewController{reviews: svc}
}

func (rc *ReviewController) Create(c *gin.Context) {
	productID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var in reviews.CreateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		bindError(c, err)
		return
	}
	in.ProductID = productID
	r, err := rc.reviews.Create(c.Request.Context(), middlewares.UserID(c), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, r)
}

func (rc *ReviewController) ListByProduct(c *gin.Context) {
	productID, ok := pathID(c, "id")
	if !ok {
		return
	}
	limit, offset := pagination(c)
	list, err := rc.reviews.ListByProduct(c.Request.Context(), productID, limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reviews": list, "count": len(list)})
}

func (rc *ReviewController) Update(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var in reviews.UpdateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		bindError(c, err)
		return
	}
	r, err := rc.reviews.Update(c.Request.Context(), id, middlewares.UserID(c), middlewares.IsAdmin(c), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

func (rc *ReviewController) Delete(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := rc.reviews.Delete(c.Request.Context(), id, middlewares.UserID(c), middlewares.IsAdmin(c)); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (rc *ReviewController) ToggleLike(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	r, err := rc.reviews.ToggleLike(c.Request.Context(), id, middlewares.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

func (rc *ReviewController) ToggleDislike(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	r, err := rc.reviews.ToggleDislike(c.Request.Context(), id, middlewares.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}
