package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"shop-service/apperr"
	"shop-service/cart"
	"shop-service/models"
	"shop-service/utils"
)

type UserStore interface {
	Create(ctx context.Context, u *models.User) error
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByID(ctx context.Context, id int64) (*models.User, error)
}

type AuthController struct {
	users     UserStore
	carts     *cart.Service
	jwtSecret string
	jwtTTL    time.Duration
}

func NewAuthController(users UserStore, carts *cart.Service, jwtSecret string, jwtTTL time.Duration) *AuthController {
	return &AuthController{users: users, carts: carts, jwtSecret: jwtSecret, jwtTTL: jwtTTL}
}

type registerRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
	Name     string `json:"name" binding:"required"`
}

func (ac *AuthController) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		respondError(c, err)
		return
	}

	u := &models.User{
		Email:        req.Email,
		PasswordHash: string(hash),
		Name:         req.Name,
		Role:         models.RoleCustomer,
	}
	if err := ac.users.Create(c.Request.Context(), u); err != nil {
		respondError(c, err)
		return
	}

	token, err := utils.GenerateToken(u.ID, u.Role, ac.jwtSecret, ac.jwtTTL)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"token": token, "user": u})
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

func (ac *AuthController) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	ctx := c.Request.Context()
	u, err := ac.users.GetByEmail(ctx, req.Email)
	if err != nil {
		// Same reply for unknown email and wrong password.
		respondError(c, apperr.New(apperr.KindUnauthorized, "invalid credentials"))
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)) != nil {
		respondError(c, apperr.New(apperr.KindUnauthorized, "invalid credentials"))
		return
	}

	// A guest cart from before login folds into the user's cart.
	if sessionID := c.GetHeader("X-Session-ID"); sessionID != "" {
		if _, err := ac.carts.MergeCarts(ctx, u.ID, sessionID); err != nil && !apperr.IsKind(err, apperr.KindNotFound) {
			log.Error().Err(err).Int64("userID", u.ID).Msg("failed to merge guest cart on login")
		}
	}

	token, err := utils.GenerateToken(u.ID, u.Role, ac.jwtSecret, ac.jwtTTL)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "user": u})
}

func (ac *AuthController) Me(c *gin.Context) {
	u, err := ac.users.GetByID(c.Request.Context(), c.GetInt64("userID"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}
