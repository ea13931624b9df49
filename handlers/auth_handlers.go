package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"postviews/api/middleware"
	"postviews/api/models"
	"postviews/api/store"
	"postviews/api/utils"
)

// AuthHandlers manage dashboard accounts. Only dashboard users can read
// reports; readers being tracked never log in here.
type AuthHandlers struct {
	UserStore     *store.UserStore
	JWT           *utils.JWTManager
	SecureCookies bool
	log           *zap.Logger
}

func NewAuthHandlers(userStore *store.UserStore, jwtManager *utils.JWTManager, secureCookies bool, log *zap.Logger) *AuthHandlers {
	return &AuthHandlers{UserStore: userStore, JWT: jwtManager, SecureCookies: secureCookies, log: log}
}

func (h *AuthHandlers) Signup(c *gin.Context) {
	var req models.SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		h.log.Error("failed to hash password", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process password"})
		return
	}

	user, err := h.UserStore.CreateUser(c.Request.Context(), req.Email, hashedPassword)
	if err != nil {
		if errors.Is(err, store.ErrUserExists) {
			c.JSON(http.StatusConflict, gin.H{"error": "User with this email already exists"})
			return
		}
		h.log.Error("failed to create user", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to register user"})
		return
	}

	h.log.Info("dashboard user registered", zap.Int("user_id", user.ID))
	c.JSON(http.StatusCreated, gin.H{"message": "User registered successfully", "user_email": user.Email})
}

// Login checks credentials and sets the JWT cookie.
func (h *AuthHandlers) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	user, err := h.UserStore.GetUserByEmail(c.Request.Context(), req.Email)
	if err != nil {
		if !errors.Is(err, store.ErrUserNotFound) {
			h.log.Error("failed to load user for login", zap.Error(err))
		}
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}

	if err := bcrypt.CompareHashAndPassword(user.HashedPassword, []byte(req.Password)); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}

	tokenString, err := h.JWT.GenerateJWT(user)
	if err != nil {
		h.log.Error("failed to generate JWT", zap.Int("user_id", user.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate authentication token"})
		return
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.TokenCookieName, tokenString, int(h.JWT.TTL().Seconds()), "/", "", h.SecureCookies, true)

	c.JSON(http.StatusOK, gin.H{
		"message":    "Login successful",
		"user_email": user.Email,
		"token":      tokenString,
	})
}

func (h *AuthHandlers) Logout(c *gin.Context) {
	c.SetCookie(middleware.TokenCookieName, "", -1, "/", "", h.SecureCookies, true)
	c.JSON(http.StatusOK, gin.H{"message": "Logged out successfully"})
}
