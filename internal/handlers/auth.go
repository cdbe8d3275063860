package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/testschool/testschool-backend/internal/services"
)

const refreshCookieName = "refresh_token"

type AuthHandler struct {
	authService services.AuthService
}

func NewAuthHandler(authService services.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

type registerRequest struct {
	Name     string `json:"name" binding:"required,min=2"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
}

func (ah *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_input", err)
		return
	}
	if err := ah.authService.RegisterUser(c.Request.Context(), req.Name, req.Email, req.Password); err != nil {
		if errors.Is(err, services.ErrEmailInUse) {
			RespondError(c, http.StatusConflict, "email_in_use", err)
			return
		}
		RespondError(c, http.StatusInternalServerError, "register_failed", err)
		return
	}
	RespondOK(c, gin.H{"message": "Registered. OTP sent to email."})
}

func (ah *AuthHandler) ResendOTP(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required,email"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_input", err)
		return
	}
	if err := ah.authService.ResendOTP(c.Request.Context(), req.Email); err != nil {
		if errors.Is(err, services.ErrUserNotFound) {
			RespondError(c, http.StatusNotFound, "not_found", err)
			return
		}
		RespondError(c, http.StatusInternalServerError, "resend_failed", err)
		return
	}
	RespondOK(c, gin.H{"message": "OTP resent"})
}

func (ah *AuthHandler) VerifyOTP(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required,email"`
		OTP   string `json:"otp" binding:"required,min=4"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_input", err)
		return
	}
	if err := ah.authService.VerifyOTP(c.Request.Context(), req.Email, req.OTP); err != nil {
		switch {
		case errors.Is(err, services.ErrNoOTP), errors.Is(err, services.ErrInvalidOTP), errors.Is(err, services.ErrOTPExpired):
			RespondError(c, http.StatusBadRequest, "invalid_otp", err)
		case errors.Is(err, services.ErrUserNotFound):
			RespondError(c, http.StatusNotFound, "not_found", err)
		default:
			RespondError(c, http.StatusInternalServerError, "verify_failed", err)
		}
		return
	}
	RespondOK(c, gin.H{"message": "Verified"})
}

func (ah *AuthHandler) Login(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required,email"`
		Password string `json:"password" binding:"required,min=6"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_input", err)
		return
	}
	result, err := ah.authService.LoginUser(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidCredentials):
			RespondError(c, http.StatusUnauthorized, "invalid_credentials", err)
		case errors.Is(err, services.ErrEmailNotVerified):
			RespondError(c, http.StatusForbidden, "email_not_verified", err)
		default:
			RespondError(c, http.StatusInternalServerError, "login_failed", err)
		}
		return
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(refreshCookieName, result.RefreshToken, int(ah.authService.RefreshTTL()/time.Second), "/", "", false, true)
	RespondOK(c, gin.H{
		"user": gin.H{
			"id":          result.User.ID,
			"name":        result.User.Name,
			"email":       result.User.Email,
			"role":        result.User.Role,
			"is_verified": result.User.IsVerified,
		},
		"tokens": gin.H{"accessToken": result.AccessToken},
	})
}

func (ah *AuthHandler) Refresh(c *gin.Context) {
	token, err := c.Cookie(refreshCookieName)
	if err != nil || token == "" {
		RespondError(c, http.StatusUnauthorized, "missing_refresh_token", errors.New("Missing refresh token"))
		return
	}
	accessToken, err := ah.authService.RefreshUser(c.Request.Context(), token)
	if err != nil {
		RespondError(c, http.StatusUnauthorized, "invalid_refresh_token", err)
		return
	}
	RespondOK(c, gin.H{"tokens": gin.H{"accessToken": accessToken}})
}

func (ah *AuthHandler) Logout(c *gin.Context) {
	token, _ := c.Cookie(refreshCookieName)
	if token != "" {
		c.SetCookie(refreshCookieName, "", -1, "/", "", false, true)
		_ = ah.authService.LogoutUser(c.Request.Context(), token)
	}
	RespondOK(c, gin.H{"message": "Logged out"})
}

func (ah *AuthHandler) ForgotPassword(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required,email"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_input", err)
		return
	}
	if err := ah.authService.ForgotPassword(c.Request.Context(), req.Email); err != nil {
		RespondError(c, http.StatusInternalServerError, "forgot_failed", err)
		return
	}
	RespondOK(c, gin.H{"message": "If exists, email sent"})
}

func (ah *AuthHandler) ResetPassword(c *gin.Context) {
	var req struct {
		Token    string `json:"token" binding:"required,min=10"`
		Password string `json:"password" binding:"required,min=8"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_input", err)
		return
	}
	if err := ah.authService.ResetPassword(c.Request.Context(), req.Token, req.Password); err != nil {
		if errors.Is(err, services.ErrInvalidToken) {
			RespondError(c, http.StatusBadRequest, "invalid_token", err)
			return
		}
		RespondError(c, http.StatusInternalServerError, "reset_failed", err)
		return
	}
	RespondOK(c, gin.H{"message": "Password updated"})
}
