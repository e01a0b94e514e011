package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"Resilix/internal/models"
	apperrors "Resilix/pkg/errors"
	"Resilix/pkg/logger"
	"Resilix/pkg/middleware"
	"Resilix/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cast"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	msgSignupOK        = "Registration successful. Please verify your account using the OTP sent to your phone number."
	msgSignupSMSFailed = "Registration successful, but failed to send SMS. Please verify your account manually."
)

type SignupForm struct {
	Username    string `json:"username" binding:"required,max=100"`
	PhoneNumber string `json:"phone_number" binding:"required,max=15"`
	Password    string `json:"password" binding:"required"`
	FCMToken    string `json:"fcm_token" binding:"max=255"`
}

type LoginForm struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *Handlers) handleUserSignup(c *gin.Context) {
	var form SignupForm
	if err := c.ShouldBindJSON(&form); err != nil {
		response.AbortWithError(c, bindError(err))
		return
	}
	ctx := c.Request.Context()

	exists, err := models.UsernameExists(ctx, h.db, form.Username)
	if err != nil {
		response.AbortWithError(c, apperrors.Storage(err, "check username"))
		return
	}
	if exists {
		response.AbortWithError(c, rejected("non_field_errors", "Username Already Taken"))
		return
	}

	user := &models.CustomUser{
		Username:    form.Username,
		PhoneNumber: form.PhoneNumber,
		FCMToken:    strings.TrimSpace(form.FCMToken),
	}
	if err := user.SetPassword(form.Password); err != nil {
		response.AbortWithError(c, apperrors.Wrap(err, http.StatusInternalServerError, "hash password"))
		return
	}
	if err := models.CreateUser(ctx, h.db, user); err != nil {
		response.AbortWithError(c, apperrors.Storage(err, "create user"))
		return
	}

	msg := msgSignupOK
	if h.users == nil {
		msg = msgSignupSMSFailed
	} else if err := h.users.OnUserCreated(ctx, user); err != nil {
		logger.Warn("send verification code failed", zap.Uint("user_id", user.ID), zap.Error(err))
		msg = msgSignupSMSFailed
	}
	c.JSON(http.StatusCreated, gin.H{"message": msg})
}

func (h *Handlers) handleUserLogin(c *gin.Context) {
	var form LoginForm
	if err := c.ShouldBindJSON(&form); err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": "Authentication failed."})
		return
	}
	user, err := models.GetUserByUsername(c.Request.Context(), h.db, form.Username)
	if err != nil || !user.CheckPassword(form.Password) {
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			logger.Error("load user failed", zap.Error(err))
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": "Authentication failed."})
		return
	}

	ttl := time.Duration(h.cfg.JWTExpireHours) * time.Hour
	token, err := middleware.IssueToken(h.cfg.JWTSecret, user.ID, user.Username, ttl)
	if err != nil {
		response.AbortWithError(c, apperrors.Wrap(err, http.StatusInternalServerError, "issue token"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "username": user.Username})
}

// handleVerifyPhone otp_code 允许数字或字符串
func (h *Handlers) handleVerifyPhone(c *gin.Context) {
	var body map[string]any
	if err := c.ShouldBindJSON(&body); err != nil {
		body = nil
	}
	phone := strings.TrimSpace(cast.ToString(body["phone_number"]))
	code := strings.TrimSpace(cast.ToString(body["otp_code"]))
	if phone == "" || code == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"detail": "Phone number and OTP code are required."})
		return
	}
	// 数字形式会丢失前导零
	if len(code) < 6 && strings.Trim(code, "0123456789") == "" {
		code = strings.Repeat("0", 6-len(code)) + code
	}

	ctx := c.Request.Context()
	user, err := models.GetUserByPhone(ctx, h.db, phone)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"detail": "User with this phone number does not exist."})
		return
	}
	if err != nil {
		response.AbortWithError(c, apperrors.Storage(err, "load user"))
		return
	}
	if !user.VerifyOTP(code, time.Now()) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"detail": "Invalid OTP code."})
		return
	}
	if err := models.MarkPhoneVerified(ctx, h.db, user); err != nil {
		response.AbortWithError(c, apperrors.Storage(err, "verify phone"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Phone number verified successfully."})
}
