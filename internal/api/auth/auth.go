package auth

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// Handler 提供管理员登录接口。
//
// 目录聚合端只有一个管理员账号，用户名和密码哈希来自配置，
// 不落数据库。签发的 JWT 供管理端触发抓取、保存标注使用。
type Handler struct {
	jwtSecret     []byte
	adminUser     string
	adminPassHash string
	logger        *slog.Logger
}

// NewHandler 创建 Auth Handler。
func NewHandler(jwtSecret, adminUser, adminPassHash string, logger *slog.Logger) *Handler {
	return &Handler{
		jwtSecret:     []byte(jwtSecret),
		adminUser:     strings.TrimSpace(adminUser),
		adminPassHash: strings.TrimSpace(adminPassHash),
		logger:        logger,
	}
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

type customClaims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

// Login 校验管理员凭据并返回 JWT。
func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if h.adminPassHash == "" {
		c.JSON(http.StatusForbidden, gin.H{"error": "admin login disabled"})
		return
	}

	user := strings.TrimSpace(req.Username)
	if subtle.ConstantTimeCompare([]byte(user), []byte(h.adminUser)) != 1 {
		// 用户名不匹配时也走一次哈希比较，避免时间侧信道
		_ = bcrypt.CompareHashAndPassword([]byte(h.adminPassHash), []byte(req.Password))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(h.adminPassHash), []byte(req.Password)); err != nil {
		if h.logger != nil {
			h.logger.Warn("admin login rejected", slog.String("user", user))
		}
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	token, err := h.issueToken(user)
	if err != nil {
		if h.logger != nil {
			h.logger.Error("sign token failed", slog.String("user", user), slog.String("error", err.Error()))
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "sign token failed"})
		return
	}

	if h.logger != nil {
		h.logger.Info("admin logged in", slog.String("user", user))
	}
	c.JSON(http.StatusOK, tokenResponse{Token: token})
}

// Logout 处理注销请求（无状态，直接返回成功）。
func (h *Handler) Logout(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

func (h *Handler) issueToken(user string) (string, error) {
	claims := customClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		Role: "admin",
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(h.jwtSecret)
}
