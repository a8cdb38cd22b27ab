package fakebackend

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// Auth endpoint paths served by EnableAuth
const (
	LoginPath   = "/auth/login/"
	RefreshPath = "/auth/token/refresh/"
	MePath      = "/auth/me/"
)

var signingKey = []byte("fakebackend-secret")

// Auth issues JWT token pairs for a single account and guards every
// collection route behind the current access token.
type Auth struct {
	mu       sync.Mutex
	email    string
	password string
	user     Record
	ttl      time.Duration
	access   string
	refresh  string
	issued   int
}

// EnableAuth serves login, refresh and me for one account. After it is called
// every collection request must carry the current access token.
func (b *Backend) EnableAuth(email, password string, user Record) *Auth {
	a := &Auth{email: email, password: password, user: clone(user), ttl: 15 * time.Minute}

	b.Handle(http.MethodPost, LoginPath, a.login)
	b.Handle(http.MethodPost, RefreshPath, a.refreshToken)
	b.Handle(http.MethodGet, MePath, func(c *gin.Context) {
		if !a.Authorized(c.GetHeader("Authorization")) {
			unauthorized(c)
			return
		}
		c.JSON(http.StatusOK, a.user)
	})
	b.mu.Lock()
	b.guard = a
	b.mu.Unlock()
	return a
}

// Access returns the access token currently accepted
func (a *Auth) Access() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.access
}

// Expire invalidates the current access token, as if it had timed out
func (a *Auth) Expire() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.access = ""
}

// Issued returns how many access tokens were handed out
func (a *Auth) Issued() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.issued
}

// Authorized reports whether header carries the current access token
func (a *Auth) Authorized(header string) bool {
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.access != "" && token == a.access
}

func (a *Auth) login(c *gin.Context) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "JSON parse error."})
		return
	}
	if body.Email != a.email || body.Password != a.password {
		c.JSON(http.StatusUnauthorized, gin.H{"detail": "No active account found with the given credentials"})
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	access, err := a.signLocked("access")
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
		return
	}
	a.refresh = fmt.Sprintf("refresh-%d", a.issued)
	c.JSON(http.StatusOK, gin.H{"access": access, "refresh": a.refresh, "user": a.user})
}

func (a *Auth) refreshToken(c *gin.Context) {
	var body struct {
		Refresh string `json:"refresh"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "JSON parse error."})
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.refresh == "" || body.Refresh != a.refresh {
		c.JSON(http.StatusUnauthorized, gin.H{"detail": "Token is invalid or expired", "code": "token_not_valid"})
		return
	}
	access, err := a.signLocked("access")
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access": access})
}

func (a *Auth) signLocked(tokenType string) (string, error) {
	a.issued++
	id, _ := idOf(a.user)
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id":    id,
		"token_type": tokenType,
		"jti":        fmt.Sprintf("%d", a.issued),
		"iat":        now.Unix(),
		"exp":        now.Add(a.ttl).Unix(),
	})
	signed, err := token.SignedString(signingKey)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	a.access = signed
	return signed, nil
}

func unauthorized(c *gin.Context) {
	c.JSON(http.StatusUnauthorized, gin.H{
		"detail": "Given token not valid for any token type",
		"code":   "token_not_valid",
	})
}
