// Package httpapi serves the browser-facing OAuth login endpoints.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jtaw5649/barforge-registry/internal/auth/provider"
	"github.com/jtaw5649/barforge-registry/internal/limiter"
	"github.com/jtaw5649/barforge-registry/internal/service"
)

// Pinger reports storage health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options configures Handler.
type Options struct {
	StateKey []byte
	// Secure marks flow cookies Secure; disable only for plain-HTTP development.
	Secure bool
	// Limiter throttles callbacks per client address; nil disables it.
	Limiter limiter.Limiter
	// DB is pinged by /healthz when set.
	DB Pinger
}

type Handler struct {
	providers *provider.Registry
	identity  service.IdentityService
	opts      Options
	log       *zap.Logger
	now       func() time.Time
}

func NewHandler(providers *provider.Registry, identity service.IdentityService, opts Options, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{providers: providers, identity: identity, opts: opts, log: log, now: time.Now}
}

// Router builds the gin engine with recovery and request logging.
func (h *Handler) Router() *gin.Engine {
	r := gin.New()
	r.Use(RequestLogger(h.log), gin.Recovery())
	h.RegisterRoutes(r)
	return r
}

func (h *Handler) RegisterRoutes(r gin.IRoutes) {
	r.GET("/oauth/login/:provider", h.login)
	r.GET("/oauth/callback/:provider", h.callback)
	r.POST("/auth/logout", h.logout)
	r.GET("/healthz", h.healthz)
}

type userJSON struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

type sessionJSON struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      userJSON  `json:"user"`
}

func (h *Handler) setFlowCookie(c *gin.Context, name, value string, maxAge int) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/oauth/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.opts.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handler) login(c *gin.Context) {
	name := c.Param("provider")
	p, err := h.providers.Get(name)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown oauth provider"})
		return
	}
	state, err := signState(h.opts.StateKey, name, h.now())
	if err != nil {
		h.log.Error("sign oauth state", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
		return
	}
	verifier, challenge, err := newPKCE()
	if err != nil {
		h.log.Error("pkce", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
		return
	}
	h.setFlowCookie(c, stateCookie, state, int(flowTTL.Seconds()))
	h.setFlowCookie(c, pkceCookie, verifier, int(flowTTL.Seconds()))
	c.Redirect(http.StatusFound, p.AuthCodeURL(state, challenge))
}

func (h *Handler) callback(c *gin.Context) {
	ctx := c.Request.Context()
	name := c.Param("provider")
	p, err := h.providers.Get(name)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown oauth provider"})
		return
	}

	if h.opts.Limiter != nil {
		ok, retry, err := h.opts.Limiter.Allow(ctx, limiter.LoginKey(c.ClientIP()))
		if err != nil {
			h.log.Error("login throttle", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
			return
		}
		if !ok {
			c.Header("Retry-After", retryAfter(retry))
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many login attempts"})
			return
		}
	}

	if e := c.Query("error"); e != "" {
		h.log.Warn("oauth provider returned error", zap.String("provider", name), zap.String("error", e))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authorization denied"})
		return
	}

	state := c.Query("state")
	cookieState, _ := c.Cookie(stateCookie)
	if state == "" || state != cookieState {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid state"})
		return
	}
	if err := verifyState(h.opts.StateKey, state, name, h.now()); err != nil {
		h.log.Warn("oauth state rejected", zap.String("provider", name), zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid state"})
		return
	}
	verifier, _ := c.Cookie(pkceCookie)
	code := c.Query("code")
	if verifier == "" || code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing code or verifier"})
		return
	}
	h.setFlowCookie(c, stateCookie, "", -1)
	h.setFlowCookie(c, pkceCookie, "", -1)

	id, err := p.ExchangeCode(ctx, code, verifier)
	if err != nil {
		h.log.Warn("oauth exchange failed", zap.String("provider", name), zap.Error(err))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication failed"})
		return
	}
	u, err := h.identity.UpsertFromExternalLogin(ctx, *id)
	if err != nil {
		h.log.Error("resolve user", zap.String("provider", name), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to resolve user"})
		return
	}
	token, exp, err := h.identity.CreateSession(ctx, u)
	if err != nil {
		h.log.Error("create session", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create session"})
		return
	}
	h.log.Info("login", zap.String("user_id", u.ID.String()), zap.String("provider", name))
	c.JSON(http.StatusOK, sessionJSON{
		Token:     token,
		ExpiresAt: exp,
		User:      userJSON{ID: u.ID.String(), Username: u.Username, Role: string(u.Role)},
	})
}

func (h *Handler) logout(c *gin.Context) {
	token := BearerToken(c.GetHeader("Authorization"))
	if token != "" {
		if err := h.identity.Revoke(c.Request.Context(), token); err != nil {
			h.log.Error("revoke session", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
			return
		}
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) healthz(c *gin.Context) {
	if h.opts.DB != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := h.opts.DB.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// BearerToken extracts the token from an "Authorization: Bearer x" value.
func BearerToken(header string) string {
	scheme, tok, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(tok)
}

func retryAfter(d time.Duration) string {
	s := int(d.Round(time.Second) / time.Second)
	if s < 1 {
		s = 1
	}
	return strconv.Itoa(s)
}

// Validate checks that the handler can run a login flow.
func (h *Handler) Validate() error {
	if len(h.providers.Names()) == 0 {
		return errors.New("no oauth providers configured")
	}
	if len(h.opts.StateKey) == 0 {
		return errors.New("oauth state key is empty")
	}
	return nil
}
