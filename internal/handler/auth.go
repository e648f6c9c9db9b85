package handler

import (
	"context"      // provides context with cancellation for DB calls
	"database/sql" // SQL database interactions
	"net/http"     // HTTP status codes and primitives
	"strings"      // string manipulation utilities
	"time"         // timeouts for DB calls

	"github.com/labstack/echo/v4" // Echo framework for HTTP routing

	"github.com/iliyamo/ticket-waitroom/internal/config"     // app configuration
	"github.com/iliyamo/ticket-waitroom/internal/repository" // DB repositories
	"github.com/iliyamo/ticket-waitroom/internal/session"    // session registry for binding identities
	"github.com/iliyamo/ticket-waitroom/internal/utils"      // helper functions (hashing, token issuing)
)

// AuthHandler bundles dependencies for auth endpoints.  Accounts are
// optional in the waiting-room flow: a session can queue and hold seats
// anonymously, but confirming a booking under an account lets the
// customer find it again later.  Logging in while presenting an
// X-Session-ID header binds the session to the account.
type AuthHandler struct {
	Cfg       config.Config
	Customers *repository.CustomerRepo
	Sessions  *session.Registry
}

func NewAuthHandler(cfg config.Config, c *repository.CustomerRepo, s *session.Registry) *AuthHandler {
	return &AuthHandler{Cfg: cfg, Customers: c, Sessions: s}
}

// ----- DTOs -----

type registerReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenPart struct {
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
}
type customerPart struct {
	ID    uint64 `json:"id"`
	Email string `json:"email"`
}
type authResp struct {
	Customer customerPart `json:"customer"`
	Access   tokenPart    `json:"access"`
}

// bindSession attaches the customer to the caller's session when an
// X-Session-ID header accompanies the auth request.  Binding is best
// effort; a stale session id does not fail the login.
func (h *AuthHandler) bindSession(c echo.Context, ctx context.Context, customerID uint64) {
	sid := c.Request().Header.Get("X-Session-ID")
	if !session.ValidID(sid) {
		return
	}
	if err := h.Sessions.BindCustomer(ctx, sid, customerID); err != nil {
		c.Logger().Warnf("bind session %s failed: %v", sid, err)
	}
}

// Register: create customer and return an access token immediately.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email/password required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	id, err := h.Customers.Create(ctx, req.Email, req.Password, h.Cfg.BcryptCost)
	if err != nil {
		if err == repository.ErrEmailExists {
			return c.JSON(http.StatusConflict, echo.Map{"error": "email already exists"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create customer failed"})
	}

	access, err := utils.NewAccessToken(h.Cfg.JWTSecret, id, h.Cfg.AccessTTLMin)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "issue access failed"})
	}
	h.bindSession(c, ctx, id)

	return c.JSON(http.StatusCreated, authResp{
		Customer: customerPart{ID: id, Email: req.Email},
		Access:   tokenPart{Token: access.Token, Expires: access.Exp},
	})
}

// Login: verify credentials and return a fresh access token.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email/password required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	cust, err := h.Customers.GetByEmail(ctx, req.Email)
	if err != nil {
		if err == sql.ErrNoRows {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	if !utils.VerifyPassword(cust.PasswordHash, req.Password) {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	}

	access, err := utils.NewAccessToken(h.Cfg.JWTSecret, cust.ID, h.Cfg.AccessTTLMin)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "issue access failed"})
	}
	h.bindSession(c, ctx, cust.ID)

	return c.JSON(http.StatusOK, authResp{
		Customer: customerPart{ID: cust.ID, Email: cust.Email},
		Access:   tokenPart{Token: access.Token, Expires: access.Exp},
	})
}

// Me: simple protected endpoint.
func (h *AuthHandler) Me(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{
		"customer_id": c.Get("customer_id"),
	})
}
