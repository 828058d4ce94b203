package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/roomwire/internal/auth"
	"github.com/vovakirdan/roomwire/internal/config"
	"github.com/vovakirdan/roomwire/internal/errs"
)

// APIHandlers provides HTTP handlers for account endpoints.
type APIHandlers struct {
	authService *auth.Service
	cfg         *config.Config
	log         *zerolog.Logger
}

// NewAPIHandlers creates a new API handlers instance.
func NewAPIHandlers(authService *auth.Service, cfg *config.Config, logger *zerolog.Logger) *APIHandlers {
	return &APIHandlers{
		authService: authService,
		cfg:         cfg,
		log:         logger,
	}
}

// CredentialsRequest is the register and login request body.
type CredentialsRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// UserResponse represents a user in API responses.
type UserResponse struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

// AuthResponse represents the authentication response body.
type AuthResponse struct {
	Token string       `json:"token"`
	User  UserResponse `json:"user"`
}

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// Register handles user registration.
// POST /api/register
func (h *APIHandlers) Register(c *gin.Context) {
	var req CredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid register request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body", Code: errs.CodeBadRequest})
		return
	}

	session, err := h.authService.Register(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		writeError(c, h.log, err, "failed to register user")
		return
	}

	h.setSessionCookie(c, session.Token)
	h.log.Info().Str("username", session.Principal.Username).Msg("user registered successfully")
	c.JSON(http.StatusCreated, authResponse(session))
}

// Login handles user login.
// POST /api/login
func (h *APIHandlers) Login(c *gin.Context) {
	var req CredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid login request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body", Code: errs.CodeBadRequest})
		return
	}

	session, err := h.authService.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		writeError(c, h.log, err, "failed to login user")
		return
	}

	h.setSessionCookie(c, session.Token)
	h.log.Info().Str("username", session.Principal.Username).Msg("user logged in successfully")
	c.JSON(http.StatusOK, authResponse(session))
}

// Logout clears the session cookie.
// POST /api/logout
func (h *APIHandlers) Logout(c *gin.Context) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     h.cfg.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Secure:   h.cfg.CookieSecure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	c.Status(http.StatusNoContent)
}

func (h *APIHandlers) setSessionCookie(c *gin.Context, token string) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     h.cfg.CookieName,
		Value:    auth.EncodeCookieValue(token, []byte(h.cfg.CookieSecret)),
		Path:     "/",
		Expires:  time.Now().Add(h.cfg.JWTTTL),
		Secure:   h.cfg.CookieSecure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func authResponse(s auth.Session) AuthResponse {
	return AuthResponse{
		Token: s.Token,
		User: UserResponse{
			ID:       s.Principal.ID,
			Username: s.Principal.Username,
			Role:     string(s.Principal.Role),
		},
	}
}

// writeError replies with the status and code carried by err. Unclassified
// errors are logged and hidden behind a 500.
func writeError(c *gin.Context, logger *zerolog.Logger, err error, msg string) {
	e, ok := errs.As(err)
	if !ok || e.Kind == errs.KindInternal {
		logger.Error().Err(err).Str("path", c.Request.URL.Path).Msg(msg)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error", Code: errs.CodeInternal})
		return
	}
	if e.Code == errs.CodeStoreFailure {
		logger.Error().Err(err).Str("path", c.Request.URL.Path).Msg(msg)
	}
	c.JSON(errs.HTTPStatus(e.Kind), ErrorResponse{Error: e.Message, Code: e.Code})
}
