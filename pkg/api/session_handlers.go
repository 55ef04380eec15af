package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/edpsych-connect/connect/pkg/httputil"
	"github.com/edpsych-connect/connect/pkg/observability"
	"github.com/edpsych-connect/connect/pkg/sessions"
	"github.com/edpsych-connect/connect/pkg/validation"
)

// SessionSettings shapes the cookies issued by SessionHandlers
type SessionSettings struct {
	TTL      time.Duration
	Secure   bool
	DevLogin bool
}

// LoginRequest is the body of POST /api/auth/session
type LoginRequest struct {
	UserID string `json:"userId" validate:"required,max=128"`
}

// SessionResponse describes a session. SessionID is the cookie value, so
// command line callers can reuse it.
type SessionResponse struct {
	SessionID string    `json:"sessionId"`
	UserID    string    `json:"userId"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// SessionHandlers opens and closes cookie sessions
type SessionHandlers struct {
	store    sessions.Store
	settings SessionSettings
}

// NewSessionHandlers creates a new SessionHandlers
func NewSessionHandlers(store sessions.Store, settings SessionSettings) *SessionHandlers {
	if settings.TTL <= 0 {
		settings.TTL = sessions.DefaultTTL
	}
	return &SessionHandlers{store: store, settings: settings}
}

// RegisterRoutes registers the session routes. Login is only served in dev
// login mode.
func (h *SessionHandlers) RegisterRoutes(router *mux.Router) {
	if h.settings.DevLogin {
		router.HandleFunc("/auth/session", h.Login).Methods("POST")
	}
	router.HandleFunc("/auth/session", h.Current).Methods("GET")
	router.HandleFunc("/auth/session", h.Logout).Methods("DELETE")
}

// Login signs in userId without credentials and sets the session cookie
func (h *SessionHandlers) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if err := validation.Struct(req); err != nil {
		writeError(w, r, err)
		return
	}

	session, err := h.store.Create(r.Context(), req.UserID, h.settings.TTL)
	if err != nil {
		writeError(w, r, err)
		return
	}

	http.SetCookie(w, h.cookie(session.ID, session.ExpiresAt))
	observability.FromContext(r.Context()).WithField("user_id", session.UserID).Info("Session opened")
	httputil.WriteCreated(w, SessionResponse{
		SessionID: session.ID,
		UserID:    session.UserID,
		ExpiresAt: session.ExpiresAt,
	})
}

// Current describes the caller's session
func (h *SessionHandlers) Current(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(sessions.CookieName)
	if err != nil || cookie.Value == "" {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	session, err := h.store.Get(r.Context(), cookie.Value)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, SessionResponse{
		SessionID: session.ID,
		UserID:    session.UserID,
		ExpiresAt: session.ExpiresAt,
	})
}

// Logout deletes the caller's session, if any, and clears the cookie
func (h *SessionHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(sessions.CookieName); err == nil && cookie.Value != "" {
		if err := h.store.Delete(r.Context(), cookie.Value); err != nil {
			writeError(w, r, err)
			return
		}
	}

	expired := h.cookie("", time.Unix(0, 0))
	expired.MaxAge = -1
	http.SetCookie(w, expired)
	httputil.WriteNoContent(w)
}

func (h *SessionHandlers) cookie(value string, expires time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     sessions.CookieName,
		Value:    value,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   h.settings.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}
