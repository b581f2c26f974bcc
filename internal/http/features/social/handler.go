package social

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/tendant/simple-social-auth/internal/cache"
	"github.com/tendant/simple-social-auth/internal/http/features/common"
	"github.com/tendant/simple-social-auth/internal/http/middleware"
	"github.com/tendant/simple-social-auth/internal/httputil"
	"github.com/tendant/simple-social-auth/pkg/domain"
	"github.com/tendant/simple-social-auth/pkg/provider"
)

// Linker attaches a verified provider identity to an account.
type Linker interface {
	Link(ctx context.Context, p domain.Provider, cred domain.Credential, current *domain.User) (*domain.User, error)
}

// Flows looks up the browser login handshake of a provider.
type Flows interface {
	Flow(p domain.Provider) (provider.Flow, error)
}

// Handler handles provider login endpoints.
type Handler struct {
	logger          *slog.Logger
	linker          Linker
	flows           Flows
	states          cache.Client
	sessions        *httputil.Sessions
	stateTTL        time.Duration
	redirectHosts   []string
	defaultImageURL string
}

// NewHandler creates a new social login handler.
func NewHandler(
	logger *slog.Logger,
	linker Linker,
	flows Flows,
	states cache.Client,
	sessions *httputil.Sessions,
	stateTTL time.Duration,
	redirectHosts []string,
	defaultImageURL string,
) *Handler {
	return &Handler{
		logger:          logger,
		linker:          linker,
		flows:           flows,
		states:          states,
		sessions:        sessions,
		stateTTL:        stateTTL,
		redirectHosts:   redirectHosts,
		defaultImageURL: defaultImageURL,
	}
}

// pendingLogin is kept in the cache between redirect and callback. Only the
// session user that started the login may finish it.
type pendingLogin struct {
	Flow   provider.FlowState `json:"flow"`
	UserID uuid.UUID          `json:"user_id"`
	Next   string             `json:"next,omitempty"`
}

// TokenRequest links with a credential the client obtained itself.
type TokenRequest struct {
	AccessToken       string `json:"access_token"`
	AccessTokenSecret string `json:"access_token_secret,omitempty"`
}

// AssertionRequest links with a BrowserID assertion.
type AssertionRequest struct {
	Assertion string `json:"assertion"`
	Audience  string `json:"audience,omitempty"`
}

// Login redirects the browser to the provider.
// GET /v1/auth/{provider}/login?next=/path
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	p, flow, ok := h.flow(w, r)
	if !ok {
		return
	}

	authURL, state, err := flow.Begin(r.Context())
	if err != nil {
		common.WriteError(w, h.logger, "failed to start provider login", err, "provider", p)
		return
	}

	current, ok := middleware.CurrentUser(r.Context())
	if !ok {
		httputil.Error(w, http.StatusInternalServerError, "failed to start login")
		return
	}
	pending, err := json.Marshal(pendingLogin{
		Flow:   state,
		UserID: current.ID,
		Next:   h.safeRedirect(r.URL.Query().Get("next")),
	})
	if err != nil {
		httputil.Error(w, http.StatusInternalServerError, "failed to start login")
		return
	}
	if err := h.states.Set(r.Context(), state.Key(), string(pending), h.stateTTL); err != nil {
		h.logger.Error("failed to store login state", "error", err, "provider", p)
		httputil.Error(w, http.StatusInternalServerError, "failed to start login")
		return
	}

	http.Redirect(w, r, authURL, http.StatusFound)
}

// Callback finishes the handshake, links the identity and updates the session.
// GET /v1/auth/{provider}/callback
func (h *Handler) Callback(w http.ResponseWriter, r *http.Request) {
	p, flow, ok := h.flow(w, r)
	if !ok {
		return
	}

	query := r.URL.Query()
	key := flow.CallbackKey(query)
	raw, err := h.states.Get(r.Context(), key)
	if errors.Is(err, cache.ErrNotFound) {
		common.WriteError(w, h.logger, "unknown login state", provider.ErrStateMismatch, "provider", p)
		return
	}
	if err != nil {
		h.logger.Error("failed to load login state", "error", err, "provider", p)
		httputil.Error(w, http.StatusInternalServerError, "failed to finish login")
		return
	}
	var pending pendingLogin
	if err := json.Unmarshal([]byte(raw), &pending); err != nil || pending.Flow.Provider != p {
		common.WriteError(w, h.logger, "corrupt login state", provider.ErrStateMismatch, "provider", p)
		return
	}
	// A callback opened in another browser must not consume the state.
	current, ok := middleware.CurrentUser(r.Context())
	if !ok || current.ID != pending.UserID {
		common.WriteError(w, h.logger, "login state belongs to another session", provider.ErrStateMismatch, "provider", p)
		return
	}
	if _, err := h.states.Take(r.Context(), key); errors.Is(err, cache.ErrNotFound) {
		common.WriteError(w, h.logger, "login state already used", provider.ErrStateMismatch, "provider", p)
		return
	} else if err != nil {
		h.logger.Error("failed to consume login state", "error", err, "provider", p)
		httputil.Error(w, http.StatusInternalServerError, "failed to finish login")
		return
	}

	cred, err := flow.Complete(r.Context(), pending.Flow, query)
	if err != nil {
		common.WriteError(w, h.logger, "provider handshake failed", err, "provider", p)
		return
	}

	user, ok := h.link(w, r, p, cred)
	if !ok {
		return
	}
	if pending.Next != "" {
		http.Redirect(w, r, pending.Next, http.StatusSeeOther)
		return
	}
	httputil.JSON(w, http.StatusOK, common.NewUserResponse(user, h.defaultImageURL))
}

// Token links with an access token (and secret, for twitter) obtained by a
// native client.
// POST /v1/auth/{provider}/token
func (h *Handler) Token(w http.ResponseWriter, r *http.Request) {
	p, err := domain.ParseProvider(chi.URLParam(r, "provider"))
	if err != nil || p == domain.ProviderBrowserID {
		httputil.Error(w, http.StatusNotFound, "unknown provider")
		return
	}

	var req TokenRequest
	if !httputil.ReadJSON(w, r, &req) {
		return
	}
	if req.AccessToken == "" {
		httputil.Error(w, http.StatusBadRequest, "access_token is required")
		return
	}

	user, ok := h.link(w, r, p, domain.Credential{Token: req.AccessToken, Secret: req.AccessTokenSecret})
	if !ok {
		return
	}
	httputil.JSON(w, http.StatusOK, common.NewUserResponse(user, h.defaultImageURL))
}

// BrowserID links with a verified email assertion.
// POST /v1/auth/browserid/verify
func (h *Handler) BrowserID(w http.ResponseWriter, r *http.Request) {
	var req AssertionRequest
	if !httputil.ReadJSON(w, r, &req) {
		return
	}
	if req.Assertion == "" {
		httputil.Error(w, http.StatusBadRequest, "assertion is required")
		return
	}

	user, ok := h.link(w, r, domain.ProviderBrowserID, domain.Credential{Assertion: req.Assertion, Audience: req.Audience})
	if !ok {
		return
	}
	httputil.JSON(w, http.StatusOK, common.NewUserResponse(user, h.defaultImageURL))
}

func (h *Handler) flow(w http.ResponseWriter, r *http.Request) (domain.Provider, provider.Flow, bool) {
	p, err := domain.ParseProvider(chi.URLParam(r, "provider"))
	if err != nil {
		httputil.Error(w, http.StatusNotFound, "unknown provider")
		return "", nil, false
	}
	flow, err := h.flows.Flow(p)
	if err != nil {
		httputil.Error(w, http.StatusNotFound, "provider login is not enabled")
		return "", nil, false
	}
	return p, flow, true
}

// link runs the linker for the session user and points the session at the
// result, which is a different account when the identity was already linked.
func (h *Handler) link(w http.ResponseWriter, r *http.Request, p domain.Provider, cred domain.Credential) (*domain.User, bool) {
	current, _ := middleware.CurrentUser(r.Context())
	user, err := h.linker.Link(r.Context(), p, cred, current)
	if err != nil {
		common.WriteError(w, h.logger, "provider login failed", err, "provider", p)
		return nil, false
	}
	if err := h.sessions.SetUserID(w, r, user.ID); err != nil {
		h.logger.Error("failed to save session", "error", err, "user_id", user.ID)
		httputil.Error(w, http.StatusInternalServerError, "failed to save session")
		return nil, false
	}
	h.logger.Info("provider login", "provider", p, "user_id", user.ID)
	return user, true
}

// safeRedirect keeps next only when it is a local path or points at an
// allowed host.
func (h *Handler) safeRedirect(next string) string {
	if next == "" {
		return ""
	}
	u, err := url.Parse(next)
	if err != nil {
		return ""
	}
	if u.Scheme == "" && u.Host == "" {
		if strings.HasPrefix(next, "/") && !strings.HasPrefix(next, "//") && !strings.HasPrefix(next, "/\\") {
			return next
		}
		return ""
	}
	if (u.Scheme == "https" || u.Scheme == "http") && slices.Contains(h.redirectHosts, u.Hostname()) {
		return next
	}
	return ""
}
