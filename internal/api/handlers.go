package api

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/ignite/newsletter/internal/domain"
	"github.com/ignite/newsletter/internal/ledger"
	"github.com/ignite/newsletter/internal/pkg/httputil"
	"github.com/ignite/newsletter/internal/pkg/logger"
	"github.com/ignite/newsletter/internal/service/dispatch"
	"github.com/ignite/newsletter/internal/service/subscription"
)

// Subscriptions is the subscriber lifecycle as the handlers use it.
type Subscriptions interface {
	Subscribe(ctx context.Context, email, baseURL string) subscription.Result
	ConfirmSubscription(ctx context.Context, token string) subscription.Result
	Unsubscribe(ctx context.Context, email, token string) subscription.Result
	Stats(ctx context.Context) (subscription.Stats, error)
}

// Dispatcher sends issues and lifecycle emails.
type Dispatcher interface {
	SendBySlug(ctx context.Context, slug, baseURL string, opts ...dispatch.SendOption) dispatch.Result
	SendByNumber(ctx context.Context, number int, baseURL string, opts ...dispatch.SendOption) dispatch.Result
	SendLatest(ctx context.Context, baseURL string, opts ...dispatch.SendOption) dispatch.Result
	SendWelcomeEmail(ctx context.Context, email string) bool
	SendConfirmationEmail(ctx context.Context, email string) bool
}

// IssueLister feeds the RSS endpoint and the stats report.
type IssueLister interface {
	FindPublished(ctx context.Context, now time.Time) ([]*domain.Issue, error)
	FindByTag(ctx context.Context, tag string) ([]*domain.Issue, error)
	FindByDateRange(ctx context.Context, from, to time.Time) ([]*domain.Issue, error)
}

// DispatchHistory reports past dispatches by slug.
type DispatchHistory interface {
	Get(ctx context.Context, slug string) (ledger.Entry, bool, error)
}

// Site is the public site the handlers link and redirect to.
type Site struct {
	Name    string
	BaseURL string
}

// Handlers serves the newsletter HTTP API.
type Handlers struct {
	subs     Subscriptions
	dispatch Dispatcher
	issues   IssueLister
	history  DispatchHistory
	site     Site
	now      func() time.Time
}

// NewHandlers wires the handlers. history may be nil, in which case stats
// leave out the last dispatch.
func NewHandlers(subs Subscriptions, d Dispatcher, issues IssueLister, history DispatchHistory, site Site) *Handlers {
	site.BaseURL = strings.TrimRight(site.BaseURL, "/")
	return &Handlers{subs: subs, dispatch: d, issues: issues, history: history, site: site, now: time.Now}
}

// baseURL prefers the configured site URL and falls back to the request's
// own origin.
func (h *Handlers) baseURL(r *http.Request) string {
	if h.site.BaseURL != "" {
		return h.site.BaseURL
	}
	scheme := "http"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}

// Subscribe handles the signup form.
//
//	POST /api/subscribe  (form field "email")
func (h *Handlers) Subscribe(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		httputil.BadRequest(w, subscription.MsgInvalidEmail)
		return
	}
	email := r.PostForm.Get("email")
	if strings.TrimSpace(email) == "" {
		httputil.BadRequest(w, subscription.MsgInvalidEmail)
		return
	}

	res := h.subs.Subscribe(r.Context(), email, h.baseURL(r))
	httputil.JSON(w, httputil.Status(res.Err), res)
}

// Confirm completes double opt-in and sends the welcome email.
//
//	GET /api/confirm/{token}
func (h *Handlers) Confirm(w http.ResponseWriter, r *http.Request) {
	res := h.subs.ConfirmSubscription(r.Context(), chi.URLParam(r, "token"))

	if res.Success && res.Message == subscription.MsgConfirmed && res.Subscriber != nil {
		if !h.dispatch.SendWelcomeEmail(r.Context(), res.Subscriber.Email()) {
			logger.Warn("welcome email not sent", "subscriber_id", res.Subscriber.ID())
		}
	}

	if httputil.WantsJSON(r) {
		httputil.JSON(w, httputil.Status(res.Err), res)
		return
	}
	params := url.Values{}
	if res.Success {
		params.Set("confirmed", "true")
	} else {
		params.Set("error", res.Message)
	}
	httputil.RedirectWith(w, r, h.baseURL(r)+"/", params)
}

// Unsubscribe handles the one-click link in every email.
//
//	GET /api/unsubscribe?email=...&token=...
func (h *Handlers) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	res := h.subs.Unsubscribe(r.Context(), q.Get("email"), q.Get("token"))

	if httputil.WantsJSON(r) {
		httputil.JSON(w, httputil.Status(res.Err), res)
		return
	}
	params := url.Values{}
	if res.Success {
		params.Set("success", "true")
	} else {
		params.Set("error", res.Message)
	}
	httputil.RedirectWith(w, r, h.baseURL(r)+"/unsubscribe", params)
}

type sendRequest struct {
	Slug   string `json:"slug"`
	Number int    `json:"number"`
	Latest bool   `json:"latest"`
	Force  bool   `json:"force"`
}

// SendNewsletter dispatches an issue to every confirmed subscriber. The
// dispatch runs inside the request.
//
//	POST /api/send-newsletter  {"slug": "..."}, {"number": 12} or {"latest": true}
func (h *Handlers) SendNewsletter(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	req.Slug = strings.TrimSpace(req.Slug)
	if req.Slug == "" && req.Number <= 0 && !req.Latest {
		httputil.BadRequest(w, "Slug é obrigatório")
		return
	}

	var opts []dispatch.SendOption
	if req.Force {
		opts = append(opts, dispatch.Force())
	}

	var res dispatch.Result
	switch {
	case req.Latest:
		res = h.dispatch.SendLatest(r.Context(), h.baseURL(r), opts...)
	case req.Slug != "":
		res = h.dispatch.SendBySlug(r.Context(), req.Slug, h.baseURL(r), opts...)
	default:
		res = h.dispatch.SendByNumber(r.Context(), req.Number, h.baseURL(r), opts...)
	}
	httputil.JSON(w, httputil.Status(res.Err), res)
}

const (
	msgConfirmationResent  = "Email de confirmação reenviado"
	msgConfirmationNotSent = "Nenhuma inscrição pendente para este email"
)

type resendRequest struct {
	Email string `json:"email"`
}

// ResendConfirmation mails the confirmation link again to a pending
// subscriber, e.g. after the first send failed.
//
//	POST /api/resend-confirmation  {"email": "..."}
func (h *Handlers) ResendConfirmation(w http.ResponseWriter, r *http.Request) {
	var req resendRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Email) == "" {
		httputil.BadRequest(w, subscription.MsgInvalidEmail)
		return
	}
	if !h.dispatch.SendConfirmationEmail(r.Context(), req.Email) {
		httputil.JSON(w, http.StatusNotFound, map[string]interface{}{
			"success": false,
			"message": msgConfirmationNotSent,
		})
		return
	}
	httputil.OK(w, map[string]interface{}{"success": true, "message": msgConfirmationResent})
}

type statsResponse struct {
	subscription.Stats
	LastDispatch *ledger.Entry `json:"lastDispatch,omitempty"`
}

// Stats reports subscriber counts by status and, when a dispatch history is
// wired, how the latest published issue went out.
//
//	GET /api/stats
func (h *Handlers) Stats(w http.ResponseWriter, r *http.Request) {
	st, err := h.subs.Stats(r.Context())
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	resp := statsResponse{Stats: st}
	if h.history != nil {
		resp.LastDispatch, err = h.lastDispatch(r.Context())
		if err != nil {
			httputil.InternalError(w, err)
			return
		}
	}
	httputil.OK(w, resp)
}

func (h *Handlers) lastDispatch(ctx context.Context) (*ledger.Entry, error) {
	published, err := h.issues.FindPublished(ctx, h.now())
	if err != nil || len(published) == 0 {
		return nil, err
	}
	e, ok, err := h.history.Get(ctx, published[0].Slug())
	if err != nil || !ok {
		return nil, err
	}
	return &e, nil
}
