package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ignite/newsletter/internal/domain"
	"github.com/ignite/newsletter/internal/ledger"
	"github.com/ignite/newsletter/internal/repository/memory"
	"github.com/ignite/newsletter/internal/service/dispatch"
	"github.com/ignite/newsletter/internal/service/subscription"
	"github.com/mmcdole/gofeed"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	siteURL    = "https://purosuco.example"
	adminToken = "s3cret"
)

type captureMailer struct {
	mu   sync.Mutex
	urls []string
}

func (m *captureMailer) SendConfirmation(_ context.Context, _, confirmationURL string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.urls = append(m.urls, confirmationURL)
	return nil
}

func (m *captureMailer) lastToken(t *testing.T) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.urls)
	return path.Base(m.urls[len(m.urls)-1])
}

type fakeDispatcher struct {
	welcomed  []string
	resent    []string
	noPending bool
	slug      string
	number    int
	latest    bool
	forced    bool
	result    dispatch.Result
}

func (d *fakeDispatcher) SendByNumber(_ context.Context, number int, _ string, opts ...dispatch.SendOption) dispatch.Result {
	d.number = number
	d.forced = len(opts) > 0
	return d.result
}

func (d *fakeDispatcher) SendConfirmationEmail(_ context.Context, email string) bool {
	if d.noPending {
		return false
	}
	d.resent = append(d.resent, email)
	return true
}

func (d *fakeDispatcher) SendBySlug(_ context.Context, slug, _ string, opts ...dispatch.SendOption) dispatch.Result {
	d.slug = slug
	d.forced = len(opts) > 0
	return d.result
}

func (d *fakeDispatcher) SendLatest(_ context.Context, _ string, opts ...dispatch.SendOption) dispatch.Result {
	d.latest = true
	d.forced = len(opts) > 0
	return d.result
}

func (d *fakeDispatcher) SendWelcomeEmail(_ context.Context, email string) bool {
	d.welcomed = append(d.welcomed, email)
	return true
}

type fakeIssues struct {
	issues []*domain.Issue
	err    error
}

func (f fakeIssues) FindPublished(context.Context, time.Time) ([]*domain.Issue, error) {
	return f.issues, f.err
}

func (f fakeIssues) FindByTag(_ context.Context, tag string) ([]*domain.Issue, error) {
	var out []*domain.Issue
	for _, i := range f.issues {
		for _, t := range i.Tags() {
			if strings.EqualFold(t, tag) {
				out = append(out, i)
				break
			}
		}
	}
	return out, f.err
}

func (f fakeIssues) FindByDateRange(_ context.Context, from, to time.Time) ([]*domain.Issue, error) {
	var out []*domain.Issue
	for _, i := range f.issues {
		if p := i.PublishedAt(); !p.Before(from) && !p.After(to) {
			out = append(out, i)
		}
	}
	return out, f.err
}

type testEnv struct {
	router   http.Handler
	mailer   *captureMailer
	dispatch *fakeDispatcher
	history  *ledger.MemoryLedger
}

func setupTestRouter(t *testing.T, issues IssueLister) *testEnv {
	t.Helper()
	mailer := &captureMailer{}
	d := &fakeDispatcher{result: dispatch.Result{Success: true, Message: "ok", SentCount: 2}}
	subs := subscription.NewService(memory.NewSubscriberRepo(), mailer)
	if issues == nil {
		issues = fakeIssues{}
	}
	history := ledger.NewMemoryLedger()
	h := NewHandlers(subs, d, issues, history, Site{Name: "Puro Suco", BaseURL: siteURL + "/"})
	router := SetupRoutes(h, NewHealthChecker(HealthDeps{}), RouteConfig{AdminToken: adminToken})
	return &testEnv{router: router, mailer: mailer, dispatch: d, history: history}
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func (e *testEnv) subscribe(email string) *httptest.ResponseRecorder {
	form := url.Values{"email": {email}}
	req := httptest.NewRequest(http.MethodPost, "/api/subscribe", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return e.do(req)
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	return body
}

func TestSubscribe(t *testing.T) {
	env := setupTestRouter(t, nil)

	rr := env.subscribe("Leitor@Example.com")
	assert.Equal(t, http.StatusOK, rr.Code)
	body := decodeBody(t, rr)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, subscription.MsgSubscribed, body["message"])
	assert.NotContains(t, body, "subscriber")

	require.Len(t, env.mailer.urls, 1)
	assert.True(t, strings.HasPrefix(env.mailer.urls[0], siteURL+"/api/confirm/"))
}

func TestSubscribeRejections(t *testing.T) {
	env := setupTestRouter(t, nil)

	rr := env.subscribe("")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = env.subscribe("not-an-email")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, subscription.MsgInvalidEmail, decodeBody(t, rr)["message"])

	require.Equal(t, http.StatusOK, env.subscribe("a@example.com").Code)
	rr = env.subscribe("a@example.com")
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, subscription.MsgConfirmationPending, decodeBody(t, rr)["message"])
}

func TestConfirmRedirectsAndWelcomesOnce(t *testing.T) {
	env := setupTestRouter(t, nil)
	require.Equal(t, http.StatusOK, env.subscribe("a@example.com").Code)
	token := env.mailer.lastToken(t)

	rr := env.do(httptest.NewRequest(http.MethodGet, "/api/confirm/"+token, nil))
	assert.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, siteURL+"/?confirmed=true", rr.Header().Get("Location"))
	assert.Equal(t, []string{"a@example.com"}, env.dispatch.welcomed)

	// A second click still lands on the success page but sends nothing.
	rr = env.do(httptest.NewRequest(http.MethodGet, "/api/confirm/"+token, nil))
	assert.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, siteURL+"/?confirmed=true", rr.Header().Get("Location"))
	assert.Len(t, env.dispatch.welcomed, 1)
}

func TestConfirmUnknownToken(t *testing.T) {
	env := setupTestRouter(t, nil)

	rr := env.do(httptest.NewRequest(http.MethodGet, "/api/confirm/nope", nil))
	assert.Equal(t, http.StatusSeeOther, rr.Code)
	loc, err := url.Parse(rr.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, subscription.MsgInvalidToken, loc.Query().Get("error"))

	req := httptest.NewRequest(http.MethodGet, "/api/confirm/nope", nil)
	req.Header.Set("Accept", "application/json")
	rr = env.do(req)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, false, decodeBody(t, rr)["success"])
	assert.Empty(t, env.dispatch.welcomed)
}

func TestUnsubscribe(t *testing.T) {
	env := setupTestRouter(t, nil)
	require.Equal(t, http.StatusOK, env.subscribe("a@example.com").Code)
	token := env.mailer.lastToken(t)

	q := url.Values{"email": {"a@example.com"}, "token": {token}}
	rr := env.do(httptest.NewRequest(http.MethodGet, "/api/unsubscribe?"+q.Encode(), nil))
	assert.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, siteURL+"/unsubscribe?success=true", rr.Header().Get("Location"))

	req := httptest.NewRequest(http.MethodGet, "/api/unsubscribe?"+q.Encode(), nil)
	req.Header.Set("Accept", "application/json")
	rr = env.do(req)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, subscription.MsgAlreadyUnsubscribe, decodeBody(t, rr)["message"])
}

func TestUnsubscribeMissingParams(t *testing.T) {
	env := setupTestRouter(t, nil)

	rr := env.do(httptest.NewRequest(http.MethodGet, "/api/unsubscribe", nil))
	assert.Equal(t, http.StatusSeeOther, rr.Code)
	loc, err := url.Parse(rr.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "/unsubscribe", loc.Path)
	assert.NotEmpty(t, loc.Query().Get("error"))
}

func adminRequest(method, target string, body []byte) *http.Request {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+adminToken)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestSendNewsletterRequiresToken(t *testing.T) {
	env := setupTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/send-newsletter", strings.NewReader(`{"slug":"x"}`))
	assert.Equal(t, http.StatusUnauthorized, env.do(req).Code)

	req = httptest.NewRequest(http.MethodPost, "/api/send-newsletter", strings.NewReader(`{"slug":"x"}`))
	req.Header.Set("Authorization", "Bearer wrong")
	assert.Equal(t, http.StatusUnauthorized, env.do(req).Code)
	assert.Empty(t, env.dispatch.slug)
}

func TestSendNewsletterBySlug(t *testing.T) {
	env := setupTestRouter(t, nil)

	rr := env.do(adminRequest(http.MethodPost, "/api/send-newsletter", []byte(`{"slug":"edicao-1","force":true}`)))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "edicao-1", env.dispatch.slug)
	assert.True(t, env.dispatch.forced)

	body := decodeBody(t, rr)
	assert.Equal(t, float64(2), body["sentCount"])
	assert.Equal(t, float64(0), body["failedCount"])
}

func TestSendNewsletterLatest(t *testing.T) {
	env := setupTestRouter(t, nil)

	rr := env.do(adminRequest(http.MethodPost, "/api/send-newsletter", []byte(`{"latest":true}`)))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, env.dispatch.latest)
	assert.False(t, env.dispatch.forced)
}

func TestSendNewsletterByNumber(t *testing.T) {
	env := setupTestRouter(t, nil)

	rr := env.do(adminRequest(http.MethodPost, "/api/send-newsletter", []byte(`{"number":12}`)))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 12, env.dispatch.number)
	assert.Empty(t, env.dispatch.slug)
	assert.False(t, env.dispatch.latest)
}

func TestResendConfirmation(t *testing.T) {
	env := setupTestRouter(t, nil)

	rr := env.do(adminRequest(http.MethodPost, "/api/resend-confirmation", []byte(`{"email":"a@example.com"}`)))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, true, decodeBody(t, rr)["success"])
	assert.Equal(t, []string{"a@example.com"}, env.dispatch.resent)

	env.dispatch.noPending = true
	rr = env.do(adminRequest(http.MethodPost, "/api/resend-confirmation", []byte(`{"email":"b@example.com"}`)))
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, false, decodeBody(t, rr)["success"])

	rr = env.do(adminRequest(http.MethodPost, "/api/resend-confirmation", []byte(`{}`)))
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/resend-confirmation", strings.NewReader(`{"email":"a@example.com"}`))
	assert.Equal(t, http.StatusUnauthorized, env.do(req).Code)
	assert.Len(t, env.dispatch.resent, 1)
}

func TestSendNewsletterValidation(t *testing.T) {
	env := setupTestRouter(t, nil)

	assert.Equal(t, http.StatusBadRequest, env.do(adminRequest(http.MethodPost, "/api/send-newsletter", []byte(`{}`))).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(adminRequest(http.MethodPost, "/api/send-newsletter", []byte(`{bad`))).Code)
}

func TestSendNewsletterNotFound(t *testing.T) {
	env := setupTestRouter(t, nil)
	env.dispatch.result = dispatch.Result{Message: "Newsletter não encontrada", Err: domain.ErrNotFound}

	rr := env.do(adminRequest(http.MethodPost, "/api/send-newsletter", []byte(`{"slug":"missing"}`)))
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, false, decodeBody(t, rr)["success"])
}

func TestStats(t *testing.T) {
	env := setupTestRouter(t, nil)
	require.Equal(t, http.StatusOK, env.subscribe("a@example.com").Code)
	require.Equal(t, http.StatusOK, env.subscribe("b@example.com").Code)

	rr := env.do(adminRequest(http.MethodGet, "/api/stats", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	body := decodeBody(t, rr)
	assert.Equal(t, float64(2), body["total"])
	assert.Equal(t, float64(2), body["pending"])
	assert.Equal(t, float64(0), body["confirmed"])
	assert.NotContains(t, body, "lastDispatch")
}

func TestStatsReportsLastDispatch(t *testing.T) {
	issues := fakeIssues{issues: []*domain.Issue{
		mustIssue(t, domain.IssueInput{
			Title: "Edição 2", Content: "<p>b</p>", Slug: "edicao-2", Number: 2,
			PublishedAt: time.Date(2025, 3, 8, 9, 0, 0, 0, time.UTC),
		}),
	}}
	env := setupTestRouter(t, issues)

	rr := env.do(adminRequest(http.MethodGet, "/api/stats", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.NotContains(t, decodeBody(t, rr), "lastDispatch")

	require.NoError(t, env.history.MarkDispatched(context.Background(), "edicao-2", 7))
	rr = env.do(adminRequest(http.MethodGet, "/api/stats", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	last, ok := decodeBody(t, rr)["lastDispatch"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "edicao-2", last["slug"])
	assert.Equal(t, float64(7), last["sent"])
}

func TestAdminDisabledWithoutToken(t *testing.T) {
	h := NewHandlers(subscription.NewService(memory.NewSubscriberRepo(), &captureMailer{}), &fakeDispatcher{}, fakeIssues{}, nil, Site{BaseURL: siteURL})
	router := SetupRoutes(h, NewHealthChecker(HealthDeps{}), RouteConfig{})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	req.Header.Set("Authorization", "Bearer ")
	router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestSecurityHeaders(t *testing.T) {
	env := setupTestRouter(t, nil)

	rr := env.subscribe("a@example.com")
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rr.Header().Get("X-Frame-Options"))
	assert.Contains(t, rr.Header().Get("Content-Security-Policy"), "default-src 'none'")

	rr = env.do(httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Empty(t, rr.Header().Get("Content-Security-Policy"))
}

func mustIssue(t *testing.T, in domain.IssueInput) *domain.Issue {
	t.Helper()
	i, err := domain.NewIssue(in)
	require.NoError(t, err)
	return i
}

func TestRSS(t *testing.T) {
	issues := fakeIssues{issues: []*domain.Issue{
		mustIssue(t, domain.IssueInput{
			Title: "Edição 2", Description: "IA & cia", Content: "<p>b</p>", Slug: "edicao-2",
			Number: 2, PublishedAt: time.Date(2025, 3, 8, 9, 0, 0, 0, time.UTC), Tags: []string{"ia"},
		}),
		mustIssue(t, domain.IssueInput{
			Title: "Edição 1", Description: "Começo", Content: "<p>a</p>", Slug: "edicao-1",
			Number: 1, PublishedAt: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC),
		}),
	}}
	env := setupTestRouter(t, issues)

	rr := env.do(httptest.NewRequest(http.MethodGet, "/rss.xml", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/rss+xml")

	feed, err := gofeed.NewParser().ParseString(rr.Body.String())
	require.NoError(t, err)
	assert.Equal(t, "Puro Suco", feed.Title)
	require.Len(t, feed.Items, 2)
	assert.Equal(t, "Edição 2", feed.Items[0].Title)
	assert.Equal(t, siteURL+"/newsletters/edicao-2", feed.Items[0].Link)
	assert.Equal(t, "IA & cia", feed.Items[0].Description)
	assert.Equal(t, []string{"ia"}, feed.Items[0].Categories)
	require.NotNil(t, feed.Items[1].PublishedParsed)
	assert.True(t, feed.Items[1].PublishedParsed.Equal(time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)))
}

func TestRSSFailure(t *testing.T) {
	env := setupTestRouter(t, fakeIssues{err: errors.New("bucket gone")})

	rr := env.do(httptest.NewRequest(http.MethodGet, "/rss.xml", nil))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestRSSFilters(t *testing.T) {
	issues := fakeIssues{issues: []*domain.Issue{
		mustIssue(t, domain.IssueInput{
			Title: "Edição 3", Content: "<p>c</p>", Slug: "edicao-3", Number: 3,
			PublishedAt: time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC), Tags: []string{"Go"},
		}),
		mustIssue(t, domain.IssueInput{
			Title: "Edição 2", Content: "<p>b</p>", Slug: "edicao-2", Number: 2,
			PublishedAt: time.Date(2024, 12, 20, 9, 0, 0, 0, time.UTC), Tags: []string{"go", "ia"},
		}),
		mustIssue(t, domain.IssueInput{
			Title: "Edição 1", Content: "<p>a</p>", Slug: "edicao-1", Number: 1,
			PublishedAt: time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC), Tags: []string{"design"},
		}),
	}}
	env := setupTestRouter(t, issues)

	titles := func(target string) []string {
		t.Helper()
		rr := env.do(httptest.NewRequest(http.MethodGet, target, nil))
		require.Equal(t, http.StatusOK, rr.Code, target)
		feed, err := gofeed.NewParser().ParseString(rr.Body.String())
		require.NoError(t, err)
		var out []string
		for _, item := range feed.Items {
			out = append(out, item.Title)
		}
		return out
	}

	assert.Equal(t, []string{"Edição 3", "Edição 2"}, titles("/rss.xml?tag=go"))
	assert.Equal(t, []string{"Edição 2", "Edição 1"}, titles("/rss.xml?year=2024"))
	assert.Equal(t, []string{"Edição 2"}, titles("/rss.xml?year=2024&tag=GO"))

	rr := env.do(httptest.NewRequest(http.MethodGet, "/rss.xml?year=abc", nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
