package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/yourdeals/deals-web/config"
	"github.com/yourdeals/deals-web/internal/deallink"
	"github.com/yourdeals/deals-web/middleware"
	"github.com/yourdeals/deals-web/services"
	"github.com/yourdeals/deals-web/services/remoteapi"
	"github.com/yourdeals/deals-web/session"
	"go.uber.org/zap"
)

// MockProfileFetcher is a mock implementation of session.ProfileFetcher
type MockProfileFetcher struct {
	mock.Mock
}

func (m *MockProfileFetcher) PersonalData(ctx context.Context, token string) (*remoteapi.Identity, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*remoteapi.Identity), args.Error(1)
}

func testClaims(t *testing.T) *session.Claims {
	t.Helper()
	manager, err := session.NewManager(config.SessionConfig{
		Secret: "handlers-test-secret",
		Issuer: "deals-web",
		TTL:    time.Hour,
	})
	require.NoError(t, err)

	_, claims, err := manager.Issue(remoteapi.LoginResult{
		Token: "T1",
		Identity: remoteapi.Identity{
			UserID:   "U1",
			FullName: "Alice",
			Email:    "alice@example.com",
		},
	})
	require.NoError(t, err)
	return claims
}

func testCodec(t *testing.T) *deallink.Codec {
	t.Helper()
	codec, err := deallink.NewCodec("handlers-test-link-secret")
	require.NoError(t, err)
	return codec
}

func withSession(r *http.Request, claims *session.Claims, locale string) *http.Request {
	ctx := middleware.WithLocale(r.Context(), locale)
	if claims != nil {
		ctx = middleware.WithClaims(ctx, claims)
	}
	return r.WithContext(ctx)
}

func decodePage(t *testing.T, w *httptest.ResponseRecorder) Page {
	t.Helper()
	var page Page
	require.NoError(t, json.NewDecoder(w.Body).Decode(&page))
	return page
}

func actionIDs(actions []Action) []string {
	ids := make([]string, 0, len(actions))
	for _, a := range actions {
		ids = append(ids, a.ID)
	}
	return ids
}

func TestPagesHandler_AnonymousHeader(t *testing.T) {
	fetcher := new(MockProfileFetcher)
	handler := NewPagesHandler(session.NewHydrator(fetcher, time.Second, zap.NewNop()), testCodec(t), zap.NewNop())

	w := httptest.NewRecorder()
	req := withSession(httptest.NewRequest(http.MethodGet, "/jp/login", nil), nil, "jp")
	handler.HandleLogin(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	page := decodePage(t, w)
	assert.Equal(t, "login", page.Name)
	assert.Equal(t, "jp", page.Locale)
	assert.Nil(t, page.Session)
	assert.False(t, page.Header.Authenticated)
	assert.Equal(t, "/jp/user-dashboard", page.Header.BrandHref)
	assert.Equal(t, []string{"login", "signup"}, actionIDs(page.Header.Actions))
	assert.Equal(t, "/jp/signup", page.Header.Actions[1].Href)
	fetcher.AssertNotCalled(t, "PersonalData", mock.Anything, mock.Anything)
}

func TestPagesHandler_HydratesEveryLoad(t *testing.T) {
	fetcher := new(MockProfileFetcher)
	fetcher.On("PersonalData", mock.Anything, "T1").
		Return(&remoteapi.Identity{UserID: "U1", FullName: "Alice Smith"}, nil).Twice()
	handler := NewPagesHandler(session.NewHydrator(fetcher, time.Second, zap.NewNop()), testCodec(t), zap.NewNop())
	claims := testClaims(t)

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		handler.HandleUserDashboard(w, withSession(httptest.NewRequest(http.MethodGet, "/en/user-dashboard", nil), claims, "en"))
		require.Equal(t, http.StatusOK, w.Code)
	}

	fetcher.AssertNumberOfCalls(t, "PersonalData", 2)
}

func TestPagesHandler_DashboardHeader(t *testing.T) {
	fetcher := new(MockProfileFetcher)
	fetcher.On("PersonalData", mock.Anything, "T1").
		Return(&remoteapi.Identity{UserID: "U1", FullName: "Alice Smith", ImageURL: "https://img.example.com/a.png"}, nil).Once()
	handler := NewPagesHandler(session.NewHydrator(fetcher, time.Second, zap.NewNop()), testCodec(t), zap.NewNop())

	w := httptest.NewRecorder()
	req := withSession(httptest.NewRequest(http.MethodGet, "/en/user-dashboard", nil), testClaims(t), "en")
	handler.HandleUserDashboard(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	page := decodePage(t, w)
	require.NotNil(t, page.Session)
	assert.Equal(t, "U1", page.Session.User.UserID)
	assert.Equal(t, "Alice Smith", page.Session.User.FullName)

	assert.True(t, page.Header.Authenticated)
	assert.Equal(t, "Alice Smith", page.Header.DisplayName)
	assert.Equal(t, "https://img.example.com/a.png", page.Header.ImageURL)
	assert.Equal(t,
		[]string{"favorites", "notifications", "profile", "deal-management", "logout"},
		actionIDs(page.Header.Actions))

	logout := page.Header.Actions[len(page.Header.Actions)-1]
	assert.Equal(t, http.MethodPost, logout.Method)
	assert.Equal(t, "/api/auth/logout?lng=en", logout.Href)
	fetcher.AssertExpectations(t)
}

func TestPagesHandler_HydrationFailureKeepsSnapshot(t *testing.T) {
	fetcher := new(MockProfileFetcher)
	fetcher.On("PersonalData", mock.Anything, "T1").Return(nil, services.ErrSessionInvalid).Once()
	handler := NewPagesHandler(session.NewHydrator(fetcher, time.Second, zap.NewNop()), testCodec(t), zap.NewNop())

	w := httptest.NewRecorder()
	req := withSession(httptest.NewRequest(http.MethodGet, "/en/deal-management", nil), testClaims(t), "en")
	handler.HandleDealManagement(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	page := decodePage(t, w)
	assert.True(t, page.Header.Authenticated)
	assert.Equal(t, "Alice", page.Header.DisplayName)
	assert.Equal(t, "deal-management", page.Name)
}

func TestPagesHandler_DealDetails(t *testing.T) {
	codec := testCodec(t)
	ref, err := codec.Encode(42)
	require.NoError(t, err)

	fetcher := new(MockProfileFetcher)
	fetcher.On("PersonalData", mock.Anything, "T1").Return(nil, errors.New("down"))
	handler := NewPagesHandler(session.NewHydrator(fetcher, time.Second, zap.NewNop()), codec, zap.NewNop())

	t.Run("valid reference", func(t *testing.T) {
		w := httptest.NewRecorder()
		target := "/en/deal-details?id=" + url.QueryEscape(ref)
		req := withSession(httptest.NewRequest(http.MethodGet, target, nil), testClaims(t), "en")
		handler.HandleDealDetails(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		page := decodePage(t, w)
		assert.Equal(t, ref, page.DealRef)
		assert.Equal(t,
			[]string{"share", "save", "deal-management", "logout"},
			actionIDs(page.Header.Actions))
	})

	for name, id := range map[string]string{
		"missing reference": "",
		"plain numeric id":  "42",
		"garbage reference": "not-a-ref",
	} {
		t.Run(name, func(t *testing.T) {
			w := httptest.NewRecorder()
			target := "/en/deal-details?id=" + url.QueryEscape(id)
			req := withSession(httptest.NewRequest(http.MethodGet, target, nil), testClaims(t), "en")
			handler.HandleDealDetails(w, req)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, w.Body.String(), "Invalid deal ID.")
		})
	}
}

func TestRedirectToLogin(t *testing.T) {
	w := httptest.NewRecorder()
	RedirectToLogin(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusMovedPermanently, w.Code)
	assert.Equal(t, "/en/login", w.Header().Get("Location"))
}
