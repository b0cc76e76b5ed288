package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/lendpal/internal/auth"
	"github.com/sakif/lendpal/internal/handler"
	"github.com/sakif/lendpal/internal/model"
	"github.com/sakif/lendpal/internal/repository"
	"github.com/sakif/lendpal/internal/repository/jsonfile"
	"github.com/sakif/lendpal/internal/service"
)

// brokenStore accepts loads of nothing and fails every save.
type brokenStore struct{ repository.Store }

func (brokenStore) Save(ctx context.Context, r *model.Registry) error {
	return errors.New("disk on fire at /secret/path")
}

func (brokenStore) Location() string { return "broken" }

type fixture struct {
	router  http.Handler
	lending *service.LendingService
	tokens  *auth.TokenService
}

func newFixture(t *testing.T, store repository.Store, opts ...service.Option) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if store == nil {
		store = jsonfile.New(filepath.Join(t.TempDir(), "lendpal.json"))
	}

	lending := service.NewLendingService(model.NewRegistry(), store, logger,
		append([]service.Option{service.WithAutosave(true)}, opts...)...)
	tokens, err := auth.NewTokenService("handler-test-secret-123", time.Hour)
	require.NoError(t, err)
	authService := service.NewAuthService(lending, tokens, logger)

	authHandler := handler.NewAuthHandler(authService, lending, logger)
	lendingHandler := handler.NewLendingHandler(lending, logger)

	r := chi.NewRouter()
	r.Post("/auth/register", authHandler.HandleRegister)
	r.Post("/auth/login", authHandler.HandleLogin)
	r.Post("/auth/logout", authHandler.HandleLogout)
	r.Route("/api", func(r chi.Router) {
		r.Use(auth.RequireAuth(tokens))
		r.Get("/me", authHandler.HandleMe)
		r.Get("/me/loans", authHandler.HandleMyLoans)
		r.Get("/users/{id}", lendingHandler.HandleGetUser)
		r.Get("/users/{id}/loans", lendingHandler.HandleUserLoans)
		r.Delete("/users/{id}", lendingHandler.HandleDeleteUser)
		r.Get("/items", lendingHandler.HandleListItems)
		r.Post("/items", lendingHandler.HandleCreateItem)
		r.Get("/items/{id}", lendingHandler.HandleGetItem)
		r.Delete("/items/{id}", lendingHandler.HandleDeleteItem)
		r.Get("/items/{id}/holder", lendingHandler.HandleItemHolder)
		r.Post("/items/{id}/lend", lendingHandler.HandleLend)
		r.Post("/items/{id}/return", lendingHandler.HandleReturn)
		r.Get("/loans", lendingHandler.HandleListLoans)
		r.Post("/data/save", lendingHandler.HandleSave)
	})

	return &fixture{router: r, lending: lending, tokens: tokens}
}

func (f *fixture) send(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	return rr
}

// user registers directly through the service and returns its ID and a token.
func (f *fixture) user(t *testing.T, email string) (string, string) {
	t.Helper()
	p, err := f.lending.Register(context.Background(), "Test", "Test", email, "pw", "pw")
	require.NoError(t, err)
	token, err := f.tokens.Generate(p.ID)
	require.NoError(t, err)
	return p.ID, token
}

func (f *fixture) item(t *testing.T, name string) string {
	t.Helper()
	item, err := f.lending.AddItem(context.Background(), name, "", model.LendPeriod{})
	require.NoError(t, err)
	return item.ID
}

func errorOf(t *testing.T, rr *httptest.ResponseRecorder) handler.ErrorResponse {
	t.Helper()
	var res handler.ErrorResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&res), "body: %s", rr.Body.String())
	return res
}

func TestAuthHandler_HandleRegister(t *testing.T) {
	t.Run("created", func(t *testing.T) {
		f := newFixture(t, nil)
		rr := f.send(t, http.MethodPost, "/auth/register", "",
			`{"firstName":"Test","lastName":"Test","email":"test@epost.com","password":"Tullepassord","passwordConfirm":"Tullepassord"}`)

		assert.Equal(t, http.StatusCreated, rr.Code)
		var profile service.UserProfile
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&profile))
		assert.NotEmpty(t, profile.ID)
		assert.Equal(t, "test@epost.com", profile.Email)
		assert.Equal(t, model.Member, profile.Privilege)
		assert.NotContains(t, rr.Body.String(), "Tullepassord")
	})

	tests := []struct {
		name      string
		body      string
		wantCode  int
		wantError string
		wantField string
	}{
		{
			name:      "duplicate email",
			body:      `{"email":"taken@example.com","password":"a","passwordConfirm":"a"}`,
			wantCode:  http.StatusConflict,
			wantError: "duplicate_email",
			wantField: "email",
		},
		{
			name:      "password mismatch",
			body:      `{"email":"new@example.com","password":"a","passwordConfirm":"b"}`,
			wantCode:  http.StatusBadRequest,
			wantError: "password_mismatch",
		},
		{
			name:      "invalid email",
			body:      `{"email":"not-an-email","password":"a","passwordConfirm":"a"}`,
			wantCode:  http.StatusBadRequest,
			wantError: "email_invalid",
			wantField: "email",
		},
		{
			name:      "missing password",
			body:      `{"email":"new@example.com"}`,
			wantCode:  http.StatusBadRequest,
			wantError: "validation_error",
			wantField: "password",
		},
		{
			name:      "unknown field",
			body:      `{"email":"new@example.com","password":"a","admin":true}`,
			wantCode:  http.StatusBadRequest,
			wantError: "validation_error",
		},
		{
			name:      "malformed json",
			body:      `{"email":`,
			wantCode:  http.StatusBadRequest,
			wantError: "validation_error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			f.user(t, "taken@example.com")

			rr := f.send(t, http.MethodPost, "/auth/register", "", tt.body)

			assert.Equal(t, tt.wantCode, rr.Code)
			res := errorOf(t, rr)
			assert.Equal(t, tt.wantError, res.Error)
			assert.NotEmpty(t, res.Message)
			if tt.wantField != "" {
				assert.Equal(t, tt.wantField, res.Field)
			}
		})
	}
}

func TestAuthHandler_HandleLogin(t *testing.T) {
	f := newFixture(t, nil)
	f.user(t, "test@epost.com")

	t.Run("wrong password", func(t *testing.T) {
		rr := f.send(t, http.MethodPost, "/auth/login", "", `{"email":"test@epost.com","password":"nope"}`)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.Equal(t, "unauthorized", errorOf(t, rr).Error)
		assert.Empty(t, rr.Result().Cookies())
	})

	t.Run("unknown email looks the same", func(t *testing.T) {
		rr := f.send(t, http.MethodPost, "/auth/login", "", `{"email":"ghost@example.com","password":"pw"}`)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("ok", func(t *testing.T) {
		rr := f.send(t, http.MethodPost, "/auth/login", "", `{"email":"test@epost.com","password":"pw"}`)
		require.Equal(t, http.StatusOK, rr.Code)

		var res struct {
			Token string `json:"token"`
		}
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&res))
		cookies := rr.Result().Cookies()
		require.Len(t, cookies, 1)
		assert.Equal(t, auth.CookieName, cookies[0].Name)
		assert.Equal(t, res.Token, cookies[0].Value)

		me := f.send(t, http.MethodGet, "/api/me", res.Token, "")
		assert.Equal(t, http.StatusOK, me.Code)
	})
}

func TestAuthHandler_HandleLogout(t *testing.T) {
	f := newFixture(t, nil)
	rr := f.send(t, http.MethodPost, "/auth/logout", "", "")

	assert.Equal(t, http.StatusOK, rr.Code)
	cookies := rr.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, -1, cookies[0].MaxAge)
}

func TestAuthHandler_HandleMeAfterUserRemoved(t *testing.T) {
	f := newFixture(t, nil)
	userID, token := f.user(t, "gone@example.com")
	require.NoError(t, f.lending.RemoveUser(context.Background(), userID))

	rr := f.send(t, http.MethodGet, "/api/me", token, "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestLendingHandler_Items(t *testing.T) {
	f := newFixture(t, nil)
	_, token := f.user(t, "a@example.com")

	t.Run("create with period", func(t *testing.T) {
		rr := f.send(t, http.MethodPost, "/api/items", token, `{"name":"Sirkelsag","description":"Grønn, slitt.","defaultLendTime":"P1W"}`)
		require.Equal(t, http.StatusCreated, rr.Code)
		var item map[string]any
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&item))
		assert.Equal(t, "P7D", item["defaultLendTime"])
		assert.Equal(t, false, item["lent"])
	})

	t.Run("bad period", func(t *testing.T) {
		rr := f.send(t, http.MethodPost, "/api/items", token, `{"name":"Saw","defaultLendTime":"two weeks"}`)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Equal(t, "defaultLendTime", errorOf(t, rr).Field)
	})

	t.Run("missing name", func(t *testing.T) {
		rr := f.send(t, http.MethodPost, "/api/items", token, `{"description":"no name"}`)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		res := errorOf(t, rr)
		assert.Equal(t, "validation_error", res.Error)
		assert.Equal(t, "name", res.Field)
	})

	t.Run("list", func(t *testing.T) {
		f.item(t, "Avkapper")
		rr := f.send(t, http.MethodGet, "/api/items", token, "")
		require.Equal(t, http.StatusOK, rr.Code)
		var items []map[string]any
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&items))
		require.Len(t, items, 2)
		assert.Equal(t, "Avkapper", items[0]["name"])
		assert.Equal(t, "Sirkelsag", items[1]["name"])
	})

	t.Run("unknown item", func(t *testing.T) {
		rr := f.send(t, http.MethodGet, "/api/items/nope", token, "")
		assert.Equal(t, http.StatusNotFound, rr.Code)
		assert.Equal(t, "invalid_reference", errorOf(t, rr).Error)
	})
}

func TestLendingHandler_LendAndReturn(t *testing.T) {
	f := newFixture(t, nil)
	aliceID, alice := f.user(t, "alice@example.com")
	bobID, bob := f.user(t, "bob@example.com")
	itemID := f.item(t, "Sirkelsag")

	rr := f.send(t, http.MethodGet, "/api/items/"+itemID+"/holder", alice, "")
	assert.Equal(t, http.StatusNotFound, rr.Code, "nobody holds the item yet")
	assert.Equal(t, "not_found", errorOf(t, rr).Error)

	rr = f.send(t, http.MethodPost, "/api/items/"+itemID+"/lend", alice, "")
	require.Equal(t, http.StatusOK, rr.Code)
	var lent struct {
		UserID string    `json:"userId"`
		DueAt  time.Time `json:"dueAt"`
	}
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&lent))
	assert.Equal(t, aliceID, lent.UserID)
	assert.WithinDuration(t, time.Now().AddDate(0, 0, 14), lent.DueAt, time.Minute)

	rr = f.send(t, http.MethodPost, "/api/items/"+itemID+"/lend", bob, "")
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, "on_loan", errorOf(t, rr).Error)

	rr = f.send(t, http.MethodPost, "/api/items/"+itemID+"/return", bob, "")
	assert.Equal(t, http.StatusNotFound, rr.Code, "bob does not hold it")

	rr = f.send(t, http.MethodDelete, "/api/items/"+itemID, bob, "")
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = f.send(t, http.MethodDelete, "/api/users/"+aliceID, bob, "")
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = f.send(t, http.MethodGet, "/api/users/"+aliceID+"/loans", bob, "")
	require.Equal(t, http.StatusOK, rr.Code)
	var loans []map[string]any
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&loans))
	require.Len(t, loans, 1)
	assert.Equal(t, itemID, loans[0]["itemId"])
	assert.Equal(t, false, loans[0]["overdue"])

	rr = f.send(t, http.MethodPost, "/api/items/"+itemID+"/return", alice, "")
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.False(t, f.lending.IsItemLent(itemID))

	rr = f.send(t, http.MethodDelete, "/api/items/"+itemID, bob, "")
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = f.send(t, http.MethodDelete, "/api/users/"+aliceID, bob, "")
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = f.send(t, http.MethodGet, "/api/users/"+aliceID, bob, "")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = f.send(t, http.MethodGet, "/api/users/"+bobID, bob, "")
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestLendingHandler_StoreFailureIsInternal(t *testing.T) {
	f := newFixture(t, brokenStore{}, service.WithAutosave(false))
	_, token := f.user(t, "x@example.com")

	rr := f.send(t, http.MethodPost, "/api/data/save", token, "")
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	res := errorOf(t, rr)
	assert.Equal(t, "internal_error", res.Error)
	assert.NotContains(t, res.Message, "/secret/path")
}

func TestLendingHandler_HandleSave(t *testing.T) {
	f := newFixture(t, nil)
	_, token := f.user(t, "x@example.com")

	rr := f.send(t, http.MethodPost, "/api/data/save", token, "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"message":"saved"}`, rr.Body.String())
}

func TestLendingHandler_OverdueFollowsServiceClock(t *testing.T) {
	later := time.Now().AddDate(0, 1, 0)
	f := newFixture(t, nil, service.WithClock(func() time.Time { return later }))
	userID, token := f.user(t, "late@example.com")
	itemID := f.item(t, "Drill")

	rr := f.send(t, http.MethodPost, "/api/items/"+itemID+"/lend", token, "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	for _, path := range []string{"/api/me/loans", "/api/users/" + userID + "/loans", "/api/loans", "/api/loans?overdue=true"} {
		t.Run(path, func(t *testing.T) {
			rr := f.send(t, http.MethodGet, path, token, "")
			require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

			var loans []struct {
				ItemID  string `json:"itemId"`
				Overdue bool   `json:"overdue"`
			}
			require.NoError(t, json.NewDecoder(rr.Body).Decode(&loans))
			require.Len(t, loans, 1)
			assert.Equal(t, itemID, loans[0].ItemID)
			assert.True(t, loans[0].Overdue, "a loan due in 14 days is overdue a month later")
		})
	}
}
