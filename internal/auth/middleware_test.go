package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/helpdesk/internal/domain"
	apperrors "github.com/spec-kit/helpdesk/pkg/util"
)

type fakeUsers struct {
	users map[string]domain.User
	err   error
}

func (f *fakeUsers) GetByID(_ context.Context, id string) (*domain.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	u, ok := f.users[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &u, nil
}

func (f *fakeUsers) ListByRole(context.Context, domain.UserRole) ([]domain.User, error) {
	return nil, nil
}

func (f *fakeUsers) ListAdmins(context.Context) ([]domain.User, error) { return nil, nil }

func newProtectedApp(users *fakeUsers, tokens *TokenManager, guards ...fiber.Handler) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			domainErr := apperrors.ToDomainError(err)
			return c.Status(domainErr.HTTPStatus).SendString(domainErr.Code)
		},
	})
	handlers := []fiber.Handler{NewAuthMiddleware(tokens, users).Handle}
	handlers = append(handlers, guards...)
	handlers = append(handlers, func(c *fiber.Ctx) error {
		user, ok := UserFromContext(c)
		if !ok {
			return errors.New("user missing")
		}
		return c.SendString(string(user.Role))
	})
	app.Get("/", handlers...)
	return app
}

func call(t *testing.T, app *fiber.App, authHeader string) (int, string) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	buf := make([]byte, 64)
	n, _ := resp.Body.Read(buf)
	return resp.StatusCode, string(buf[:n])
}

func bearer(t *testing.T, tokens *TokenManager, userID string, role domain.UserRole) string {
	t.Helper()
	token, _, err := tokens.GenerateToken(userID, role)
	require.NoError(t, err)
	return "Bearer " + token
}

func TestMiddlewareLoadsUserFromDirectory(t *testing.T) {
	tokens := NewTokenManager("s", 5)
	users := &fakeUsers{users: map[string]domain.User{
		"a1": {ID: "a1", Role: domain.UserRoleAgent, Active: true},
	}}
	app := newProtectedApp(users, tokens)

	// Role in the token is stale; the directory wins.
	status, body := call(t, app, bearer(t, tokens, "a1", domain.UserRoleClient))

	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "agent", body)
}

func TestMiddlewareRejections(t *testing.T) {
	tokens := NewTokenManager("s", 5)
	users := &fakeUsers{users: map[string]domain.User{
		"off": {ID: "off", Role: domain.UserRoleAgent, Active: false},
	}}
	app := newProtectedApp(users, tokens)

	cases := map[string]string{
		"missing header": "",
		"wrong scheme":   "Basic abc",
		"garbage token":  "Bearer not-a-jwt",
		"unknown user":   bearer(t, tokens, "ghost", domain.UserRoleAdmin),
		"inactive user":  bearer(t, tokens, "off", domain.UserRoleAgent),
	}
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			status, body := call(t, app, header)
			assert.Equal(t, http.StatusUnauthorized, status)
			assert.Equal(t, "UNAUTHORIZED", body)
		})
	}
}

func TestMiddlewareDirectoryFailureIsInternal(t *testing.T) {
	tokens := NewTokenManager("s", 5)
	app := newProtectedApp(&fakeUsers{err: errors.New("pool closed")}, tokens)

	status, _ := call(t, app, bearer(t, tokens, "a1", domain.UserRoleAgent))

	assert.Equal(t, http.StatusInternalServerError, status)
}

func TestRequireStaff(t *testing.T) {
	tokens := NewTokenManager("s", 5)
	users := &fakeUsers{users: map[string]domain.User{
		"c1": {ID: "c1", Role: domain.UserRoleClient, Active: true},
		"a1": {ID: "a1", Role: domain.UserRoleAdmin, Active: true},
	}}
	app := newProtectedApp(users, tokens, RequireStaff())

	status, body := call(t, app, bearer(t, tokens, "c1", domain.UserRoleClient))
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "FORBIDDEN", body)

	status, _ = call(t, app, bearer(t, tokens, "a1", domain.UserRoleAdmin))
	assert.Equal(t, http.StatusOK, status)
}
