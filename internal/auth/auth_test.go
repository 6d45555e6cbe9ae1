package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/membank-io/membank/internal/errors"
	"github.com/membank-io/membank/internal/store"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newTestService(t *testing.T) *Service {
	t.Helper()
	s, err := store.Open("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	svc, err := NewService(s.Users, testSecret, nil)
	require.NoError(t, err)
	return svc
}

func TestNewService_ShortSecret(t *testing.T) {
	_, err := NewService(nil, "too-short", nil)
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindInvalidInput))
}

func TestRegister(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	user, err := svc.Register(ctx, "aiko", "aiko@example.com", "s3cret-pass")
	require.NoError(t, err)
	assert.NotZero(t, user.ID)
	assert.Equal(t, "aiko", user.Username)
	assert.NotEqual(t, "s3cret-pass", user.PasswordHash, "password stored hashed")

	cases := []struct {
		name     string
		username string
		email    string
		password string
	}{
		{"empty username", "", "a@example.com", "s3cret-pass"},
		{"bad email", "bob", "not-an-email", "s3cret-pass"},
		{"short password", "bob", "bob@example.com", "tiny"},
		{"duplicate username", "aiko", "new@example.com", "s3cret-pass"},
		{"duplicate email", "fresh", "aiko@example.com", "s3cret-pass"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Register(ctx, tc.username, tc.email, tc.password)
			require.Error(t, err)
			assert.True(t, errors.IsKind(err, errors.KindInvalidInput))
		})
	}
}

func TestLoginAndValidate(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	user, err := svc.Register(ctx, "aiko", "aiko@example.com", "s3cret-pass")
	require.NoError(t, err)

	token, got, err := svc.Login(ctx, "aiko", "s3cret-pass")
	require.NoError(t, err)
	require.NotEmpty(t, token)
	assert.Equal(t, user.ID, got.ID)

	userID, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, userID)
}

func TestLogin_BadCredentials(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "aiko", "aiko@example.com", "s3cret-pass")
	require.NoError(t, err)

	// Wrong password and unknown user must be indistinguishable.
	_, _, err = svc.Login(ctx, "aiko", "wrong-pass")
	assert.True(t, errors.IsKind(err, errors.KindAccessDenied))

	_, _, err = svc.Login(ctx, "ghost", "s3cret-pass")
	assert.True(t, errors.IsKind(err, errors.KindAccessDenied))
}

func TestValidateToken_Rejections(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.ValidateToken("")
	assert.True(t, errors.IsKind(err, errors.KindAccessDenied))

	_, err = svc.ValidateToken("not.a.token")
	assert.True(t, errors.IsKind(err, errors.KindAccessDenied))

	// Token signed with a different secret.
	other := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	forged, err := other.SignedString([]byte("ffffffffffffffffffffffffffffffff"))
	require.NoError(t, err)
	_, err = svc.ValidateToken(forged)
	assert.True(t, errors.IsKind(err, errors.KindAccessDenied))

	// Expired token.
	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	})
	stale, err := expired.SignedString([]byte(testSecret))
	require.NoError(t, err)
	_, err = svc.ValidateToken(stale)
	assert.True(t, errors.IsKind(err, errors.KindAccessDenied))
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := newTestService(t)
	ctx := context.Background()

	user, err := svc.Register(ctx, "aiko", "aiko@example.com", "s3cret-pass")
	require.NoError(t, err)
	token, _, err := svc.Login(ctx, "aiko", "s3cret-pass")
	require.NoError(t, err)

	r := gin.New()
	r.GET("/whoami", svc.Middleware(), func(c *gin.Context) {
		id, ok := OwnerID(c)
		require.True(t, ok)
		c.String(http.StatusOK, strconv.FormatInt(id, 10))
	})

	t.Run("valid token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, strconv.FormatInt(user.ID, 10), w.Body.String())
	})

	t.Run("missing header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("malformed header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
		req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}
