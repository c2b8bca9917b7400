package auth

import (
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndVerify(t *testing.T) {
	mgr := NewJWTManager("test-secret", time.Hour)
	userID := uuid.New().String()

	token, err := mgr.Generate(userID, "alice")
	require.NoError(t, err)

	claims, err := mgr.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.Subject)
	assert.Equal(t, "alice", claims.Username)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	token, err := NewJWTManager("secret-a", time.Hour).Generate(uuid.New().String(), "bob")
	require.NoError(t, err)

	_, err = NewJWTManager("secret-b", time.Hour).Verify(token)
	assert.Error(t, err)
}

func TestVerifyRejectsExpired(t *testing.T) {
	token, err := NewJWTManager("secret", -time.Minute).Generate(uuid.New().String(), "bob")
	require.NoError(t, err)

	_, err = NewJWTManager("secret", -time.Minute).Verify(token)
	assert.Error(t, err)
}

func TestExpiryRejectsTokenWithoutExp(t *testing.T) {
	claims := GuestClaims{
		Username:         "carol",
		RegisteredClaims: jwt.RegisteredClaims{Subject: uuid.New().String()},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)

	mgr := NewJWTManager("secret", time.Hour)
	_, err = mgr.Verify(token)
	require.NoError(t, err)

	_, err = mgr.Expiry(token)
	assert.Error(t, err)
}

func TestExtractTokenFromHeader(t *testing.T) {
	req, _ := http.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer abc.def.ghi")

	token, err := ExtractTokenFromHeader(req)
	require.NoError(t, err)
	assert.Equal(t, "abc.def.ghi", token)

	req.Header.Set("Authorization", "abc.def.ghi")
	_, err = ExtractTokenFromHeader(req)
	assert.Error(t, err)
}
