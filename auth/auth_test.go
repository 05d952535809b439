package auth

import (
	"testing"
	"time"

	"ombra/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testUser() *models.User {
	return &models.User{
		UserID:        "user-1",
		Username:      "client_demo",
		AnonymousCode: "OT-K7M2P",
		Role:          models.RoleClient,
	}
}

func TestTokenRoundTrip(t *testing.T) {
	m := NewJWTManager("test-secret", 30*time.Minute, 7*24*time.Hour)

	token, err := m.GenerateToken(testUser())
	require.NoError(t, err)

	claims, err := m.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "client_demo", claims.Username)
	assert.Equal(t, "OT-K7M2P", claims.AnonymousCode)
	assert.Equal(t, models.RoleClient, claims.Role)
	assert.Equal(t, "ombra-api", claims.Issuer)
}

func TestValidateTokenWrongSecret(t *testing.T) {
	m := NewJWTManager("test-secret", 30*time.Minute, 7*24*time.Hour)
	other := NewJWTManager("other-secret", 30*time.Minute, 7*24*time.Hour)

	token, err := m.GenerateToken(testUser())
	require.NoError(t, err)

	_, err = other.ValidateToken(token)
	assert.Error(t, err)
}

func TestValidateExpiredToken(t *testing.T) {
	m := NewJWTManager("test-secret", -time.Minute, 7*24*time.Hour)

	token, err := m.GenerateToken(testUser())
	require.NoError(t, err)

	_, err = m.ValidateToken(token)
	assert.Error(t, err)
}

func TestExtractToken(t *testing.T) {
	token, err := ExtractToken("Bearer abc.def.ghi")
	require.NoError(t, err)
	assert.Equal(t, "abc.def.ghi", token)

	_, err = ExtractToken("")
	assert.Error(t, err)
	_, err = ExtractToken("Basic abc")
	assert.Error(t, err)
	_, err = ExtractToken("Bearer ")
	assert.Error(t, err)
}

func TestPasswordHashAndCheck(t *testing.T) {
	hash, err := HashPassword("Correct-horse1")
	require.NoError(t, err)
	require.NotEqual(t, "Correct-horse1", hash)

	assert.NoError(t, CheckPassword("Correct-horse1", hash))
	assert.Error(t, CheckPassword("wrong-password1", hash))
}

func TestValidatePasswordStrength(t *testing.T) {
	assert.Error(t, ValidatePasswordStrength("short1"))
	assert.Error(t, ValidatePasswordStrength("nodigitshere"))
	assert.Error(t, ValidatePasswordStrength("12345678"))
	assert.NoError(t, ValidatePasswordStrength("longenough1"))
}
