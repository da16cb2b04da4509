package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key-minimum-32-characters-long"

func TestGenerateAndValidateJWT(t *testing.T) {
	token, err := GenerateJWT("op-1", "tenant-a", RoleOperator, testSecret, time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := ValidateJWT(token, testSecret)
	require.NoError(t, err)
	assert.Equal(t, "op-1", claims.Subject)
	assert.Equal(t, "tenant-a", claims.TenantID)
	assert.Equal(t, RoleOperator, claims.Role)
	assert.True(t, claims.IsOperator())
}

func TestValidateJWTRejects(t *testing.T) {
	valid, err := GenerateJWT("op-1", "tenant-a", RoleAdmin, testSecret, time.Hour)
	require.NoError(t, err)
	expired, err := GenerateJWT("op-1", "tenant-a", RoleAdmin, testSecret, -time.Minute)
	require.NoError(t, err)
	noTenant, err := GenerateJWT("op-1", "", RoleAdmin, testSecret, time.Hour)
	require.NoError(t, err)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{TenantID: "tenant-a", Role: RoleAdmin})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name   string
		token  string
		secret string
	}{
		{"garbage", "invalid.token.here", testSecret},
		{"empty", "", testSecret},
		{"wrong secret", valid, "another-secret-key-minimum-32-characters"},
		{"expired", expired, testSecret},
		{"missing tenant", noTenant, testSecret},
		{"alg none", unsigned, testSecret},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ValidateJWT(tt.token, tt.secret)
			assert.Error(t, err)
		})
	}
}

func TestClaimsIsOperator(t *testing.T) {
	assert.True(t, (&Claims{Role: RoleAdmin}).IsOperator())
	assert.True(t, (&Claims{Role: RoleOperator}).IsOperator())
	assert.False(t, (&Claims{Role: "viewer"}).IsOperator())
	assert.False(t, (&Claims{}).IsOperator())
}

func TestHashAndCheckSecret(t *testing.T) {
	hashed, err := HashSecret("runner-secret")
	require.NoError(t, err)
	assert.NotEqual(t, "runner-secret", hashed)

	again, err := HashSecret("runner-secret")
	require.NoError(t, err)
	assert.NotEqual(t, hashed, again, "bcrypt salts every hash")

	assert.True(t, CheckSecret(hashed, "runner-secret"))
	assert.False(t, CheckSecret(hashed, "wrong"))
	assert.False(t, CheckSecret(hashed, ""))
	assert.False(t, CheckSecret("", "runner-secret"))
}
