package tokens

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/pickflow-backend/pkg/enums"
)

func TestQBOTokenExpiryIsRelativeToCreation(t *testing.T) {
	created := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	token := NewQBOTokenData(QBOToken{
		AccessToken:  "a",
		RefreshToken: "r",
		ExpiresIn:    3600,
		RealmID:      "realm-1",
		CreatedAt:    created,
	})

	assert.Equal(t, created.Add(time.Hour), token.ExpiresAt())
	assert.True(t, token.IsFresh(created.Add(54*time.Minute), DefaultRefreshBuffer))
	assert.False(t, token.IsFresh(created.Add(56*time.Minute), DefaultRefreshBuffer))
	assert.Equal(t, "realm-1", token.RemoteAccountID())
}

func TestXeroTokenFreshnessBuffer(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	fourMinutes := xeroToken("a", now.Add(4*time.Minute))
	sixMinutes := xeroToken("a", now.Add(6*time.Minute))

	assert.False(t, fourMinutes.IsFresh(now, DefaultRefreshBuffer))
	assert.True(t, sixMinutes.IsFresh(now, DefaultRefreshBuffer))
}

func TestTokenWithoutAccessTokenIsNeverFresh(t *testing.T) {
	now := time.Now()
	token := xeroToken("", now.Add(time.Hour))
	assert.False(t, token.IsFresh(now, DefaultRefreshBuffer))
}

func TestValidateRejectsMismatchedVariant(t *testing.T) {
	bad := TokenData{Provider: enums.ProviderQBO, Xero: &XeroToken{TenantID: "x"}}
	assert.ErrorIs(t, bad.Validate(), errInvalidTokenData)

	both := TokenData{Provider: enums.ProviderXero, QBO: &QBOToken{RealmID: "r"}, Xero: &XeroToken{TenantID: "x"}}
	assert.ErrorIs(t, both.Validate(), errInvalidTokenData)

	unknown := TokenData{Provider: "sage"}
	assert.ErrorIs(t, unknown.Validate(), errInvalidTokenData)

	noRealm := NewQBOTokenData(QBOToken{AccessToken: "a"})
	assert.ErrorIs(t, noRealm.Validate(), errInvalidTokenData)
}

func TestTokenDataJSONKeepsDiscriminant(t *testing.T) {
	original := xeroToken("a", time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC))

	raw, err := json.Marshal(original)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"provider":"xero"`)
	assert.NotContains(t, string(raw), `"qbo"`)

	var decoded TokenData
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.NoError(t, decoded.Validate())
	assert.Equal(t, original.ExpiresAt(), decoded.ExpiresAt())
}
