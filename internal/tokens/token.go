package tokens

import (
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/pickflow-backend/pkg/enums"
)

// DefaultRefreshBuffer is how close to expiry a token may get before it is refreshed.
const DefaultRefreshBuffer = 5 * time.Minute

// TokenData is the credential for one provider connection. Exactly one of QBO or
// Xero is set and it must match Provider.
type TokenData struct {
	Provider enums.Provider `json:"provider"`
	QBO      *QBOToken      `json:"qbo,omitempty"`
	Xero     *XeroToken     `json:"xero,omitempty"`
}

// QBOToken follows the Intuit token endpoint response: lifetimes are relative to
// the moment the token was issued.
type QBOToken struct {
	AccessToken           string    `json:"access_token"`
	RefreshToken          string    `json:"refresh_token"`
	ExpiresIn             int64     `json:"expires_in"`
	RefreshTokenExpiresIn int64     `json:"x_refresh_token_expires_in,omitempty"`
	RealmID               string    `json:"realm_id"`
	CreatedAt             time.Time `json:"created_at"`
}

// XeroToken carries an absolute expiry and the connected organisation id.
type XeroToken struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	IDToken      string    `json:"id_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
	TenantID     string    `json:"tenant_id"`
	CreatedAt    time.Time `json:"created_at"`
}

var errInvalidTokenData = errors.New("invalid token data")

// NewQBOTokenData wraps a QBO token.
func NewQBOTokenData(token QBOToken) TokenData {
	return TokenData{Provider: enums.ProviderQBO, QBO: &token}
}

// NewXeroTokenData wraps a Xero token.
func NewXeroTokenData(token XeroToken) TokenData {
	return TokenData{Provider: enums.ProviderXero, Xero: &token}
}

// Validate checks the discriminant against the populated variant.
func (t TokenData) Validate() error {
	switch t.Provider {
	case enums.ProviderQBO:
		if t.QBO == nil || t.Xero != nil {
			return fmt.Errorf("%w: qbo variant missing", errInvalidTokenData)
		}
		if t.QBO.RealmID == "" {
			return fmt.Errorf("%w: realm id missing", errInvalidTokenData)
		}
	case enums.ProviderXero:
		if t.Xero == nil || t.QBO != nil {
			return fmt.Errorf("%w: xero variant missing", errInvalidTokenData)
		}
		if t.Xero.TenantID == "" {
			return fmt.Errorf("%w: tenant id missing", errInvalidTokenData)
		}
	default:
		return fmt.Errorf("%w: unknown provider %q", errInvalidTokenData, t.Provider)
	}
	return nil
}

// ExpiresAt returns the absolute expiry of the access token.
func (t TokenData) ExpiresAt() time.Time {
	switch t.Provider {
	case enums.ProviderQBO:
		if t.QBO == nil {
			return time.Time{}
		}
		return t.QBO.CreatedAt.Add(time.Duration(t.QBO.ExpiresIn) * time.Second)
	case enums.ProviderXero:
		if t.Xero == nil {
			return time.Time{}
		}
		return t.Xero.ExpiresAt
	default:
		return time.Time{}
	}
}

// IsFresh reports whether the access token outlives now by more than buffer.
func (t TokenData) IsFresh(now time.Time, buffer time.Duration) bool {
	expiry := t.ExpiresAt()
	if expiry.IsZero() || t.AccessToken() == "" {
		return false
	}
	return expiry.Sub(now) > buffer
}

// AccessToken returns the bearer token for API calls.
func (t TokenData) AccessToken() string {
	switch t.Provider {
	case enums.ProviderQBO:
		if t.QBO != nil {
			return t.QBO.AccessToken
		}
	case enums.ProviderXero:
		if t.Xero != nil {
			return t.Xero.AccessToken
		}
	}
	return ""
}

// RefreshToken returns the long-lived refresh token.
func (t TokenData) RefreshToken() string {
	switch t.Provider {
	case enums.ProviderQBO:
		if t.QBO != nil {
			return t.QBO.RefreshToken
		}
	case enums.ProviderXero:
		if t.Xero != nil {
			return t.Xero.RefreshToken
		}
	}
	return ""
}

// RemoteAccountID returns the QBO realm id or the Xero tenant id.
func (t TokenData) RemoteAccountID() string {
	switch t.Provider {
	case enums.ProviderQBO:
		if t.QBO != nil {
			return t.QBO.RealmID
		}
	case enums.ProviderXero:
		if t.Xero != nil {
			return t.Xero.TenantID
		}
	}
	return ""
}
