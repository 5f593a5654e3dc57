package tokens

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/oauth2"

	"github.com/angelmondragon/pickflow-backend/pkg/config"
	"github.com/angelmondragon/pickflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/pickflow-backend/pkg/errors"
	"github.com/angelmondragon/pickflow-backend/pkg/logger"
	"github.com/angelmondragon/pickflow-backend/pkg/xero"
)

const defaultStateTTL = 10 * time.Minute

// StateStore keeps pending OAuth connect attempts.
type StateStore interface {
	StoreOAuthState(ctx context.Context, state, payload string, ttl time.Duration) error
	ConsumeOAuthState(ctx context.Context, state string) (string, error)
}

// XeroConnections lists the organisations a Xero access token can reach.
type XeroConnections interface {
	Connections(ctx context.Context, accessToken string) ([]xero.Connection, error)
}

type credentialWriter interface {
	Save(ctx context.Context, tenantID uuid.UUID, token TokenData) error
	Clear(ctx context.Context, tenantID uuid.UUID) error
}

// ConnectorParams wires the OAuth connect flow.
type ConnectorParams struct {
	Store      credentialWriter
	States     StateStore
	Xero       XeroConnections
	QBO        config.QBOConfig
	XeroConfig config.XeroConfig
	StateTTL   time.Duration
	HTTPClient *http.Client
	Logger     *logger.Logger
}

// Connector runs the authorization-code flow that links a tenant to a provider.
type Connector struct {
	store      credentialWriter
	states     StateStore
	xero       XeroConnections
	configs    map[enums.Provider]*oauth2.Config
	stateTTL   time.Duration
	httpClient *http.Client
	logg       *logger.Logger
	now        func() time.Time
}

// CallbackParams are the query values a provider redirects back with.
type CallbackParams struct {
	State   string
	Code    string
	RealmID string
}

type pendingConnect struct {
	TenantID uuid.UUID      `json:"tenant_id"`
	Provider enums.Provider `json:"provider"`
}

func NewConnector(params ConnectorParams) (*Connector, error) {
	if params.Store == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "credential store required")
	}
	if params.States == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "state store required")
	}
	if params.Xero == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "xero connections client required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "logger required")
	}
	ttl := params.StateTTL
	if ttl <= 0 {
		ttl = defaultStateTTL
	}
	return &Connector{
		store:      params.Store,
		states:     params.States,
		xero:       params.Xero,
		configs:    OAuthConfigs(params.QBO, params.XeroConfig),
		stateTTL:   ttl,
		httpClient: params.HTTPClient,
		logg:       params.Logger,
		now:        time.Now,
	}, nil
}

// AuthorizeURL starts a connect attempt and returns the provider consent URL.
func (c *Connector) AuthorizeURL(ctx context.Context, tenantID uuid.UUID, provider enums.Provider) (string, error) {
	conf, ok := c.configs[provider]
	if !ok {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "unsupported provider")
	}
	state, err := randomState()
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate oauth state")
	}
	payload, err := json.Marshal(pendingConnect{TenantID: tenantID, Provider: provider})
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode oauth state")
	}
	if err := c.states.StoreOAuthState(ctx, state, string(payload), c.stateTTL); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store oauth state")
	}
	return conf.AuthCodeURL(state), nil
}

// Complete exchanges the authorization code and stores the tenant's new
// credential. Any previous connection, including one to the other provider, is
// replaced.
func (c *Connector) Complete(ctx context.Context, params CallbackParams) (uuid.UUID, enums.Provider, error) {
	if strings.TrimSpace(params.State) == "" || strings.TrimSpace(params.Code) == "" {
		return uuid.Nil, "", pkgerrors.New(pkgerrors.CodeValidation, "state and code are required")
	}
	raw, err := c.states.ConsumeOAuthState(ctx, params.State)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return uuid.Nil, "", pkgerrors.New(pkgerrors.CodeValidation, "unknown or expired oauth state")
		}
		return uuid.Nil, "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load oauth state")
	}
	var pending pendingConnect
	if err := json.Unmarshal([]byte(raw), &pending); err != nil {
		return uuid.Nil, "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode oauth state")
	}
	ctx = c.logg.WithTenantID(ctx, pending.TenantID.String())
	ctx = c.logg.WithProvider(ctx, string(pending.Provider))

	conf, ok := c.configs[pending.Provider]
	if !ok {
		return uuid.Nil, "", pkgerrors.New(pkgerrors.CodeValidation, "unsupported provider")
	}
	if c.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	}
	tok, err := conf.Exchange(ctx, params.Code)
	if err != nil {
		c.logg.Error(ctx, "oauth code exchange failed", err)
		return uuid.Nil, "", pkgerrors.Wrap(pkgerrors.CodeForbidden, err, "authorization code exchange failed")
	}

	accountID, err := c.remoteAccountID(ctx, pending.Provider, tok, params.RealmID)
	if err != nil {
		return uuid.Nil, "", err
	}
	data, err := fromOAuthToken(pending.Provider, tok, accountID, c.now())
	if err != nil {
		return uuid.Nil, "", pkgerrors.Wrap(pkgerrors.CodeForbidden, err, "token response unusable")
	}
	if err := c.store.Save(ctx, pending.TenantID, data); err != nil {
		return uuid.Nil, "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store credential")
	}
	c.logg.Info(ctx, "provider connected")
	return pending.TenantID, pending.Provider, nil
}

// Disconnect drops the tenant's provider connection.
func (c *Connector) Disconnect(ctx context.Context, tenantID uuid.UUID) error {
	if err := c.store.Clear(ctx, tenantID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear credential")
	}
	return nil
}

func (c *Connector) remoteAccountID(ctx context.Context, provider enums.Provider, tok *oauth2.Token, realmID string) (string, error) {
	switch provider {
	case enums.ProviderQBO:
		if strings.TrimSpace(realmID) == "" {
			return "", pkgerrors.New(pkgerrors.CodeValidation, "realmId is required for quickbooks")
		}
		return realmID, nil
	case enums.ProviderXero:
		conns, err := c.xero.Connections(ctx, tok.AccessToken)
		if err != nil {
			return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list xero connections")
		}
		for _, conn := range conns {
			if strings.EqualFold(conn.TenantType, "ORGANISATION") {
				return conn.TenantID, nil
			}
		}
		return "", pkgerrors.New(pkgerrors.CodeValidation, "no xero organisation authorised")
	default:
		return "", pkgerrors.New(pkgerrors.CodeValidation, "unsupported provider")
	}
}

func randomState() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
