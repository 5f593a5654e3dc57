package tokens

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/pickflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/pickflow-backend/pkg/errors"
	"github.com/angelmondragon/pickflow-backend/pkg/logger"
)

const defaultRefreshTimeout = 20 * time.Second

// CredentialStore loads and persists decrypted tenant credentials.
type CredentialStore interface {
	Load(ctx context.Context, tenantID uuid.UUID) (*TokenData, error)
	Save(ctx context.Context, tenantID uuid.UUID, token TokenData) error
}

// Refresher exchanges a refresh token for a new credential.
type Refresher interface {
	Refresh(ctx context.Context, current TokenData) (TokenData, error)
}

// ManagerParams wires the token manager.
type ManagerParams struct {
	Store          CredentialStore
	Refresher      Refresher
	Logger         *logger.Logger
	RefreshBuffer  time.Duration
	RefreshTimeout time.Duration
}

// Manager hands out valid access tokens and collapses concurrent refreshes for the
// same tenant and provider into one outbound call.
type Manager struct {
	store          CredentialStore
	refresher      Refresher
	logg           *logger.Logger
	buffer         time.Duration
	refreshTimeout time.Duration
	now            func() time.Time

	mu       sync.Mutex
	inflight map[string]*refreshCall
}

type refreshCall struct {
	done  chan struct{}
	token TokenData
	err   error
}

// NewManager validates dependencies and builds a Manager.
func NewManager(params ManagerParams) (*Manager, error) {
	if params.Store == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "credential store required")
	}
	if params.Refresher == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refresher required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "logger required")
	}
	buffer := params.RefreshBuffer
	if buffer <= 0 {
		buffer = DefaultRefreshBuffer
	}
	timeout := params.RefreshTimeout
	if timeout <= 0 {
		timeout = defaultRefreshTimeout
	}
	return &Manager{
		store:          params.Store,
		refresher:      params.Refresher,
		logg:           params.Logger,
		buffer:         buffer,
		refreshTimeout: timeout,
		now:            time.Now,
		inflight:       map[string]*refreshCall{},
	}, nil
}

func refreshKey(tenantID uuid.UUID, provider enums.Provider) string {
	return tenantID.String() + ":" + string(provider)
}

// GetValidToken returns a credential with more than the refresh buffer left,
// refreshing it when needed.
func (m *Manager) GetValidToken(ctx context.Context, tenantID uuid.UUID, provider enums.Provider) (TokenData, error) {
	ctx = m.logg.WithTenantID(ctx, tenantID.String())
	ctx = m.logg.WithProvider(ctx, string(provider))

	current, err := m.load(ctx, tenantID, provider)
	if err != nil {
		return TokenData{}, err
	}
	if current.IsFresh(m.now(), m.buffer) {
		return *current, nil
	}

	key := refreshKey(tenantID, provider)
	m.mu.Lock()
	if call, ok := m.inflight[key]; ok {
		m.mu.Unlock()
		return m.wait(ctx, call)
	}
	call := &refreshCall{
		done: make(chan struct{}),
		err:  pkgerrors.New(pkgerrors.CodeForbidden, "token refresh aborted"),
	}
	m.inflight[key] = call
	m.mu.Unlock()

	go m.runRefresh(ctx, key, call, tenantID, provider)
	return m.wait(ctx, call)
}

func (m *Manager) wait(ctx context.Context, call *refreshCall) (TokenData, error) {
	select {
	case <-call.done:
		return call.token, call.err
	case <-ctx.Done():
		return TokenData{}, ctx.Err()
	}
}

// runRefresh is detached from the caller's cancellation so an abandoned leader
// does not fail every waiter.
func (m *Manager) runRefresh(ctx context.Context, key string, call *refreshCall, tenantID uuid.UUID, provider enums.Provider) {
	defer func() {
		if r := recover(); r != nil {
			m.logg.Error(ctx, "token refresh panicked", fmt.Errorf("panic: %v", r))
		}
		m.mu.Lock()
		delete(m.inflight, key)
		m.mu.Unlock()
		close(call.done)
	}()

	refreshCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.refreshTimeout)
	defer cancel()
	call.token, call.err = m.refresh(refreshCtx, tenantID, provider)
}

func (m *Manager) refresh(ctx context.Context, tenantID uuid.UUID, provider enums.Provider) (TokenData, error) {
	// Another refresh may have landed between the freshness check and taking the
	// in-flight slot; its refresh token has already been rotated.
	current, err := m.load(ctx, tenantID, provider)
	if err != nil {
		return TokenData{}, err
	}
	if current.IsFresh(m.now(), m.buffer) {
		return *current, nil
	}

	m.logg.Info(ctx, "refreshing provider token")
	next, err := m.refresher.Refresh(ctx, *current)
	if err != nil {
		if errors.Is(err, ErrGrantRevoked) {
			m.logg.Warn(ctx, "provider refresh token revoked")
			return TokenData{}, pkgerrors.Wrap(pkgerrors.CodeReauthRequired, err, "provider connection revoked").
				WithDetails(map[string]any{"provider": provider})
		}
		m.logg.Error(ctx, "provider token refresh failed", err)
		return TokenData{}, pkgerrors.Wrap(pkgerrors.CodeForbidden, err, "provider token refresh failed")
	}
	if next.Provider != provider {
		return TokenData{}, pkgerrors.New(pkgerrors.CodeForbidden, "refresh returned credential for another provider")
	}

	if err := m.store.Save(ctx, tenantID, next); err != nil {
		return TokenData{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist refreshed token")
	}
	return next, nil
}

func (m *Manager) load(ctx context.Context, tenantID uuid.UUID, provider enums.Provider) (*TokenData, error) {
	current, err := m.store.Load(ctx, tenantID)
	switch {
	case errors.Is(err, ErrNoCredential):
		return nil, pkgerrors.New(pkgerrors.CodeReauthRequired, "no provider connection").
			WithDetails(map[string]any{"provider": provider})
	case err != nil && isDecodeFailure(err):
		m.logg.Error(ctx, "stored credential unreadable", err)
		return nil, pkgerrors.Wrap(pkgerrors.CodeReauthRequired, err, "stored credential unreadable")
	case err != nil:
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load credential")
	}
	if current.Provider != provider {
		return nil, pkgerrors.New(pkgerrors.CodeReauthRequired, "tenant is connected to a different provider").
			WithDetails(map[string]any{"provider": provider, "connected": current.Provider})
	}
	return current, nil
}

// errUnreadableCredential wraps decrypt and decode failures from a store.
var errUnreadableCredential = errors.New("unreadable credential")

func isDecodeFailure(err error) bool {
	return errors.Is(err, errUnreadableCredential) || errors.Is(err, errInvalidTokenData)
}
