package controllers

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/pickflow-backend/api/responses"
	"github.com/angelmondragon/pickflow-backend/internal/tokens"
	"github.com/angelmondragon/pickflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/pickflow-backend/pkg/errors"
	"github.com/angelmondragon/pickflow-backend/pkg/logger"
)

type ConnectionService interface {
	AuthorizeURL(ctx context.Context, tenantID uuid.UUID, provider enums.Provider) (string, error)
	Complete(ctx context.Context, params tokens.CallbackParams) (uuid.UUID, enums.Provider, error)
	Disconnect(ctx context.Context, tenantID uuid.UUID) error
}

// StartConnection returns the consent URL the client should open to connect
// the tenant to {provider}.
func StartConnection(svc ConnectionService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, err := tenantFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		provider, err := enums.ParseProvider(chi.URLParam(r, "provider"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid provider"))
			return
		}
		authURL, err := svc.AuthorizeURL(r.Context(), tenantID, provider)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"authorize_url": authURL})
	}
}

// ConnectionCallback receives the provider redirect. The browser is sent on to
// redirectURL with ?connected= or ?error= appended.
func ConnectionCallback(svc ConnectionService, redirectURL string, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		if denied := strings.TrimSpace(query.Get("error")); denied != "" {
			http.Redirect(w, r, withQuery(redirectURL, "error", denied), http.StatusFound)
			return
		}

		_, provider, err := svc.Complete(r.Context(), tokens.CallbackParams{
			State:   query.Get("state"),
			Code:    query.Get("code"),
			RealmID: query.Get("realmId"),
		})
		if err != nil {
			if logg != nil {
				logg.Error(r.Context(), "provider connect failed", err)
			}
			code := pkgerrors.CodeInternal
			if typed := pkgerrors.As(err); typed != nil {
				code = typed.Code()
			}
			http.Redirect(w, r, withQuery(redirectURL, "error", strings.ToLower(string(code))), http.StatusFound)
			return
		}
		http.Redirect(w, r, withQuery(redirectURL, "connected", provider.String()), http.StatusFound)
	}
}

func Disconnect(svc ConnectionService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, err := tenantFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.Disconnect(r.Context(), tenantID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func withQuery(base, key, value string) string {
	u, err := url.Parse(base)
	if err != nil {
		return base
	}
	q := u.Query()
	q.Set(key, value)
	u.RawQuery = q.Encode()
	return u.String()
}
