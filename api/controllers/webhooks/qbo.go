package webhooks

import (
	"context"
	"io"
	"net/http"

	"go.uber.org/multierr"

	"github.com/angelmondragon/pickflow-backend/api/responses"
	qbowebhook "github.com/angelmondragon/pickflow-backend/internal/webhooks/qbo"
	"github.com/angelmondragon/pickflow-backend/internal/webhooks/reconciler"
	pkgerrors "github.com/angelmondragon/pickflow-backend/pkg/errors"
	"github.com/angelmondragon/pickflow-backend/pkg/logger"
)

const maxWebhookBody = 1 << 20

type NotificationProcessor interface {
	ProcessNotification(ctx context.Context, n reconciler.Notification) error
}

// EventGuard remembers which entity changes were already processed.
type EventGuard interface {
	CheckAndMark(ctx context.Context, eventKey string) (bool, error)
	Delete(ctx context.Context, eventKey string) error
}

// QBOWebhook handles QuickBooks data change notifications. Changes already
// processed are dropped; when processing fails the marks of the notification
// are cleared so the redelivery is handled again.
func QBOWebhook(svc NotificationProcessor, verifierToken string, guard EventGuard, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}
		if guard == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "idempotency guard unavailable"))
			return
		}

		payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		sigHeader := r.Header.Get(qbowebhook.SignatureHeader)
		if sigHeader == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "intuit signature missing"))
			return
		}
		if !qbowebhook.VerifySignature(payload, verifierToken, sigHeader) {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid intuit signature"))
			return
		}

		notifications, err := qbowebhook.Decode(payload)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var errs error
		for _, n := range notifications {
			fresh, marked, err := dropSeen(ctx, guard, logg, n)
			if err != nil {
				errs = multierr.Append(errs, err)
				continue
			}
			if len(fresh.Events) == 0 {
				continue
			}
			if err := process(ctx, svc, guard, logg, fresh, marked); err != nil {
				errs = multierr.Append(errs, err)
			}
		}

		if errs != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, errs, "process webhook"))
			return
		}
		responses.WriteSuccess(w, nil)
	}
}

// process runs one notification. Its marks are cleared unless it succeeds,
// including when it panics, so QBO's redelivery is not dropped as seen.
func process(ctx context.Context, svc NotificationProcessor, guard EventGuard, logg *logger.Logger, n reconciler.Notification, marked []string) error {
	done := false
	defer func() {
		if !done {
			clearMarks(ctx, guard, logg, marked)
		}
	}()
	if err := svc.ProcessNotification(ctx, n); err != nil {
		return err
	}
	done = true
	return nil
}

func dropSeen(ctx context.Context, guard EventGuard, logg *logger.Logger, n reconciler.Notification) (reconciler.Notification, []string, error) {
	fresh := n
	fresh.Events = make([]reconciler.Event, 0, len(n.Events))
	marked := make([]string, 0, len(n.Events))
	for _, event := range n.Events {
		key := qbowebhook.EventKey(n.RemoteAccountID, event)
		seen, err := guard.CheckAndMark(ctx, key)
		if err != nil {
			clearMarks(ctx, guard, logg, marked)
			return n, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency")
		}
		if seen {
			continue
		}
		marked = append(marked, key)
		fresh.Events = append(fresh.Events, event)
	}
	return fresh, marked, nil
}

// clearMarks forgets processed marks. A mark left behind makes QBO's
// redelivery look already handled until its TTL expires.
func clearMarks(ctx context.Context, guard EventGuard, logg *logger.Logger, keys []string) {
	for _, key := range keys {
		if err := guard.Delete(ctx, key); err != nil && logg != nil {
			logg.Warn(logg.WithFields(ctx, map[string]any{"event_key": key, "error": err.Error()}), "failed to clear webhook mark")
		}
	}
}
