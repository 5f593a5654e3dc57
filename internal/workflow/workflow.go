// Package workflow holds the quote and run status rules shared by sync, webhook
// processing and the picking operations.
package workflow

import (
	"fmt"

	"github.com/angelmondragon/pickflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/pickflow-backend/pkg/errors"
)

var quoteTransitions = map[enums.QuoteStatus][]enums.QuoteStatus{
	enums.QuoteStatusPending:   {enums.QuoteStatusAssigned},
	enums.QuoteStatusAssigned:  {enums.QuoteStatusPreparing, enums.QuoteStatusPending},
	enums.QuoteStatusPreparing: {enums.QuoteStatusChecking, enums.QuoteStatusPending},
	enums.QuoteStatusChecking:  {enums.QuoteStatusCompleted, enums.QuoteStatusAssigned, enums.QuoteStatusPending, enums.QuoteStatusFinalised},
	enums.QuoteStatusCompleted: {enums.QuoteStatusFinalised},
}

var runTransitions = map[enums.RunStatus][]enums.RunStatus{
	enums.RunStatusPending:  {enums.RunStatusChecking},
	enums.RunStatusChecking: {enums.RunStatusFinalised},
}

// SkipOnSync reports whether bulk sync must leave a quote untouched. preparing
// is not protected here, unlike SkipOnWebhook.
// TODO: confirm with product whether sync should also protect preparing quotes.
func SkipOnSync(status enums.QuoteStatus) bool {
	switch status {
	case enums.QuoteStatusChecking, enums.QuoteStatusCompleted:
		return true
	default:
		return false
	}
}

// SkipOnWebhook reports whether a change notification must leave a quote
// untouched.
func SkipOnWebhook(status enums.QuoteStatus) bool {
	switch status {
	case enums.QuoteStatusPreparing, enums.QuoteStatusChecking, enums.QuoteStatusCompleted:
		return true
	default:
		return false
	}
}

// CanAddToRun reports whether a quote may join a run. Joining moves it to assigned.
func CanAddToRun(status enums.QuoteStatus) bool {
	return status == enums.QuoteStatusPending || status == enums.QuoteStatusChecking
}

// CanFinalise reports whether a quote may be written back to the provider.
func CanFinalise(status enums.QuoteStatus) bool {
	return status == enums.QuoteStatusChecking || status == enums.QuoteStatusCompleted
}

// CanTransitionQuote reports whether from -> to is a legal step.
func CanTransitionQuote(from, to enums.QuoteStatus) bool {
	for _, next := range quoteTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CheckQuoteTransition returns a state conflict error for illegal steps.
func CheckQuoteTransition(from, to enums.QuoteStatus) error {
	if !to.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid quote status %q", to))
	}
	if !CanTransitionQuote(from, to) {
		return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("quote cannot move from %s to %s", from, to)).
			WithDetails(map[string]any{"from": from, "to": to})
	}
	return nil
}

// CanTransitionRun reports whether from -> to is a legal run step.
func CanTransitionRun(from, to enums.RunStatus) bool {
	for _, next := range runTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CheckRunTransition returns a state conflict error for illegal run steps.
func CheckRunTransition(from, to enums.RunStatus) error {
	if !to.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid run status %q", to))
	}
	if !CanTransitionRun(from, to) {
		return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("run cannot move from %s to %s", from, to)).
			WithDetails(map[string]any{"from": from, "to": to})
	}
	return nil
}
