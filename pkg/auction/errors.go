package auction

import "errors"

// Click and rotation failure taxonomy. Precondition failures leave no side
// effects; ErrContended is retryable by the caller with backoff.
var (
	ErrUnauthenticated        = errors.New("unauthenticated")
	ErrInsufficientCredits    = errors.New("insufficient credits")
	ErrFraudBlocked           = errors.New("click blocked by fraud heuristics")
	ErrGameNotFound           = errors.New("game not found")
	ErrGameNotAcceptingClicks = errors.New("game is not accepting clicks")
	ErrContended              = errors.New("game or account contended, retry")
	ErrPersistenceFailure     = errors.New("persistence failure")
)

// Reason returns the human-readable reason reported to the caller of
// ProcessClick. Every click that reaches the pipeline gets a definitive
// outcome; there is no silently-dropped case.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnauthenticated):
		return "you must be signed in to click"
	case errors.Is(err, ErrInsufficientCredits):
		return "not enough credits"
	case errors.Is(err, ErrFraudBlocked):
		return "click rejected"
	case errors.Is(err, ErrGameNotFound):
		return "game not found"
	case errors.Is(err, ErrGameNotAcceptingClicks):
		return "this game is not accepting clicks"
	case errors.Is(err, ErrContended):
		return "too much traffic, try again"
	default:
		return "something went wrong, your credit was not spent"
	}
}
