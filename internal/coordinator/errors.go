package coordinator

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"marketdata/internal/provider"
)

var (
	// ErrNoProviderAvailable means no enabled provider supports the category.
	// It usually points at missing credentials.
	ErrNoProviderAvailable = errors.New("no provider available")

	// ErrCancelled means the caller cancelled the fetch. It is never a provider error.
	ErrCancelled = errors.New("fetch cancelled")

	// ErrAllProvidersFailed matches every *AllProvidersFailedError.
	ErrAllProvidersFailed = errors.New("all providers failed")

	// ErrRateLimited is recorded when the local per-provider quota is used up
	// and the provider was skipped without a call.
	ErrRateLimited = errors.New("local rate limit exhausted")
)

// Outcome classifies one provider attempt.
type Outcome string

const (
	OutcomeSuccess       Outcome = "success"
	OutcomeProviderError Outcome = "provider_error"
	OutcomeRateLimited   Outcome = "rate_limited"
	OutcomeTimeout       Outcome = "timeout"
)

// Attempt records one provider try within a single fetch.
type Attempt struct {
	Provider string
	Category provider.Category
	Outcome  Outcome
	Err      error
	Duration time.Duration
}

// MarshalJSON renders the error as a string.
func (a Attempt) MarshalJSON() ([]byte, error) {
	var msg string
	if a.Err != nil {
		msg = a.Err.Error()
	}
	return json.Marshal(struct {
		Provider   string            `json:"provider"`
		Category   provider.Category `json:"category"`
		Outcome    Outcome           `json:"outcome"`
		Error      string            `json:"error,omitempty"`
		DurationMS int64             `json:"duration_ms"`
	}{a.Provider, a.Category, a.Outcome, msg, a.Duration.Milliseconds()})
}

// AllProvidersFailedError is returned when every provider in the chain was
// tried and none succeeded. Attempts holds one entry per provider, in chain order.
type AllProvidersFailedError struct {
	Category provider.Category
	Attempts []Attempt
}

func (e *AllProvidersFailedError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "all providers failed for %s", e.Category)
	for i, a := range e.Attempts {
		if i == 0 {
			b.WriteString(": ")
		} else {
			b.WriteString("; ")
		}
		fmt.Fprintf(&b, "%s=%s", a.Provider, a.Outcome)
		if a.Err != nil {
			fmt.Fprintf(&b, " (%v)", a.Err)
		}
	}
	return b.String()
}

// Is lets errors.Is(err, ErrAllProvidersFailed) match.
func (e *AllProvidersFailedError) Is(target error) bool {
	return target == ErrAllProvidersFailed
}

func cancelled(cause error) error {
	return fmt.Errorf("%w: %w", ErrCancelled, cause)
}
