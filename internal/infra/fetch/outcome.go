package fetch

import "time"

// Kind classifies the result of one block lookup. Classification
// happens once, here at the provider boundary; callers switch on the
// tag instead of matching error strings.
type Kind int

const (
	// KindFound means the block carries an inscription.
	KindFound Kind = iota
	// KindNotFound is a well-formed "zero results" response. It is a
	// legitimate terminal outcome, not an error.
	KindNotFound
	// KindRetryable covers transport errors, timeouts, malformed
	// payloads and other transient failures.
	KindRetryable
	// KindQuotaHit is explicit rate-limit signaling from the provider.
	// It carries a long cooldown and never consumes a retry attempt.
	KindQuotaHit
	// KindFatal is an authentication rejection. The block is skipped
	// without burning retries on a broken credential.
	KindFatal
)

func (k Kind) String() string {
	switch k {
	case KindFound:
		return "found"
	case KindNotFound:
		return "not_found"
	case KindRetryable:
		return "retryable"
	case KindQuotaHit:
		return "quota_hit"
	case KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Outcome is the tagged result of Fetch.
type Outcome struct {
	Kind          Kind
	InscriptionID string
	Sat           int64 // domain.SatUnknown when the payload omits it
	Err           error
	Cooldown      time.Duration // recommended pause, set on KindQuotaHit
}
