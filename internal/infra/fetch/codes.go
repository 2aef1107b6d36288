package fetch

// Provider result codes. These are the external contract of the lookup
// API, validated once at integration time and mapped into Outcome in
// exactly one place (classify).
const (
	codeOK            = 0  // data array carries the inscription
	codeNoResults     = 1  // well-formed empty result
	codeInvalidKey    = -3 // authentication rejected
	codeQuotaExceeded = -4 // daily quota or burst limit exceeded
)

// Markers the provider embeds in error messages when it signals
// rate-limiting through the payload rather than the status code.
var quotaMarkers = []string{
	"rate limit",
	"quota exceeded",
	"too many requests",
}
