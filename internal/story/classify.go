package story

import "strings"

// FailureKind buckets backend failures into the categories the UI can
// say something useful about.
type FailureKind int

const (
	FailureUnknown FailureKind = iota
	FailureInvalidCredential
	FailureQuotaExceeded
	FailureNetworkUnavailable
	FailureRejectedRequest
	FailureBackendUnavailable
)

// String returns the kind name for logging.
func (k FailureKind) String() string {
	switch k {
	case FailureInvalidCredential:
		return "invalid_credential"
	case FailureQuotaExceeded:
		return "quota_exceeded"
	case FailureNetworkUnavailable:
		return "network_unavailable"
	case FailureRejectedRequest:
		return "rejected_request"
	case FailureBackendUnavailable:
		return "backend_unavailable"
	default:
		return "unknown"
	}
}

// classifierRules are checked top to bottom against the lowercased
// error text; the first match wins.
var classifierRules = []struct {
	substrings []string
	kind       FailureKind
}{
	{[]string{"api key not valid"}, FailureInvalidCredential},
	{[]string{"quota"}, FailureQuotaExceeded},
	{[]string{"network error", "failed to fetch"}, FailureNetworkUnavailable},
	{[]string{"400"}, FailureRejectedRequest},
	{[]string{"500", "503"}, FailureBackendUnavailable},
}

// Classify maps a backend error onto a FailureKind by case-insensitive
// substring matching. Provider SDKs flatten status codes and messages
// into the error text, which is the only surface common to all three.
func Classify(err error) FailureKind {
	if err == nil {
		return FailureUnknown
	}
	message := strings.ToLower(err.Error())
	for _, rule := range classifierRules {
		for _, substring := range rule.substrings {
			if strings.Contains(message, substring) {
				return rule.kind
			}
		}
	}
	return FailureUnknown
}

// UserMessage renders a failure as a single line fit for the transcript.
// Unknown failures pass the underlying message through.
func UserMessage(err error) string {
	switch Classify(err) {
	case FailureInvalidCredential:
		return "The API key was rejected. Check your credentials before continuing."
	case FailureQuotaExceeded:
		return "The provider's quota is exhausted. Try again later."
	case FailureNetworkUnavailable:
		return "The network is unreachable. Check your connection and try again."
	case FailureRejectedRequest:
		return "The provider rejected the request. Try rewording your last turn."
	case FailureBackendUnavailable:
		return "The model service is having trouble right now. Try again in a moment."
	default:
		return err.Error()
	}
}
