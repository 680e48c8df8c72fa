package softone

import "strings"

// sessionFailureMarkers are matched case-insensitively against the ERP error text.
// The ERP has no reliable code for an expired session, so this list is the contract.
var sessionFailureMarkers = []string{
	"clientid",
	"client id",
	"expired",
	"session",
	"authenticat",
	"not valid",
}

// IsSessionFailure reports whether a success=false response looks like an expired or
// invalid client id.
func IsSessionFailure(resp *Response) bool {
	if resp == nil || resp.Success {
		return false
	}
	if resp.Code == 401 || resp.Code == 403 {
		return true
	}

	message := strings.ToLower(resp.Message)
	for _, marker := range sessionFailureMarkers {
		if strings.Contains(message, marker) {
			return true
		}
	}
	return false
}
