package ai

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/aws/smithy-go"

	"github.com/hidroops/represas-insights/internal/apperr"
)

// StatusError is a non-2xx reply from a provider's REST API. It satisfies
// smithy.APIError so REST and SDK providers classify the same way.
type StatusError struct {
	Provider   string
	StatusCode int
	// Status is the provider's symbolic code, e.g. RESOURCE_EXHAUSTED.
	Status  string
	Message string
	Body    string
}

func (e *StatusError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Body
	}
	return fmt.Sprintf("%s: status %d %s: %s", e.Provider, e.StatusCode, e.Status, msg)
}

func (e *StatusError) HTTPStatusCode() int { return e.StatusCode }
func (e *StatusError) ErrorCode() string   { return e.Status }
func (e *StatusError) ErrorMessage() string {
	return e.Message
}

func (e *StatusError) ErrorFault() smithy.ErrorFault {
	if e.StatusCode >= http.StatusInternalServerError {
		return smithy.FaultServer
	}
	return smithy.FaultClient
}

var errNoCredential = errors.New("no AI provider credential configured")

var authCodes = map[string]bool{
	"AccessDeniedException":               true,
	"UnrecognizedClientException":         true,
	"InvalidSignatureException":           true,
	"IncompleteSignature":                 true,
	"ExpiredTokenException":               true,
	"MissingAuthenticationTokenException": true,
	"UNAUTHENTICATED":                     true,
	"PERMISSION_DENIED":                   true,
	"API_KEY_INVALID":                     true,
}

var throttleCodes = map[string]bool{
	"ThrottlingException":           true,
	"ServiceQuotaExceededException": true,
	"TooManyRequestsException":      true,
	"RESOURCE_EXHAUSTED":            true,
}

var authPhrases = []string{
	"api key not valid",
	"api_key_invalid",
	"invalid api key",
	"permission denied",
	"permission_denied",
	"unauthenticated",
	"security token included in the request is invalid",
	"failed to retrieve credentials",
	"failed to refresh cached credentials",
	"no ec2 imds role found",
}

var throttlePhrases = []string{
	"resource_exhausted",
	"quota",
	"rate limit",
	"too many requests",
	"throttl",
}

const (
	msgRateLimited = "El proveedor de IA rechazó la solicitud por límite de cuota"
	msgUpstream    = "Error al generar insights con el modelo"
)

// Classify maps a provider failure to the client-visible taxonomy.
// Already classified errors pass through. Structured signals (HTTP status,
// provider error code) are consulted before message text.
func Classify(err error) *apperr.Error {
	if err == nil {
		return nil
	}
	if ae, ok := apperr.As(err); ok {
		return ae
	}

	var withStatus interface{ HTTPStatusCode() int }
	if errors.As(err, &withStatus) {
		switch withStatus.HTTPStatusCode() {
		case http.StatusUnauthorized, http.StatusForbidden:
			return apperr.InvalidAPIKey(err)
		case http.StatusTooManyRequests:
			return apperr.Wrap(apperr.KindRateLimited, msgRateLimited, err)
		}
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch code := apiErr.ErrorCode(); {
		case authCodes[code]:
			return apperr.InvalidAPIKey(err)
		case throttleCodes[code]:
			return apperr.Wrap(apperr.KindRateLimited, msgRateLimited, err)
		}
	}

	text := strings.ToLower(err.Error())
	if containsAny(text, authPhrases) {
		return apperr.InvalidAPIKey(err)
	}
	if containsAny(text, throttlePhrases) {
		return apperr.Wrap(apperr.KindRateLimited, msgRateLimited, err)
	}
	return apperr.UpstreamAI(msgUpstream, err)
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
