package logger

// RedactSecret masks a credential for safe logging.
// "AIzaSyD3xample" → "AI***le"
// Short values (≤6 chars) are fully masked: "abc" → "***"
func RedactSecret(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 6 {
		return "***"
	}
	return secret[:2] + "***" + secret[len(secret)-2:]
}
