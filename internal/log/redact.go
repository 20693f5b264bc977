package log

// Prefix returns the first n bytes of a secret followed by an ellipsis so
// tokens and fingerprints can be correlated in logs without being leaked.
func Prefix(secret string, n int) string {
	if secret == "" {
		return ""
	}
	if n <= 0 || len(secret) <= n {
		return "..."
	}
	return secret[:n] + "..."
}
