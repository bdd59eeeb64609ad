package logger

import "strings"

// Keys whose values are always fully redacted. Matching is substring-based
// so "klaviyo_api_key" and "encrypted_credential" are both caught.
var secretKeys = []string{
	"api_key",
	"apikey",
	"credential",
	"authorization",
	"password",
	"secret",
	"token",
}

// redactValue masks the value if the key names a secret. The first four
// characters are kept so operators can distinguish which key was in use.
func redactValue(key, val string) string {
	lower := strings.ToLower(key)
	for _, s := range secretKeys {
		if strings.Contains(lower, s) {
			if len(val) <= 4 {
				return "****"
			}
			return val[:4] + strings.Repeat("*", len(val)-4)
		}
	}
	return val
}
