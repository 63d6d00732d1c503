package middleware

import (
	"encoding/json"
	"net/http"

	"golang.org/x/crypto/bcrypt"
)

// ResearchSecretHeader carries the researcher shared secret.
const ResearchSecretHeader = "X-Research-Secret"

// HashResearchSecret returns the bcrypt hash to configure as research.secrethash.
func HashResearchSecret(secret string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// RequireResearchSecret admits requests whose X-Research-Secret matches
// hash. With an empty hash the wrapped routes are closed.
func RequireResearchSecret(hash string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if hash == "" {
				writeError(w, http.StatusForbidden, "Research access is disabled.")
				return
			}
			secret := r.Header.Get(ResearchSecretHeader)
			if secret == "" || bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) != nil {
				writeError(w, http.StatusUnauthorized, "Unauthorized.")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
