package api

import (
	"crypto/subtle"
	"fmt"
	"net/http"

	"github.com/AaronLay10/orle/internal/config"
)

// Options configures credentials and TLS for the status API.
type Options struct {
	User     string
	Password string
	TLS      TLSFiles
}

// OptionsFromEnv reads ORLE_API_USER and ORLE_API_PASS (or their *_FILE variants)
// and ORLE_TLS_CERT and ORLE_TLS_KEY.
func OptionsFromEnv() (Options, error) {
	user, err := config.ResolveSecret("ORLE_API_USER")
	if err != nil {
		return Options{}, fmt.Errorf("failed to resolve ORLE_API_USER: %w", err)
	}
	pass, err := config.ResolveSecret("ORLE_API_PASS")
	if err != nil {
		return Options{}, fmt.Errorf("failed to resolve ORLE_API_PASS: %w", err)
	}
	return Options{User: user, Password: pass, TLS: TLSFilesFromEnv()}, nil
}

// AuthEnabled returns true if both user and password are set.
func (o Options) AuthEnabled() bool {
	return o.User != "" && o.Password != ""
}

// authenticate checks basic auth credentials. No configured credentials means open access.
func (o Options) authenticate(r *http.Request) bool {
	if !o.AuthEnabled() {
		return true
	}
	user, pass, ok := r.BasicAuth()
	if !ok {
		return false
	}
	return secureCompare(user, o.User) && secureCompare(pass, o.Password)
}

// secureCompare performs constant-time string comparison to prevent timing attacks.
func secureCompare(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (o Options) requireAuth(handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !o.authenticate(r) {
			w.Header().Set("WWW-Authenticate", `Basic realm="orle"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		handler(w, r)
	}
}
