package web

import (
	"crypto/subtle"
	"net"
	"net/http"
)

// isLoopback reports whether r arrived over a loopback connection, the
// condition under which read endpoints need no API key (spec.md §4.Q:
// "public if bound to loopback").
func isLoopback(r *http.Request) bool {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// checkAPIKey compares the request's X-API-Key header against apiKey in
// constant time; an empty apiKey never matches.
func checkAPIKey(r *http.Request, apiKey string) bool {
	if apiKey == "" {
		return false
	}
	got := r.Header.Get("X-API-Key")
	return subtle.ConstantTimeCompare([]byte(got), []byte(apiKey)) == 1
}

// requireRead gates a read endpoint: allowed if the connection is
// loopback, or if it carries a valid X-API-Key (spec.md §4.Q).
func (s *Server) requireRead(w http.ResponseWriter, r *http.Request) bool {
	if isLoopback(r) {
		return true
	}
	if checkAPIKey(r, s.Config.APIKey) {
		return true
	}
	writeError(w, invalidAuth("missing or invalid X-API-Key"))
	return false
}

// requireControl gates a write endpoint: always requires a valid
// X-API-Key (even over loopback — control actions are never implicitly
// trusted) and web.allow_control=true (spec.md §4.Q).
func (s *Server) requireControl(w http.ResponseWriter, r *http.Request) bool {
	if !s.Config.AllowControl {
		writeError(w, &apiError{Status: 403, Message: "control endpoints are disabled (web.allow_control=false)"})
		return false
	}
	if !checkAPIKey(r, s.Config.APIKey) {
		writeError(w, invalidAuth("missing or invalid X-API-Key"))
		return false
	}
	return true
}

func invalidAuth(msg string) *apiError {
	return &apiError{Status: 401, Message: msg}
}
