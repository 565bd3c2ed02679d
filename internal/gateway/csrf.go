package gateway

import (
	"crypto/subtle"
	"net/http"
)

// UploadPath is the one route the CSRF filter skips: its multipart body must be
// parsed before a token can be read, so the upload handler checks the token itself.
const UploadPath = "/api/upload"

// CSRFApplies reports whether the CSRF filter runs for path.
func CSRFApplies(path string) bool {
	return path != UploadPath
}

// CSRFFilter checks the submitted token against the session-bound token on
// state-changing requests. Safe requests pass; a session without a token asks
// for one to be issued so the next form can carry it.
func CSRFFilter(req Request, st State) Decision {
	if !CSRFApplies(req.Path) {
		return Continue()
	}

	d := Continue()
	d.IssueCSRFToken = st.CSRFToken == ""

	if !req.IsStateChanging() {
		return d
	}
	if !TokensMatch(st.CSRFToken, req.submitted()) {
		return Reject(http.StatusForbidden, ErrCSRFMismatch)
	}
	return d
}

// TokensMatch compares an issued token with a submitted one in constant time.
// An empty issued token never matches.
func TokensMatch(issued, submitted string) bool {
	if issued == "" || submitted == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(issued), []byte(submitted)) == 1
}
