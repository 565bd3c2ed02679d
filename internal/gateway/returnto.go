package gateway

import "strings"

const (
	signupPath  = "/signup"
	accountPath = "/account"
	authPrefix  = "/auth"
	apiPrefix   = "/api"
)

// ShouldRecordReturnTo reports whether a visit to path becomes the session's returnTo.
//
// Anonymous visitors: every page except the login, signup and /auth* entry points
// and anything that looks like a file. Signed-in visitors: only /account and /api*,
// which is where an OAuth re-consent round trip starts from.
func ShouldRecordReturnTo(path string, authenticated bool) bool {
	if !authenticated {
		return path != LoginPath &&
			path != signupPath &&
			!strings.HasPrefix(path, authPrefix) &&
			!strings.Contains(path, ".")
	}
	return path == accountPath || strings.HasPrefix(path, apiPrefix)
}

// ReturnToTracker records the full request URI as returnTo when the visit qualifies.
func ReturnToTracker(req Request, st State) Decision {
	if !ShouldRecordReturnTo(req.Path, st.Authenticated()) {
		return Continue()
	}
	uri := req.URI
	if uri == "" {
		uri = req.Path
	}
	d := Continue()
	d.SetReturnTo = &uri
	return d
}
