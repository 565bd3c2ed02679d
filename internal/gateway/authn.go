package gateway

// AuthRequirement enforces the route's Requirement. Missing principals and
// principals without a sufficiently scoped identity are both sent to login.
func AuthRequirement(req Request, st State) Decision {
	switch req.Requirement.Kind {
	case Authenticated:
		if !st.Authenticated() {
			return Redirect(ErrPrincipalNotResolved)
		}
	case Scoped:
		if !st.Authenticated() {
			return Redirect(ErrPrincipalNotResolved)
		}
		if !st.Principal.HasScopes(req.Requirement.Provider, req.Requirement.Scopes...) {
			return Redirect(ErrInsufficientScope)
		}
	case Public:
	}
	return Continue()
}
