package gateway

// Step is one interceptor in the chain.
type Step struct {
	Name string
	// Bookkeeping steps keep contributing session effects after an earlier
	// step chose a redirect, but never change the outcome.
	Bookkeeping bool
	Decide      func(Request, State) Decision
}

// Result is the folded outcome of a chain run.
type Result struct {
	Outcome Outcome
	Status  int
	Reason  error
	// Step names the step that chose the outcome; empty when every step allowed.
	Step string

	// ReturnTo is the session returnTo after the chain's effects.
	ReturnTo string
	// ReturnToChanged reports whether a step replaced returnTo.
	ReturnToChanged bool
	// IssueCSRFToken asks the caller to mint and store a session token.
	IssueCSRFToken bool
}

// Dirty reports whether the session needs to be written back.
func (r Result) Dirty() bool {
	return r.ReturnToChanged || r.IssueCSRFToken
}

// Location is the redirect target for redirect outcomes.
func (r Result) Location() string {
	return Location(r.Outcome, r.ReturnTo)
}

// Chain executes steps in a fixed order.
type Chain struct {
	steps []Step
}

// NewChain builds a chain from steps in execution order.
func NewChain(steps ...Step) *Chain {
	return &Chain{steps: append([]Step(nil), steps...)}
}

// DefaultChain is the gateway order: CSRF filter, authentication requirement,
// redirect-intent tracker. Reordering breaks the upload exemption and the
// returnTo bookkeeping.
func DefaultChain() *Chain {
	return NewChain(
		Step{Name: "csrf", Decide: CSRFFilter},
		Step{Name: "authn", Decide: AuthRequirement},
		Step{Name: "return_to", Bookkeeping: true, Decide: ReturnToTracker},
	)
}

// Steps returns the step names in order.
func (c *Chain) Steps() []string {
	names := make([]string, len(c.steps))
	for i, s := range c.steps {
		names[i] = s.Name
	}
	return names
}

// Evaluate runs the chain for one request. The first non-Allow outcome wins.
// Deny stops the run and discards every effect. After a redirect only
// bookkeeping steps run.
func (c *Chain) Evaluate(req Request, st State) Result {
	res := Result{Outcome: Allow, ReturnTo: st.ReturnTo}

	for _, step := range c.steps {
		if res.Outcome != Allow && !step.Bookkeeping {
			continue
		}

		d := step.Decide(req, st)

		if d.Outcome == Deny {
			return Result{
				Outcome:  Deny,
				Status:   d.Status,
				Reason:   d.Reason,
				Step:     step.Name,
				ReturnTo: st.ReturnTo,
			}
		}

		if d.SetReturnTo != nil {
			res.ReturnTo = *d.SetReturnTo
			res.ReturnToChanged = true
		}
		if d.IssueCSRFToken {
			res.IssueCSRFToken = true
		}

		if res.Outcome == Allow && d.Outcome != Allow && !step.Bookkeeping {
			res.Outcome = d.Outcome
			res.Status = d.Status
			res.Reason = d.Reason
			res.Step = step.Name
		}
	}

	return res
}
