package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
	domainauth "github.com/target/lessonhub/internal/domain/auth"
)

func TestShouldRecordReturnTo(t *testing.T) {
	tests := []struct {
		name          string
		path          string
		authenticated bool
		want          bool
	}{
		{name: "anonymous page", path: "/account", want: true},
		{name: "anonymous home", path: "/", want: true},
		{name: "anonymous subjects", path: "/subjects", want: true},
		{name: "anonymous login", path: "/login", want: false},
		{name: "anonymous signup", path: "/signup", want: false},
		{name: "anonymous auth start", path: "/auth/github", want: false},
		{name: "anonymous auth callback", path: "/auth/google/callback", want: false},
		{name: "anonymous auth prefix without slash", path: "/authors", want: false},
		{name: "anonymous asset", path: "/css/main.css", want: false},
		{name: "anonymous dotted path", path: "/favicon.ico", want: false},
		{name: "authenticated account", path: "/account", authenticated: true, want: true},
		{name: "authenticated api", path: "/api/google/drive", authenticated: true, want: true},
		{name: "authenticated api prefix", path: "/apidocs", authenticated: true, want: true},
		{name: "authenticated account subpage", path: "/account/unlink/github", authenticated: true, want: false},
		{name: "authenticated home", path: "/", authenticated: true, want: false},
		{name: "authenticated login", path: "/login", authenticated: true, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ShouldRecordReturnTo(tt.path, tt.authenticated))
		})
	}
}

func TestReturnToTracker_RecordsFullURI(t *testing.T) {
	req := Request{Method: "GET", Path: "/lessons", URI: "/lessons?page=2"}

	d := ReturnToTracker(req, State{})

	assert.Equal(t, Allow, d.Outcome)
	if assert.NotNil(t, d.SetReturnTo) {
		assert.Equal(t, "/lessons?page=2", *d.SetReturnTo)
	}
}

func TestReturnToTracker_FallsBackToPath(t *testing.T) {
	d := ReturnToTracker(Request{Method: "GET", Path: "/lessons"}, State{})

	if assert.NotNil(t, d.SetReturnTo) {
		assert.Equal(t, "/lessons", *d.SetReturnTo)
	}
}

func TestReturnToTracker_LeavesEntryPointsAlone(t *testing.T) {
	for _, path := range []string{"/login", "/signup", "/auth/github", "/auth/github/callback"} {
		d := ReturnToTracker(Request{Method: "GET", Path: path, URI: path}, State{ReturnTo: "/account"})
		assert.Nil(t, d.SetReturnTo, path)
	}
}

func TestReturnToTracker_AuthenticatedNarrowRule(t *testing.T) {
	st := State{Principal: &domainauth.Principal{ID: "p1"}}

	d := ReturnToTracker(Request{Method: "GET", Path: "/subjects", URI: "/subjects"}, st)
	assert.Nil(t, d.SetReturnTo)

	d = ReturnToTracker(Request{Method: "GET", Path: "/api/github", URI: "/api/github"}, st)
	if assert.NotNil(t, d.SetReturnTo) {
		assert.Equal(t, "/api/github", *d.SetReturnTo)
	}
}
