// Package mocks provides gomock implementations of the auth ports.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	repo := mocks.NewMockPrincipalRepository(ctrl)
//	repo.EXPECT().GetByEmail(gomock.Any(), "a@example.com").Return(nil, ports.ErrPrincipalNotFound)
package mocks

// Get, GetByEmail, GetByIdentity, Create, Update, Delete, LinkIdentity, UnlinkIdentity
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=principal_repository_mock.go github.com/target/lessonhub/internal/ports PrincipalRepository

// Hash, Compare
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=password_hasher_mock.go github.com/target/lessonhub/internal/ports PasswordHasher

// Name, Begin, Exchange
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=oauth_provider_mock.go github.com/target/lessonhub/internal/ports OAuthProvider

// Save, Get, Delete
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=session_store_mock.go github.com/target/lessonhub/internal/ports SessionStore
