// Package devseed creates local accounts so a fresh development stack can be
// signed into without registering by hand.
package devseed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	domainauth "github.com/target/lessonhub/internal/domain/auth"
	"github.com/target/lessonhub/internal/ports"
	"github.com/target/lessonhub/internal/service"
)

// Registrar creates local principals.
type Registrar interface {
	Register(ctx context.Context, in service.SignupInput) (*domainauth.Principal, error)
}

// Account is one local login to seed.
type Account struct {
	Email    string
	Password string
	Name     string
}

// DefaultAccounts are seeded when Run is given none.
func DefaultAccounts() []Account {
	return []Account{
		{Email: "learner@lessonhub.test", Password: "lessonhub-dev", Name: "Dev Learner"},
		{Email: "instructor@lessonhub.test", Password: "lessonhub-dev", Name: "Dev Instructor"},
	}
}

// Run registers every account that does not exist yet. It is safe to run on
// every start; existing accounts are left untouched.
func Run(ctx context.Context, reg Registrar, accounts []Account, logger *slog.Logger) error {
	if reg == nil {
		return errors.New("devseed: registrar is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if len(accounts) == 0 {
		accounts = DefaultAccounts()
	}

	failures := 0
	for _, acct := range accounts {
		created, err := createAccount(ctx, reg, acct)
		if err != nil {
			logger.ErrorContext(ctx, "failed to seed account", "email", acct.Email, "error", err)
			failures++
			continue
		}
		msg := "account already exists"
		if created {
			msg = "seeded account"
		}
		logger.InfoContext(ctx, msg, "email", acct.Email)
	}

	if failures > 0 {
		return fmt.Errorf("%d seed errors; check logs", failures)
	}
	return nil
}

func createAccount(ctx context.Context, reg Registrar, acct Account) (bool, error) {
	_, err := reg.Register(ctx, service.SignupInput{
		Email:           acct.Email,
		Password:        acct.Password,
		ConfirmPassword: acct.Password,
		Name:            acct.Name,
	})
	if errors.Is(err, ports.ErrEmailTaken) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
