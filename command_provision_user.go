package authflow

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/uptrace/bun"
)

// ProvisionUserHandler materializes local user records from verified claims:
// the first authenticated request for a subject creates its row, later ones
// just refresh the last-seen timestamp. IDs are derived from the provider
// subject so provisioning stays idempotent across concurrent requests.
type ProvisionUserHandler struct {
	repo   RepositoryManager
	logger Logger
}

var _ UserProvisioner = (*ProvisionUserHandler)(nil)

// NewProvisionUserHandler builds the provisioner over the repository set.
func NewProvisionUserHandler(repo RepositoryManager, logger Logger) *ProvisionUserHandler {
	if logger == nil {
		logger = defLogger{}
	}
	return &ProvisionUserHandler{repo: repo, logger: logger}
}

// Provision implements UserProvisioner.
func (h *ProvisionUserHandler) Provision(ctx context.Context, claim *IdentityClaim) (*User, error) {
	if claim == nil || claim.Subject == "" {
		return nil, goerrors.New("claim subject is required", goerrors.CategoryBadInput).
			WithCode(goerrors.CodeBadRequest)
	}

	select {
	case <-ctx.Done():
		return nil, goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during user provisioning",
		)
	default:
		return h.provision(ctx, claim)
	}
}

func (h *ProvisionUserHandler) provision(ctx context.Context, claim *IdentityClaim) (*User, error) {
	user := &User{
		Subject:        claim.Subject,
		Email:          claim.Email,
		EmailValidated: claim.EmailVerified,
	}

	if id, err := hashid.NewUUID(claim.Subject); err == nil {
		user.ID = id
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record, err := h.repo.Users().GetOrCreateBySubjectTx(ctx, tx, user)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryConflict, "could not provision user")
		}

		user = record
		return h.repo.Users().TrackSeenTx(ctx, tx, record.ID)
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return nil, richErr
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "user provisioning transaction failed")
	}

	return user, nil
}
