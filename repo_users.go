package authflow

import (
	"context"
	"fmt"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Users is the persistence surface for locally mirrored accounts.
type Users interface {
	repository.Repository[*User]

	GetBySubject(ctx context.Context, subject string, criteria ...repository.SelectCriteria) (*User, error)
	GetBySubjectTx(ctx context.Context, tx bun.IDB, subject string, criteria ...repository.SelectCriteria) (*User, error)
	GetOrCreateBySubject(ctx context.Context, record *User) (*User, error)
	GetOrCreateBySubjectTx(ctx context.Context, tx bun.IDB, record *User) (*User, error)
	TrackSeen(ctx context.Context, id uuid.UUID) error
	TrackSeenTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error
	SetProfilePicture(ctx context.Context, id uuid.UUID, path string) (*User, error)
}

type users struct {
	repository.Repository[*User]
	db *bun.DB
}

var (
	_ Users                        = (*users)(nil)
	_ repository.Repository[*User] = (*users)(nil)
)

// NewUsersRepository builds the users repository over the given database.
func NewUsersRepository(db *bun.DB) Users {
	repo := repository.NewRepository[*User](db, repository.ModelHandlers[*User]{
		NewRecord: func() *User { return &User{} },
		GetID: func(u *User) uuid.UUID {
			if u == nil {
				return uuid.Nil
			}
			return u.ID
		},
		SetID: func(u *User, id uuid.UUID) {
			if u != nil {
				u.ID = id
			}
		},
		GetIdentifier: func() string {
			return "subject"
		},
	})

	return &users{
		Repository: repo,
		db:         db,
	}
}

func (a *users) GetBySubject(ctx context.Context, subject string, criteria ...repository.SelectCriteria) (*User, error) {
	return a.GetBySubjectTx(ctx, a.db, subject, criteria...)
}

func (a *users) GetBySubjectTx(ctx context.Context, tx bun.IDB, subject string, criteria ...repository.SelectCriteria) (*User, error) {
	record := &User{}
	q := tx.NewSelect().Model(record)

	for _, c := range criteria {
		q.Apply(c)
	}

	err := q.
		Where("?TableAlias.subject = ?", subject).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					"subject": subject,
				})
		}
		return nil, err
	}

	return record, nil
}

func (a *users) GetOrCreateBySubject(ctx context.Context, record *User) (*User, error) {
	return a.GetOrCreateBySubjectTx(ctx, a.db, record)
}

func (a *users) GetOrCreateBySubjectTx(ctx context.Context, tx bun.IDB, record *User) (*User, error) {
	if record == nil || record.Subject == "" {
		return nil, fmt.Errorf("subject is required")
	}

	user, err := a.GetBySubjectTx(ctx, tx, record.Subject)
	if err == nil {
		return user, nil
	}

	if !repository.IsRecordNotFound(err) {
		return nil, err
	}

	return a.Repository.CreateTx(ctx, tx, record)
}

func (a *users) TrackSeen(ctx context.Context, id uuid.UUID) error {
	return a.TrackSeenTx(ctx, a.db, id)
}

func (a *users) TrackSeenTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error {
	loggedInAt := time.Now()
	_, err := tx.NewRaw(`
		UPDATE "users" AS "usr"
		SET
			"loggedin_at" = ?
		WHERE
			("usr".id = ?)
			AND "usr"."deleted_at" IS NULL;
	`, loggedInAt, id).Exec(ctx)

	return err
}

func (a *users) SetProfilePicture(ctx context.Context, id uuid.UUID, path string) (*User, error) {
	record := &User{}
	record.ID = id
	record.ProfilePicture = path

	return a.Repository.Update(ctx, record, repository.UpdateByID(id.String()))
}
