package authflow_test

import (
	"context"
	"testing"
	"time"

	"github.com/goliatone/go-authflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepo(t *testing.T) authflow.RepositoryManager {
	t.Helper()

	db, err := authflow.OpenSQLite("file::memory:?cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, authflow.CreateSchema(context.Background(), db))

	return authflow.NewRepositoryManager(db)
}

func TestProvisionCreatesUserOnFirstSight(t *testing.T) {
	repo := newTestRepo(t)
	handler := authflow.NewProvisionUserHandler(repo, nil)

	claim := &authflow.IdentityClaim{
		Subject:       "subject-1",
		Email:         "a@example.com",
		EmailVerified: true,
		ExpiresAt:     time.Now().Add(time.Hour),
	}

	user, err := handler.Provision(context.Background(), claim)
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, "subject-1", user.Subject)
	assert.Equal(t, "a@example.com", user.Email)
	assert.True(t, user.EmailValidated)
	assert.NotEmpty(t, user.ID)
}

func TestProvisionIsIdempotentPerSubject(t *testing.T) {
	repo := newTestRepo(t)
	handler := authflow.NewProvisionUserHandler(repo, nil)

	claim := &authflow.IdentityClaim{Subject: "subject-2", Email: "b@example.com"}

	first, err := handler.Provision(context.Background(), claim)
	require.NoError(t, err)

	second, err := handler.Provision(context.Background(), claim)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)

	found, err := repo.Users().GetBySubject(context.Background(), "subject-2")
	require.NoError(t, err)
	assert.Equal(t, first.ID, found.ID)
}

func TestProvisionRejectsEmptyClaim(t *testing.T) {
	repo := newTestRepo(t)
	handler := authflow.NewProvisionUserHandler(repo, nil)

	_, err := handler.Provision(context.Background(), nil)
	assert.Error(t, err)

	_, err = handler.Provision(context.Background(), &authflow.IdentityClaim{})
	assert.Error(t, err)
}
