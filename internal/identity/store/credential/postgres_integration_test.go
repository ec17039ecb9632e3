//go:build integration

package credential_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"taskdesk/internal/identity/models"
	"taskdesk/internal/identity/store/credential"
	taskmodels "taskdesk/internal/task/models"
	taskpostgres "taskdesk/internal/task/store/postgres"
	id "taskdesk/pkg/domain"
	"taskdesk/pkg/platform/sentinel"
	txcontext "taskdesk/pkg/platform/tx"
	"taskdesk/pkg/testutil/containers"
)

type CredentialPostgresSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	profiles *taskpostgres.Store
	store    *credential.PostgresStore
}

func TestCredentialPostgresSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(CredentialPostgresSuite))
}

func (s *CredentialPostgresSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.profiles = taskpostgres.New(s.postgres.DB)
	s.store = credential.NewPostgres(s.postgres.DB)
}

func (s *CredentialPostgresSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "tasks", "credentials", "profiles"))
}

func (s *CredentialPostgresSuite) newProfile(email string) id.ProfileID {
	profileID := id.NewProfileID()
	s.Require().NoError(s.profiles.CreateProfile(context.Background(), taskmodels.Profile{
		ID: profileID, Email: email, Role: id.RoleStaff,
	}))
	return profileID
}

func (s *CredentialPostgresSuite) TestCreateAndFind() {
	ctx := context.Background()
	profileID := s.newProfile("Robin@Firm.test")
	created := time.Now().UTC().Truncate(time.Microsecond)

	s.Require().NoError(s.store.Create(ctx, models.Credential{
		ProfileID: profileID, Email: "Robin@Firm.test", PasswordHash: []byte("hash"), CreatedAt: created,
	}))

	s.Run("lookup ignores case", func() {
		cred, err := s.store.FindByEmail(ctx, "robin@firm.TEST")
		s.Require().NoError(err)
		s.Equal(profileID, cred.ProfileID)
		s.Equal([]byte("hash"), cred.PasswordHash)
	})

	s.Run("duplicate email conflicts", func() {
		other := s.newProfile("other@firm.test")
		err := s.store.Create(ctx, models.Credential{
			ProfileID: other, Email: "ROBIN@firm.test", PasswordHash: []byte("x"), CreatedAt: created,
		})
		s.ErrorIs(err, sentinel.ErrConflict)
	})

	s.Run("unknown email", func() {
		_, err := s.store.FindByEmail(ctx, "nobody@firm.test")
		s.ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *CredentialPostgresSuite) TestJoinsTransaction() {
	ctx := context.Background()
	tx, err := s.postgres.DB.BeginTx(ctx, nil)
	s.Require().NoError(err)
	txCtx := txcontext.WithTx(ctx, tx)

	profileID := id.NewProfileID()
	s.Require().NoError(s.profiles.CreateProfile(txCtx, taskmodels.Profile{ID: profileID, Email: "tx@firm.test", Role: id.RoleStaff}))
	s.Require().NoError(s.store.Create(txCtx, models.Credential{
		ProfileID: profileID, Email: "tx@firm.test", PasswordHash: []byte("hash"), CreatedAt: time.Now().UTC(),
	}))
	s.Require().NoError(tx.Rollback())

	_, err = s.store.FindByEmail(ctx, "tx@firm.test")
	s.ErrorIs(err, sentinel.ErrNotFound)
}
