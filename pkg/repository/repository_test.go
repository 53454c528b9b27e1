package repository_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/LalaIAm/case-agent/pkg/domain/interfaces"
	"github.com/LalaIAm/case-agent/pkg/domain/model"
	"github.com/LalaIAm/case-agent/pkg/repository/firestore"
	"github.com/LalaIAm/case-agent/pkg/repository/memory"
	"github.com/LalaIAm/case-agent/pkg/repository/postgres"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/m-mizutani/gt"
)

const testDim = model.DefaultEmbeddingDimension

// axisVector returns a unit vector along axis i, optionally tilted toward axis j
func axisVector(i int, tilt ...float32) []float32 {
	v := make([]float32, testDim)
	v[i] = 1
	if len(tilt) > 0 {
		v[(i+1)%testDim] = tilt[0]
	}
	return v
}

func newMemoryRepository(t *testing.T) interfaces.Repository {
	t.Helper()
	return memory.New()
}

// newFirestoreRepository connects without a collection prefix so that the
// migrated vector indexes apply; tests isolate themselves with fresh IDs.
func newFirestoreRepository(t *testing.T) interfaces.Repository {
	t.Helper()

	projectID := os.Getenv("TEST_FIRESTORE_PROJECT_ID")
	if projectID == "" {
		t.Skip("TEST_FIRESTORE_PROJECT_ID not set")
	}

	databaseID := os.Getenv("TEST_FIRESTORE_DATABASE_ID")
	if databaseID == "" {
		t.Skip("TEST_FIRESTORE_DATABASE_ID not set")
	}

	ctx := context.Background()
	repo, err := firestore.New(ctx, projectID, databaseID)
	gt.NoError(t, err).Required()
	t.Cleanup(func() {
		gt.NoError(t, repo.Close())
	})
	return repo
}

// newPostgresRepository migrates a throwaway schema per test
func newPostgresRepository(t *testing.T) interfaces.Repository {
	t.Helper()

	url := os.Getenv("TEST_POSTGRES_URL")
	if url == "" {
		t.Skip("TEST_POSTGRES_URL not set")
	}

	ctx := context.Background()
	schema := fmt.Sprintf("test_%d", time.Now().UnixNano())

	cfg, err := pgxpool.ParseConfig(url)
	gt.NoError(t, err).Required()
	cfg.ConnConfig.RuntimeParams["search_path"] = schema + ",public"

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	gt.NoError(t, err).Required()

	_, err = pool.Exec(ctx, "CREATE SCHEMA "+schema)
	gt.NoError(t, err).Required()
	gt.NoError(t, postgres.Migrate(ctx, pool, testDim)).Required()

	repo := postgres.NewWithPool(pool)
	t.Cleanup(func() {
		_, _ = pool.Exec(context.Background(), "DROP SCHEMA "+schema+" CASCADE")
		gt.NoError(t, repo.Close())
	})
	return repo
}

// runAllBackends runs a contract test against every backend
func runAllBackends(t *testing.T, contract func(t *testing.T, newRepo func(t *testing.T) interfaces.Repository)) {
	t.Run("Memory", func(t *testing.T) {
		contract(t, newMemoryRepository)
	})
	t.Run("Firestore", func(t *testing.T) {
		contract(t, newFirestoreRepository)
	})
	t.Run("Postgres", func(t *testing.T) {
		contract(t, newPostgresRepository)
	})
}

func newTestCase(t *testing.T, repo interfaces.Repository) *model.Case {
	t.Helper()
	c, err := repo.Case().Create(context.Background(), &model.Case{
		Title:       "Unpaid invoice",
		Description: "Contractor did not finish the deck and kept the deposit.",
	})
	gt.NoError(t, err).Required()
	return c
}

func newTestSession(t *testing.T, repo interfaces.Repository, caseID model.CaseID) *model.Session {
	t.Helper()
	s, _, err := repo.Session().GetOrCreateActive(context.Background(), caseID, time.Now())
	gt.NoError(t, err).Required()
	return s
}
