package analytics

import (
	"context"
	"testing"
	"time"

	"bonaso/internal/config"
	"bonaso/internal/db"
	"bonaso/internal/domain"
	"bonaso/internal/migrate"
	"bonaso/internal/repo"
)

type testEnv struct {
	ctx    context.Context
	repo   repo.Repo
	engine Engine

	project   int64
	parentOrg int64
	childOrg  int64
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	workspace := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	r := repo.Repo{DB: conn}
	env := &testEnv{ctx: context.Background(), repo: r, engine: New(r, config.Default())}

	env.parentOrg = env.mustOrg("Parent Org", nil)
	env.childOrg = env.mustOrg("Child Org", &env.parentOrg)
	env.project, err = r.InsertProject(env.ctx, "Test Project", nil, "2025-01-01", "2025-12-31")
	if err != nil {
		t.Fatalf("insert project: %v", err)
	}
	if err := r.LinkProjectOrg(env.ctx, env.project, env.parentOrg, nil); err != nil {
		t.Fatalf("link parent org: %v", err)
	}
	if err := r.LinkProjectOrg(env.ctx, env.project, env.childOrg, &env.parentOrg); err != nil {
		t.Fatalf("link child org: %v", err)
	}
	return env
}

func (e *testEnv) mustOrg(name string, parent *int64) int64 {
	id, err := e.repo.InsertOrganization(context.Background(), name, parent)
	if err != nil {
		panic(err)
	}
	return id
}

func (e *testEnv) admin() domain.Actor {
	return domain.Actor{ID: "admin-1", Role: domain.RoleAdmin}
}

func (e *testEnv) indicator(t *testing.T, ind domain.Indicator) domain.Indicator {
	t.Helper()
	ind.AllowAggregate = true
	id, err := e.repo.InsertIndicator(e.ctx, ind)
	if err != nil {
		t.Fatalf("insert indicator: %v", err)
	}
	full, err := e.repo.GetIndicator(e.ctx, id)
	if err != nil {
		t.Fatalf("reload indicator: %v", err)
	}
	return full
}

func (e *testEnv) task(t *testing.T, indicatorID, orgID int64) int64 {
	t.Helper()
	id, err := e.repo.InsertTask(e.ctx, indicatorID, e.project, orgID)
	if err != nil {
		t.Fatalf("insert task: %v", err)
	}
	return id
}

func (e *testEnv) respondent(t *testing.T, seed repo.RespondentSeed) int64 {
	t.Helper()
	id, err := e.repo.InsertRespondent(e.ctx, seed)
	if err != nil {
		t.Fatalf("insert respondent: %v", err)
	}
	return id
}

func (e *testEnv) interaction(t *testing.T, seed repo.InteractionSeed) int64 {
	t.Helper()
	id, err := e.repo.InsertInteraction(e.ctx, seed)
	if err != nil {
		t.Fatalf("insert interaction: %v", err)
	}
	return id
}

func (e *testEnv) aggregate(t *testing.T, req Request) Result {
	t.Helper()
	res, err := e.engine.Aggregate(e.ctx, req)
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	return res
}

func day(y, m, d int) time.Time {
	return time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
}

func bucketCount(t *testing.T, res Result, values ...string) int64 {
	t.Helper()
	want := map[string]int{}
	for _, v := range values {
		want[v]++
	}
	for _, b := range res.Buckets {
		got := map[string]int{}
		for _, v := range b.Values {
			got[v]++
		}
		if len(got) == len(want) {
			match := true
			for k, n := range want {
				if got[k] != n {
					match = false
				}
			}
			if match {
				return b.Count
			}
		}
	}
	t.Fatalf("no bucket with values %v in %v", values, res.Buckets)
	return 0
}
