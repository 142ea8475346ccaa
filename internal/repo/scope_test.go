package repo

import (
	"context"
	"testing"
	"time"

	"bonaso/internal/db"
	"bonaso/internal/domain"
	"bonaso/internal/events"
	"bonaso/internal/migrate"
)

type fixture struct {
	ctx  context.Context
	repo Repo

	project     int64
	clientPr    int64
	parent      int64
	child       int64
	other       int64
	indicatorID int64
	task        map[int64]int64 // org -> task
}

func eventsWriter(f *fixture) events.Writer {
	return events.Writer{DB: f.repo.DB}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	f := &fixture{ctx: context.Background(), repo: Repo{DB: conn}, task: map[int64]int64{}}

	f.parent = f.org(t, "Parent", nil)
	f.child = f.org(t, "Child", &f.parent)
	f.other = f.org(t, "Other", nil)

	f.project, err = f.repo.InsertProject(f.ctx, "Main", nil, "2025-01-01", "2025-12-31")
	if err != nil {
		t.Fatalf("insert project: %v", err)
	}
	f.clientPr, err = f.repo.InsertProject(f.ctx, "Client funded", &f.parent, "2025-01-01", "2025-12-31")
	if err != nil {
		t.Fatalf("insert client project: %v", err)
	}
	for _, org := range []int64{f.parent, f.child, f.other} {
		parent := (*int64)(nil)
		if org == f.child {
			parent = &f.parent
		}
		if err := f.repo.LinkProjectOrg(f.ctx, f.project, org, parent); err != nil {
			t.Fatalf("link org: %v", err)
		}
	}

	ind, err := f.repo.InsertIndicator(f.ctx, domain.Indicator{
		Code: "SCP", Name: "Scope", Type: "integer", Category: domain.CategoryRespondent, AllowAggregate: true,
	})
	if err != nil {
		t.Fatalf("insert indicator: %v", err)
	}
	for _, org := range []int64{f.parent, f.child, f.other} {
		task, err := f.repo.InsertTask(f.ctx, ind, f.project, org)
		if err != nil {
			t.Fatalf("insert task: %v", err)
		}
		f.task[org] = task
		resp, err := f.repo.InsertRespondent(f.ctx, RespondentSeed{UUID: "r-" + time.Now().Format("150405.000000") + "-" + string(rune('a'+len(f.task)))})
		if err != nil {
			t.Fatalf("insert respondent: %v", err)
		}
		if _, err := f.repo.InsertInteraction(f.ctx, InteractionSeed{
			RespondentID: resp, TaskID: task, Date: time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC),
		}); err != nil {
			t.Fatalf("insert interaction: %v", err)
		}
	}
	f.indicatorID = ind
	return f
}

func (f *fixture) org(t *testing.T, name string, parent *int64) int64 {
	t.Helper()
	id, err := f.repo.InsertOrganization(f.ctx, name, parent)
	if err != nil {
		t.Fatalf("insert org %s: %v", name, err)
	}
	return id
}

func (f *fixture) collect(t *testing.T, o CollectOptions) []domain.InteractionRecord {
	t.Helper()
	o.IndicatorID = f.indicatorID
	recs, err := f.repo.CollectInteractions(f.ctx, o)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	return recs
}

func TestAdminSeesEverything(t *testing.T) {
	f := newFixture(t)
	recs := f.collect(t, CollectOptions{Actor: domain.Actor{ID: "a", Role: domain.RoleAdmin}})
	if len(recs) != 3 {
		t.Fatalf("admin sees %d records, want 3", len(recs))
	}
}

func TestStaffSeesOwnOrgAndDirectChildren(t *testing.T) {
	f := newFixture(t)
	recs := f.collect(t, CollectOptions{Actor: domain.Actor{ID: "s", Role: "staff", OrgID: f.parent}})
	if len(recs) != 2 {
		t.Fatalf("parent staff sees %d records, want own + child = 2", len(recs))
	}
	recs = f.collect(t, CollectOptions{Actor: domain.Actor{ID: "s", Role: "staff", OrgID: f.child}})
	if len(recs) != 1 {
		t.Fatalf("child staff sees %d records, want 1", len(recs))
	}
	recs = f.collect(t, CollectOptions{Actor: domain.Actor{ID: "s", Role: "staff", OrgID: f.other}})
	if len(recs) != 1 {
		t.Fatalf("other staff sees %d records, want 1", len(recs))
	}
}

func TestClientScopedToFundedProjects(t *testing.T) {
	f := newFixture(t)
	recs := f.collect(t, CollectOptions{Actor: domain.Actor{ID: "c", Role: domain.RoleClient, ClientOrgID: f.parent}})
	if len(recs) != 0 {
		t.Fatalf("client sees %d records from unfunded project, want 0", len(recs))
	}
	recs = f.collect(t, CollectOptions{Actor: domain.Actor{ID: "c", Role: domain.RoleClient}})
	if len(recs) != 0 {
		t.Fatalf("client without client org sees %d records, want 0", len(recs))
	}
}

func TestCascadeReachesOrgSubtree(t *testing.T) {
	f := newFixture(t)
	staff := domain.Actor{ID: "s", Role: "staff", OrgID: f.parent}
	recs := f.collect(t, CollectOptions{
		Actor: staff, ProjectID: f.project, OrganizationID: f.parent, Cascade: true,
	})
	if len(recs) != 2 {
		t.Fatalf("cascade sees %d records, want parent + child = 2", len(recs))
	}

	// cascade on a subtree the actor cannot see yields nothing
	recs = f.collect(t, CollectOptions{
		Actor: staff, ProjectID: f.project, OrganizationID: f.other, Cascade: true,
	})
	if len(recs) != 0 {
		t.Fatalf("cascade over foreign org sees %d records, want 0", len(recs))
	}
}

func TestWindowAndFilters(t *testing.T) {
	f := newFixture(t)
	admin := domain.Actor{ID: "a", Role: domain.RoleAdmin}

	start, end := "2025-03-01", "2025-05-01"
	recs := f.collect(t, CollectOptions{Actor: admin, Start: &start, End: &end})
	if len(recs) != 3 {
		t.Fatalf("window sees %d records, want 3", len(recs))
	}
	late := "2025-06-01"
	recs = f.collect(t, CollectOptions{Actor: admin, Start: &late})
	if len(recs) != 0 {
		t.Fatalf("late window sees %d records, want 0", len(recs))
	}

	// unknown filters are logged and ignored, never an error
	recs = f.collect(t, CollectOptions{Actor: admin, Filters: map[string][]string{"favorite_color": {"blue"}}})
	if len(recs) != 3 {
		t.Fatalf("unknown filter sees %d records, want 3", len(recs))
	}
}

func TestOrgSubtreeWalksProjectLinks(t *testing.T) {
	f := newFixture(t)
	grandchild := f.org(t, "Grandchild", &f.child)
	if err := f.repo.LinkProjectOrg(f.ctx, f.project, grandchild, &f.child); err != nil {
		t.Fatalf("link grandchild: %v", err)
	}
	subtree, err := f.repo.OrgSubtree(f.ctx, f.project, f.parent)
	if err != nil {
		t.Fatalf("org subtree: %v", err)
	}
	if len(subtree) != 3 {
		t.Fatalf("subtree = %v, want parent, child, grandchild", subtree)
	}
}

func TestRaiseFlagRejectsUnknownKind(t *testing.T) {
	f := newFixture(t)
	if _, err := f.repo.RaiseFlag(f.ctx, eventsWriter(f), "banana", 1, "", "a"); err == nil {
		t.Fatal("unknown entity kind should be rejected")
	}
}
