package analytics

import (
	"testing"

	"bonaso/internal/domain"
	"bonaso/internal/repo"
)

func seedTargetTask(t *testing.T, env *testEnv, code string, interactions int) (int64, domain.Indicator) {
	t.Helper()
	ind := env.indicator(t, domain.Indicator{
		Code: code, Name: code, Type: "integer", Category: domain.CategoryRespondent,
	})
	task := env.task(t, ind.ID, env.parentOrg)
	for i := 0; i < interactions; i++ {
		resp := env.respondent(t, repo.RespondentSeed{UUID: code + "-r-" + string(rune('a'+i))})
		env.interaction(t, repo.InteractionSeed{RespondentID: resp, TaskID: task, Date: day(2025, 1+i%3, 10)})
	}
	return task, ind
}

func TestAchievementAgainstAbsoluteTarget(t *testing.T) {
	env := newTestEnv(t)
	task, _ := seedTargetTask(t, env, "ACH", 3)

	amount := int64(6)
	if _, err := env.repo.InsertTarget(env.ctx, domain.Target{
		TaskID: task, Start: day(2025, 1, 1), End: day(2025, 3, 31), Amount: &amount,
	}); err != nil {
		t.Fatalf("insert target: %v", err)
	}

	out, err := env.engine.Achievement(env.ctx, env.admin(), task)
	if err != nil {
		t.Fatalf("achievement: %v", err)
	}
	if len(out.Targets) != 1 {
		t.Fatalf("targets = %d, want 1", len(out.Targets))
	}
	got := out.Targets[0]
	if got.Goal != 6 || got.Achieved != 3 {
		t.Fatalf("goal/achieved = %d/%d, want 6/3", got.Goal, got.Achieved)
	}
	if got.Percent != 50 {
		t.Fatalf("percent = %v, want 50", got.Percent)
	}
}

func TestRelativeTargetResolvesAgainstRelatedTask(t *testing.T) {
	env := newTestEnv(t)
	related, _ := seedTargetTask(t, env, "REL", 4)
	task, _ := seedTargetTask(t, env, "DEP", 1)

	pct := 50.0
	if _, err := env.repo.InsertTarget(env.ctx, domain.Target{
		TaskID: task, Start: day(2025, 1, 1), End: day(2025, 3, 31),
		RelatedTaskID: &related, Percentage: &pct,
	}); err != nil {
		t.Fatalf("insert target: %v", err)
	}

	out, err := env.engine.Achievement(env.ctx, env.admin(), task)
	if err != nil {
		t.Fatalf("achievement: %v", err)
	}
	// related task achieved 4, so the goal is half that
	if out.Targets[0].Goal != 2 {
		t.Fatalf("goal = %d, want 2", out.Targets[0].Goal)
	}
	if out.Targets[0].Achieved != 1 {
		t.Fatalf("achieved = %d, want 1", out.Targets[0].Achieved)
	}
}

func TestTargetPeriodsApportionEvenly(t *testing.T) {
	env := newTestEnv(t)
	task, _ := seedTargetTask(t, env, "PRD", 0)

	amount := int64(90)
	if _, err := env.repo.InsertTarget(env.ctx, domain.Target{
		TaskID: task, Start: day(2025, 1, 1), End: day(2025, 3, 31), Amount: &amount,
	}); err != nil {
		t.Fatalf("insert target: %v", err)
	}

	months, err := env.engine.TargetPeriods(env.ctx, env.admin(), task, SplitMonth)
	if err != nil {
		t.Fatalf("target periods: %v", err)
	}
	if len(months) != 3 {
		t.Fatalf("months = %d, want 3", len(months))
	}
	for _, p := range months {
		if p.Goal != 30 {
			t.Fatalf("%s goal = %d, want 30", p.Period, p.Goal)
		}
	}
	if months[0].Period != "Jan 2025" || months[2].Period != "Mar 2025" {
		t.Fatalf("period labels = %v", months)
	}

	quarters, err := env.engine.TargetPeriods(env.ctx, env.admin(), task, SplitQuarter)
	if err != nil {
		t.Fatalf("quarter periods: %v", err)
	}
	if len(quarters) != 1 || quarters[0].Goal != 90 {
		t.Fatalf("quarters = %v, want one Q1 2025 with goal 90", quarters)
	}
}

func TestTargetPeriodsTwoMonthRounding(t *testing.T) {
	env := newTestEnv(t)
	task, _ := seedTargetTask(t, env, "RND", 0)

	amount := int64(90)
	if _, err := env.repo.InsertTarget(env.ctx, domain.Target{
		TaskID: task, Start: day(2025, 5, 1), End: day(2025, 6, 30), Amount: &amount,
	}); err != nil {
		t.Fatalf("insert target: %v", err)
	}
	months, err := env.engine.TargetPeriods(env.ctx, env.admin(), task, SplitMonth)
	if err != nil {
		t.Fatalf("target periods: %v", err)
	}
	if len(months) != 2 || months[0].Goal != 45 || months[1].Goal != 45 {
		t.Fatalf("months = %v, want 45/45", months)
	}
}

func TestOverlappingTargetsRejected(t *testing.T) {
	env := newTestEnv(t)
	task, _ := seedTargetTask(t, env, "OVL", 0)

	amount := int64(10)
	if _, err := env.repo.InsertTarget(env.ctx, domain.Target{
		TaskID: task, Start: day(2025, 1, 1), End: day(2025, 6, 30), Amount: &amount,
	}); err != nil {
		t.Fatalf("insert target: %v", err)
	}
	if _, err := env.repo.InsertTarget(env.ctx, domain.Target{
		TaskID: task, Start: day(2025, 6, 1), End: day(2025, 12, 31), Amount: &amount,
	}); err == nil {
		t.Fatal("overlapping target should be rejected")
	}
	if _, err := env.repo.InsertTarget(env.ctx, domain.Target{
		TaskID: task, Start: day(2025, 7, 1), End: day(2025, 12, 31), Amount: &amount,
	}); err != nil {
		t.Fatalf("adjacent target should be accepted: %v", err)
	}
}

func TestTargetRequiresExactlyOneKind(t *testing.T) {
	env := newTestEnv(t)
	task, _ := seedTargetTask(t, env, "KND", 0)

	if _, err := env.repo.InsertTarget(env.ctx, domain.Target{
		TaskID: task, Start: day(2025, 1, 1), End: day(2025, 3, 31),
	}); err == nil {
		t.Fatal("target without amount or relation should be rejected")
	}
	amount := int64(5)
	pct := 10.0
	if _, err := env.repo.InsertTarget(env.ctx, domain.Target{
		TaskID: task, Start: day(2025, 1, 1), End: day(2025, 3, 31),
		Amount: &amount, RelatedTaskID: &task, Percentage: &pct,
	}); err == nil {
		t.Fatal("target with both kinds should be rejected")
	}
}
