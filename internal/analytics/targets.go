package analytics

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"bonaso/internal/domain"
)

var errUnresolvableTarget = errors.New("target has neither amount nor related task")

// TargetProgress pairs one target with its resolved goal and the
// amount achieved inside that target's window.
type TargetProgress struct {
	Target   domain.Target `json:"target"`
	Goal     int64         `json:"goal"`
	Achieved int64         `json:"achieved"`
	Percent  float64       `json:"percent"`
}

type TaskAchievement struct {
	Task    domain.Task      `json:"task"`
	Targets []TargetProgress `json:"targets"`
}

// PeriodAmount is one slice of a task's targets apportioned onto a
// calendar period.
type PeriodAmount struct {
	Period   string `json:"period"`
	Goal     int64  `json:"goal"`
	Achieved int64  `json:"achieved"`
}

// Achievement resolves every target on a task against what the task's
// organization and its project descendants actually recorded. Cascade
// is always on here: a parent's target covers its subgrantees' work.
func (e Engine) Achievement(ctx context.Context, actor domain.Actor, taskID int64) (TaskAchievement, error) {
	task, err := e.Repo.GetTask(ctx, taskID)
	if err != nil {
		return TaskAchievement{}, fmt.Errorf("load task %d: %w", taskID, err)
	}
	targets, err := e.Repo.ListTargets(ctx, taskID)
	if err != nil {
		return TaskAchievement{}, fmt.Errorf("list targets: %w", err)
	}

	out := TaskAchievement{Task: task}
	for _, t := range targets {
		goal, err := e.targetGoal(ctx, actor, t)
		if errors.Is(err, errUnresolvableTarget) {
			e.logger().Printf("skipping target %d: %v", t.ID, err)
			continue
		}
		if err != nil {
			return TaskAchievement{}, err
		}
		achieved, err := e.achievedAmount(ctx, actor, task, t.Start, t.End)
		if err != nil {
			return TaskAchievement{}, err
		}
		out.Targets = append(out.Targets, TargetProgress{
			Target:   t,
			Goal:     goal,
			Achieved: achieved,
			Percent:  percentOf(achieved, goal),
		})
	}
	return out, nil
}

// TargetPeriods spreads each target's goal evenly over the calendar
// periods its window touches and reports achievement per period.
// Periods shared by several targets merge by summing their shares.
func (e Engine) TargetPeriods(ctx context.Context, actor domain.Actor, taskID int64, split string) ([]PeriodAmount, error) {
	if split != SplitMonth && split != SplitQuarter {
		return nil, fmt.Errorf("unsupported period split %q", split)
	}
	task, err := e.Repo.GetTask(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("load task %d: %w", taskID, err)
	}
	targets, err := e.Repo.ListTargets(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("list targets: %w", err)
	}

	goals := map[string]int64{}
	var order []periodSpan
	seen := map[string]bool{}
	for _, t := range targets {
		goal, err := e.targetGoal(ctx, actor, t)
		if errors.Is(err, errUnresolvableTarget) {
			e.logger().Printf("skipping target %d: %v", t.ID, err)
			continue
		}
		if err != nil {
			return nil, err
		}
		spans := periodsBetween(t.Start, t.End, split)
		if len(spans) == 0 {
			continue
		}
		// each period's share rounds independently
		share := int64(math.Round(float64(goal) / float64(len(spans))))
		for _, span := range spans {
			goals[span.Label] += share
			if !seen[span.Label] {
				seen[span.Label] = true
				order = append(order, span)
			}
		}
	}

	var out []PeriodAmount
	for _, span := range order {
		achieved, err := e.achievedAmount(ctx, actor, task, span.Start, span.End)
		if err != nil {
			return nil, err
		}
		out = append(out, PeriodAmount{Period: span.Label, Goal: goals[span.Label], Achieved: achieved})
	}
	return out, nil
}

// targetGoal resolves a relative target against the related task's
// achievement over the same window; absolute targets pass through.
func (e Engine) targetGoal(ctx context.Context, actor domain.Actor, t domain.Target) (int64, error) {
	if t.Amount != nil {
		return *t.Amount, nil
	}
	if t.RelatedTaskID == nil || t.Percentage == nil {
		return 0, errUnresolvableTarget
	}
	related, err := e.Repo.GetTask(ctx, *t.RelatedTaskID)
	if err != nil {
		return 0, fmt.Errorf("load related task %d: %w", *t.RelatedTaskID, err)
	}
	base, err := e.achievedAmount(ctx, actor, related, t.Start, t.End)
	if err != nil {
		return 0, err
	}
	return int64(math.Round(float64(base) * *t.Percentage / 100)), nil
}

// achievedAmount totals the task's indicator over a window, scoped to
// the task's own project and organization subtree. Social indicators
// count engagement as likes, comments, and views; reach is excluded.
func (e Engine) achievedAmount(ctx context.Context, actor domain.Actor, task domain.Task, start, end time.Time) (int64, error) {
	ind, err := e.Repo.GetIndicator(ctx, task.IndicatorID)
	if err != nil {
		return 0, fmt.Errorf("load indicator %d: %w", task.IndicatorID, err)
	}
	req := Request{
		Actor:          actor,
		IndicatorID:    ind.ID,
		ProjectID:      task.ProjectID,
		OrganizationID: task.OrganizationID,
		Start:          &start,
		End:            &end,
		Breakdown:      BreakdownSpec{Cascade: true},
	}
	col, err := e.collect(ctx, ind, req)
	if err != nil {
		return 0, err
	}
	if ind.Category == domain.CategorySocial {
		var total int64
		for _, p := range col.posts {
			total += p.Likes + p.Comments + p.Views
		}
		return total, nil
	}
	index := BuildBucketIndex(nil)
	e.addAll(ind, nil, req.Breakdown, col, Timelines{}, index)
	var total int64
	for _, b := range index.Buckets {
		total += b.Count
	}
	return total, nil
}

type periodSpan struct {
	Label string
	Start time.Time
	End   time.Time
}

// periodsBetween lists the calendar months or quarters a window
// touches, in order, each clipped to its full calendar bounds.
func periodsBetween(start, end time.Time, split string) []periodSpan {
	if end.Before(start) {
		return nil
	}
	var spans []periodSpan
	switch split {
	case SplitQuarter:
		q := time.Date(start.Year(), ((start.Month()-1)/3)*3+1, 1, 0, 0, 0, 0, time.UTC)
		for !q.After(end) {
			next := q.AddDate(0, 3, 0)
			spans = append(spans, periodSpan{Label: periodLabel(q, split), Start: q, End: next.AddDate(0, 0, -1)})
			q = next
		}
	default:
		m := time.Date(start.Year(), start.Month(), 1, 0, 0, 0, 0, time.UTC)
		for !m.After(end) {
			next := m.AddDate(0, 1, 0)
			spans = append(spans, periodSpan{Label: periodLabel(m, split), Start: m, End: next.AddDate(0, 0, -1)})
			m = next
		}
	}
	return spans
}

func percentOf(achieved, goal int64) float64 {
	if goal == 0 {
		return 0
	}
	return math.Round(float64(achieved)/float64(goal)*10000) / 100
}
