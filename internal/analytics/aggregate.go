package analytics

import (
	"context"
	"fmt"
	"log"
	"time"

	"bonaso/internal/config"
	"bonaso/internal/domain"
	"bonaso/internal/repo"
)

// Engine runs scoped multi-dimensional aggregations over the record
// sources an indicator draws from.
type Engine struct {
	Repo   repo.Repo
	Config *config.Config
	Logger *log.Logger
	Now    func() time.Time
}

func New(r repo.Repo, cfg *config.Config) Engine {
	return Engine{Repo: r, Config: cfg, Now: time.Now}
}

func (e Engine) logger() *log.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return log.Default()
}

type Request struct {
	Actor          domain.Actor
	IndicatorID    int64
	ProjectID      int64
	OrganizationID int64
	Start          *time.Time
	End            *time.Time
	Filters        map[string][]string
	Breakdown      BreakdownSpec
}

type Result struct {
	Indicator  domain.Indicator `json:"indicator"`
	Dimensions []Dimension      `json:"dimensions"`
	Buckets    []Bucket         `json:"buckets"`
	Warnings   []string         `json:"warnings,omitempty"`
}

// Total sums every bucket.
func (r Result) Total() int64 {
	var total int64
	for _, b := range r.Buckets {
		total += b.Count
	}
	return total
}

// Aggregate collects the indicator's records within the actor's
// visibility, projects each onto the requested bucket space, and
// returns every bucket of the full Cartesian product, zeros included.
func (e Engine) Aggregate(ctx context.Context, req Request) (Result, error) {
	ind, err := e.Repo.GetIndicator(ctx, req.IndicatorID)
	if err != nil {
		return Result{}, fmt.Errorf("load indicator %d: %w", req.IndicatorID, err)
	}
	if !ind.AllowAggregate {
		return Result{}, fmt.Errorf("indicator %s does not allow aggregation", ind.Code)
	}

	col, err := e.collect(ctx, ind, req)
	if err != nil {
		return Result{}, err
	}

	dims, warnings := resolveDimensions(e.Config, ind, req.Breakdown, col)
	index := BuildBucketIndex(dims)

	tl, err := e.timelines(ctx, dims, col)
	if err != nil {
		return Result{}, err
	}

	if req.Breakdown.RepeatOnly {
		warnings = append(warnings, e.addRepeatOnly(ind, dims, req.Breakdown, col, tl, index)...)
	} else {
		e.addAll(ind, dims, req.Breakdown, col, tl, index)
	}

	return Result{Indicator: ind, Dimensions: dims, Buckets: index.Buckets, Warnings: warnings}, nil
}

func (e Engine) collect(ctx context.Context, ind domain.Indicator, req Request) (collected, error) {
	opts := repo.CollectOptions{
		Actor:          req.Actor,
		IndicatorID:    ind.ID,
		ProjectID:      req.ProjectID,
		OrganizationID: req.OrganizationID,
		Start:          dateArg(req.Start),
		End:            dateArg(req.End),
		Filters:        req.Filters,
		Cascade:        req.Breakdown.Cascade,
	}

	var col collected
	var err error
	switch ind.Category {
	case domain.CategoryRespondent:
		col.interactions, err = e.Repo.CollectInteractions(ctx, opts)
		if err != nil {
			return col, fmt.Errorf("collect interactions: %w", err)
		}
		col.counts, err = e.Repo.CollectCounts(ctx, opts)
		if err != nil {
			return col, fmt.Errorf("collect counts: %w", err)
		}
	case domain.CategoryMisc:
		col.interactions, err = e.Repo.CollectInteractions(ctx, opts)
		if err != nil {
			return col, fmt.Errorf("collect interactions: %w", err)
		}
	case domain.CategoryEventCount, domain.CategoryEventOrgCount:
		col.events, err = e.Repo.CollectEvents(ctx, opts)
		if err != nil {
			return col, fmt.Errorf("collect events: %w", err)
		}
	case domain.CategorySocial:
		col.posts, err = e.Repo.CollectPosts(ctx, opts)
		if err != nil {
			return col, fmt.Errorf("collect posts: %w", err)
		}
	default:
		return col, fmt.Errorf("indicator %s: unknown category %q", ind.Code, ind.Category)
	}
	return col, nil
}

// timelines loads pregnancy and HIV histories only when a derived
// dimension needs them; lookups always use the record's own date.
func (e Engine) timelines(ctx context.Context, dims []Dimension, col collected) (Timelines, error) {
	needed := false
	for _, d := range dims {
		if d.Name == DimPregnancy || d.Name == DimHIVStatus {
			needed = true
		}
	}
	if !needed || len(col.interactions) == 0 {
		return Timelines{}, nil
	}
	ids := make([]int64, 0, len(col.interactions))
	seen := map[int64]bool{}
	for _, rec := range col.interactions {
		if !seen[rec.RespondentID] {
			seen[rec.RespondentID] = true
			ids = append(ids, rec.RespondentID)
		}
	}
	pregnancies, facts, err := e.Repo.RespondentTimelines(ctx, ids)
	if err != nil {
		return Timelines{}, fmt.Errorf("load respondent timelines: %w", err)
	}
	return NewTimelines(pregnancies, facts), nil
}

func (e Engine) addAll(ind domain.Indicator, dims []Dimension, spec BreakdownSpec, col collected, tl Timelines, index *BucketIndex) {
	for _, rec := range col.interactions {
		for _, c := range e.interactionContributions(ind, dims, spec, rec, tl) {
			addContribution(index, c)
		}
	}
	for _, rec := range col.counts {
		for _, c := range countContributions(dims, spec, rec) {
			addContribution(index, c)
		}
	}
	for _, rec := range col.events {
		for _, c := range eventContributions(ind, dims, spec, rec) {
			addContribution(index, c)
		}
	}
	for _, rec := range col.posts {
		for _, c := range postContributions(dims, spec, rec) {
			addContribution(index, c)
		}
	}
}

func addContribution(index *BucketIndex, c contribution) {
	for _, set := range c.descriptorSets() {
		index.Add(set, c.amount)
	}
}

// addRepeatOnly counts each respondent at most once, and only when
// they appear in at least threshold distinct records in scope. The
// counted record is the respondent's earliest; amounts are always one
// regardless of numeric responses.
func (e Engine) addRepeatOnly(ind domain.Indicator, dims []Dimension, spec BreakdownSpec, col collected, tl Timelines, index *BucketIndex) []string {
	var warnings []string
	if len(col.counts) > 0 {
		warnings = append(warnings, "anonymous tallies carry no subject identity; excluded from repeat-only counting")
	}
	if len(col.events) > 0 || len(col.posts) > 0 {
		warnings = append(warnings, "repeat-only counting applies to respondent records only")
		return warnings
	}

	threshold := spec.RepeatThreshold
	if threshold < 2 {
		threshold = 2
	}
	tally := map[int64]int{}
	for _, rec := range col.interactions {
		tally[rec.RespondentID]++
	}

	counted := map[int64]bool{}
	for _, rec := range col.interactions {
		if tally[rec.RespondentID] < threshold || counted[rec.RespondentID] {
			continue
		}
		for _, c := range e.interactionContributions(ind, dims, spec, rec, tl) {
			placed := false
			for _, set := range c.descriptorSets() {
				if index.Add(set, 1) {
					placed = true
					break
				}
			}
			if placed {
				counted[rec.RespondentID] = true
				break
			}
		}
	}
	return warnings
}

func dateArg(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format("2006-01-02")
	return &s
}
