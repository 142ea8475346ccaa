package repo

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"time"

	"bonaso/internal/domain"
)

type Repo struct {
	DB     *sql.DB
	Logger *log.Logger
}

var ErrNotFound = errors.New("not found")

const dateLayout = "2006-01-02"

func (r Repo) logger() *log.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return log.Default()
}

func parseDate(s string) (time.Time, error) {
	return time.Parse(dateLayout, s)
}

func formatDate(t time.Time) string {
	return t.Format(dateLayout)
}

func (r Repo) GetIndicator(ctx context.Context, id int64) (domain.Indicator, error) {
	var ind domain.Indicator
	err := r.DB.QueryRowContext(ctx, `SELECT id,code,name,type,category,require_numeric,allow_aggregate FROM indicators WHERE id=?`, id).
		Scan(&ind.ID, &ind.Code, &ind.Name, &ind.Type, &ind.Category, &ind.RequireNumeric, &ind.AllowAggregate)
	if err == sql.ErrNoRows {
		return ind, ErrNotFound
	}
	if err != nil {
		return ind, err
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT name FROM indicator_subcategories WHERE indicator_id=? ORDER BY position`, id)
	if err != nil {
		return ind, err
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return ind, err
		}
		ind.Subcategories = append(ind.Subcategories, name)
	}
	if err := rows.Err(); err != nil {
		return ind, err
	}
	opts, err := r.DB.QueryContext(ctx, `SELECT id,name FROM indicator_options WHERE indicator_id=? ORDER BY id`, id)
	if err != nil {
		return ind, err
	}
	defer opts.Close()
	for opts.Next() {
		var o domain.Option
		if err := opts.Scan(&o.ID, &o.Name); err != nil {
			return ind, err
		}
		ind.Options = append(ind.Options, o)
	}
	return ind, opts.Err()
}

func (r Repo) GetIndicatorByCode(ctx context.Context, code string) (domain.Indicator, error) {
	var id int64
	err := r.DB.QueryRowContext(ctx, `SELECT id FROM indicators WHERE code=?`, code).Scan(&id)
	if err == sql.ErrNoRows {
		return domain.Indicator{}, ErrNotFound
	}
	if err != nil {
		return domain.Indicator{}, err
	}
	return r.GetIndicator(ctx, id)
}

func (r Repo) GetTask(ctx context.Context, id int64) (domain.Task, error) {
	var t domain.Task
	err := r.DB.QueryRowContext(ctx, `
SELECT t.id,t.indicator_id,t.project_id,t.organization_id,o.name
FROM tasks t JOIN organizations o ON o.id=t.organization_id
WHERE t.id=?`, id).
		Scan(&t.ID, &t.IndicatorID, &t.ProjectID, &t.OrganizationID, &t.OrgName)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	return t, err
}

func (r Repo) GetProject(ctx context.Context, id int64) (domain.Project, error) {
	var p domain.Project
	var clientOrg sql.NullInt64
	var start, end sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT id,name,client_org_id,status,start_date,end_date FROM projects WHERE id=?`, id).
		Scan(&p.ID, &p.Name, &clientOrg, &p.Status, &start, &end)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if err != nil {
		return p, err
	}
	if clientOrg.Valid {
		p.ClientOrgID = &clientOrg.Int64
	}
	if start.Valid {
		p.Start = start.String
	}
	if end.Valid {
		p.End = end.String
	}
	return p, nil
}

func (r Repo) GetOrganization(ctx context.Context, id int64) (domain.Organization, error) {
	var o domain.Organization
	var parent sql.NullInt64
	err := r.DB.QueryRowContext(ctx, `SELECT id,name,parent_id FROM organizations WHERE id=?`, id).
		Scan(&o.ID, &o.Name, &parent)
	if err == sql.ErrNoRows {
		return o, ErrNotFound
	}
	if parent.Valid {
		o.ParentID = &parent.Int64
	}
	return o, err
}

// OrgSubtree returns the root organization plus every descendant linked
// beneath it within the given project, walking project_orgs rows.
func (r Repo) OrgSubtree(ctx context.Context, projectID, rootID int64) ([]int64, error) {
	result := []int64{rootID}
	seen := map[int64]bool{rootID: true}
	frontier := []int64{rootID}
	for len(frontier) > 0 {
		var next []int64
		for _, parent := range frontier {
			rows, err := r.DB.QueryContext(ctx, `SELECT org_id FROM project_orgs WHERE project_id=? AND parent_org_id=?`, projectID, parent)
			if err != nil {
				return nil, err
			}
			for rows.Next() {
				var id int64
				if err := rows.Scan(&id); err != nil {
					rows.Close()
					return nil, err
				}
				if !seen[id] {
					seen[id] = true
					result = append(result, id)
					next = append(next, id)
				}
			}
			if err := rows.Err(); err != nil {
				rows.Close()
				return nil, err
			}
			rows.Close()
		}
		frontier = next
	}
	return result, nil
}

// ProjectChildOrgs returns orgs linked directly under the given parent
// within a project.
func (r Repo) ProjectChildOrgs(ctx context.Context, projectID, parentOrgID int64) ([]int64, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT org_id FROM project_orgs WHERE project_id=? AND parent_org_id=?`, projectID, parentOrgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r Repo) ListTargets(ctx context.Context, taskID int64) ([]domain.Target, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,task_id,start_date,end_date,amount,related_task_id,percentage FROM targets WHERE task_id=? ORDER BY start_date`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Target
	for rows.Next() {
		var t domain.Target
		var start, end string
		var amount, related sql.NullInt64
		var pct sql.NullFloat64
		if err := rows.Scan(&t.ID, &t.TaskID, &start, &end, &amount, &related, &pct); err != nil {
			return nil, err
		}
		if t.Start, err = parseDate(start); err != nil {
			return nil, err
		}
		if t.End, err = parseDate(end); err != nil {
			return nil, err
		}
		if amount.Valid {
			t.Amount = &amount.Int64
		}
		if related.Valid {
			t.RelatedTaskID = &related.Int64
		}
		if pct.Valid {
			t.Percentage = &pct.Float64
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

// RespondentTimelines loads all interval facts for the given respondents
// in one pass, so per-record lookups never touch the database.
func (r Repo) RespondentTimelines(ctx context.Context, respondentIDs []int64) ([]domain.PregnancyInterval, []domain.HIVStatusFact, error) {
	if len(respondentIDs) == 0 {
		return nil, nil, nil
	}
	placeholders, args := inClause(respondentIDs)
	rows, err := r.DB.QueryContext(ctx, `SELECT respondent_id,began,ended FROM pregnancies WHERE respondent_id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()
	var pregnancies []domain.PregnancyInterval
	for rows.Next() {
		var p domain.PregnancyInterval
		var began string
		var ended sql.NullString
		if err := rows.Scan(&p.RespondentID, &began, &ended); err != nil {
			return nil, nil, err
		}
		if p.Began, err = parseDate(began); err != nil {
			return nil, nil, err
		}
		if ended.Valid {
			d, err := parseDate(ended.String)
			if err != nil {
				return nil, nil, err
			}
			p.Ended = &d
		}
		pregnancies = append(pregnancies, p)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	hrows, err := r.DB.QueryContext(ctx, `SELECT respondent_id,positive_since FROM hiv_statuses WHERE respondent_id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, nil, err
	}
	defer hrows.Close()
	var facts []domain.HIVStatusFact
	for hrows.Next() {
		var f domain.HIVStatusFact
		var since string
		if err := hrows.Scan(&f.RespondentID, &since); err != nil {
			return nil, nil, err
		}
		if f.PositiveSince, err = parseDate(since); err != nil {
			return nil, nil, err
		}
		facts = append(facts, f)
	}
	return pregnancies, facts, hrows.Err()
}

func inClause(ids []int64) (string, []any) {
	placeholders := ""
	args := make([]any, 0, len(ids))
	for i, id := range ids {
		if i > 0 {
			placeholders += ","
		}
		placeholders += "?"
		args = append(args, id)
	}
	return placeholders, args
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
