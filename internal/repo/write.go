package repo

import (
	"context"
	"errors"
	"time"

	"bonaso/internal/domain"
)

// Write-side helpers used by seeding and tests. Intake and entity
// administration proper live outside this system; the engine itself
// never calls these.

func (r Repo) InsertOrganization(ctx context.Context, name string, parentID *int64) (int64, error) {
	res, err := r.DB.ExecContext(ctx, `INSERT INTO organizations(name,parent_id) VALUES (?,?)`, name, nullableInt64Ptr(parentID))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r Repo) InsertProject(ctx context.Context, name string, clientOrgID *int64, start, end string) (int64, error) {
	res, err := r.DB.ExecContext(ctx, `INSERT INTO projects(name,client_org_id,status,start_date,end_date) VALUES (?,?,'active',?,?)`,
		name, nullableInt64Ptr(clientOrgID), nullable(start), nullable(end))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// LinkProjectOrg records that child sits under parent within a project;
// a nil parent registers a top-level participant.
func (r Repo) LinkProjectOrg(ctx context.Context, projectID, orgID int64, parentOrgID *int64) error {
	_, err := r.DB.ExecContext(ctx, `INSERT OR IGNORE INTO project_orgs(project_id,org_id,parent_org_id) VALUES (?,?,?)`,
		projectID, orgID, nullableInt64Ptr(parentOrgID))
	return err
}

func (r Repo) InsertIndicator(ctx context.Context, ind domain.Indicator) (int64, error) {
	res, err := r.DB.ExecContext(ctx, `INSERT INTO indicators(code,name,type,category,require_numeric,allow_aggregate) VALUES (?,?,?,?,?,?)`,
		ind.Code, ind.Name, ind.Type, ind.Category, ind.RequireNumeric, ind.AllowAggregate)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	for i, sub := range ind.Subcategories {
		if _, err := r.DB.ExecContext(ctx, `INSERT INTO indicator_subcategories(indicator_id,name,position) VALUES (?,?,?)`, id, sub, i); err != nil {
			return 0, err
		}
	}
	for _, opt := range ind.Options {
		if _, err := r.DB.ExecContext(ctx, `INSERT INTO indicator_options(indicator_id,name) VALUES (?,?)`, id, opt.Name); err != nil {
			return 0, err
		}
	}
	return id, nil
}

func (r Repo) InsertTask(ctx context.Context, indicatorID, projectID, organizationID int64) (int64, error) {
	res, err := r.DB.ExecContext(ctx, `INSERT INTO tasks(indicator_id,project_id,organization_id) VALUES (?,?,?)`,
		indicatorID, projectID, organizationID)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

type RespondentSeed struct {
	UUID        string
	Sex         string
	District    string
	Citizenship string
	DOB         string
	AgeRange    string
	Attributes  []string
}

func (r Repo) InsertRespondent(ctx context.Context, seed RespondentSeed) (int64, error) {
	res, err := r.DB.ExecContext(ctx, `INSERT INTO respondents(uuid,sex,district,citizenship,dob,age_range) VALUES (?,?,?,?,?,?)`,
		seed.UUID, nullable(seed.Sex), nullable(seed.District), nullable(seed.Citizenship), nullable(seed.DOB), nullable(seed.AgeRange))
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	for _, attr := range seed.Attributes {
		if _, err := r.DB.ExecContext(ctx, `INSERT OR IGNORE INTO respondent_attributes(respondent_id,attribute) VALUES (?,?)`, id, attr); err != nil {
			return 0, err
		}
	}
	return id, nil
}

func (r Repo) InsertPregnancy(ctx context.Context, respondentID int64, began time.Time, ended *time.Time) error {
	var endedVal any
	if ended != nil {
		endedVal = formatDate(*ended)
	}
	_, err := r.DB.ExecContext(ctx, `INSERT INTO pregnancies(respondent_id,began,ended) VALUES (?,?,?)`,
		respondentID, formatDate(began), endedVal)
	return err
}

func (r Repo) InsertHIVStatus(ctx context.Context, respondentID int64, positiveSince time.Time) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO hiv_statuses(respondent_id,positive_since) VALUES (?,?)`,
		respondentID, formatDate(positiveSince))
	return err
}

type InteractionSeed struct {
	RespondentID  int64
	TaskID        int64
	Date          time.Time
	Responses     []domain.ResponseValue
	Subcategories []domain.SubcategoryValue
}

func (r Repo) InsertInteraction(ctx context.Context, seed InteractionSeed) (int64, error) {
	res, err := r.DB.ExecContext(ctx, `INSERT INTO interactions(respondent_id,task_id,date) VALUES (?,?,?)`,
		seed.RespondentID, seed.TaskID, formatDate(seed.Date))
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	for _, v := range seed.Responses {
		var optionID any
		if v.OptionID != 0 {
			optionID = v.OptionID
		}
		var boolVal any
		if v.Bool != nil {
			boolVal = *v.Bool
		}
		if _, err := r.DB.ExecContext(ctx, `INSERT INTO interaction_responses(interaction_id,option_id,numeric_value,bool_value) VALUES (?,?,?,?)`,
			id, optionID, nullable(v.Numeric), boolVal); err != nil {
			return 0, err
		}
	}
	for _, v := range seed.Subcategories {
		if _, err := r.DB.ExecContext(ctx, `INSERT INTO interaction_subcategories(interaction_id,subcategory,numeric_value) VALUES (?,?,?)`,
			id, v.Name, nullable(v.Numeric)); err != nil {
			return 0, err
		}
	}
	return id, nil
}

func (r Repo) InsertEvent(ctx context.Context, name string, organizationID, projectID int64, endDate time.Time, taskIDs, participantOrgIDs []int64) (int64, error) {
	res, err := r.DB.ExecContext(ctx, `INSERT INTO events(name,organization_id,project_id,end_date) VALUES (?,?,?,?)`,
		name, organizationID, projectID, formatDate(endDate))
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	for _, taskID := range taskIDs {
		if _, err := r.DB.ExecContext(ctx, `INSERT OR IGNORE INTO event_tasks(event_id,task_id) VALUES (?,?)`, id, taskID); err != nil {
			return 0, err
		}
	}
	for _, orgID := range participantOrgIDs {
		if _, err := r.DB.ExecContext(ctx, `INSERT OR IGNORE INTO event_orgs(event_id,org_id) VALUES (?,?)`, id, orgID); err != nil {
			return 0, err
		}
	}
	return id, nil
}

func (r Repo) InsertCount(ctx context.Context, c domain.CountRecord) (int64, error) {
	res, err := r.DB.ExecContext(ctx, `INSERT INTO counts(event_id,task_id,amount,sex,age_range,citizenship,hiv_status,pregnancy) VALUES (?,?,?,?,?,?,?,?)`,
		c.EventID, c.TaskID, c.Amount, nullable(c.Sex), nullable(c.AgeRange), nullable(c.Citizenship), nullable(c.HIVStatus), nullable(c.Pregnancy))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r Repo) InsertPost(ctx context.Context, p domain.PostRecord, organizationID int64) (int64, error) {
	res, err := r.DB.ExecContext(ctx, `INSERT INTO social_posts(task_id,organization_id,platform,published_on,likes,views,comments,reach) VALUES (?,?,?,?,?,?,?,?)`,
		p.TaskID, organizationID, p.Platform, formatDate(p.Date), p.Likes, p.Views, p.Comments, p.Reach)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

var (
	errInvalidTarget = errors.New("target requires exactly one of amount or (related task, percentage)")
	errTargetOverlap = errors.New("target window overlaps an existing target for this task")
)

func (r Repo) InsertTarget(ctx context.Context, t domain.Target) (int64, error) {
	if (t.Amount == nil) == (t.RelatedTaskID == nil) {
		return 0, errInvalidTarget
	}
	if t.RelatedTaskID != nil && t.Percentage == nil {
		return 0, errInvalidTarget
	}
	var overlapping int
	err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM targets WHERE task_id=? AND start_date<=? AND end_date>=?`,
		t.TaskID, formatDate(t.End), formatDate(t.Start)).Scan(&overlapping)
	if err != nil {
		return 0, err
	}
	if overlapping > 0 {
		return 0, errTargetOverlap
	}
	var pct any
	if t.Percentage != nil {
		pct = *t.Percentage
	}
	res, err := r.DB.ExecContext(ctx, `INSERT INTO targets(task_id,start_date,end_date,amount,related_task_id,percentage) VALUES (?,?,?,?,?,?)`,
		t.TaskID, formatDate(t.Start), formatDate(t.End), nullableInt64Ptr(t.Amount), nullableInt64Ptr(t.RelatedTaskID), pct)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func nullableInt64Ptr(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}
