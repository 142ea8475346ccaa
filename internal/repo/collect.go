package repo

import (
	"context"
	"database/sql"

	"bonaso/internal/domain"
)

// CollectInteractions returns permission-scoped, time-windowed,
// flag-excluded respondent records for one indicator. Records are
// ordered by date then id so bucket accumulation is deterministic.
func (r Repo) CollectInteractions(ctx context.Context, o CollectOptions) ([]domain.InteractionRecord, error) {
	s, err := r.taskScope(ctx, o)
	if err != nil {
		return nil, err
	}
	if s.empty {
		return nil, nil
	}
	s.window("i.date", o.Start, o.End)
	s.clauses = append(s.clauses,
		`NOT EXISTS (SELECT 1 FROM flags f WHERE f.entity_kind='interaction' AND f.entity_id=i.id AND f.resolved=0)`,
		`NOT EXISTS (SELECT 1 FROM flags f WHERE f.entity_kind='respondent' AND f.entity_id=i.respondent_id AND f.resolved=0)`)
	r.interactionFilters(&s, o.Filters)

	query := `
SELECT i.id, i.respondent_id, i.task_id, o.name, i.date,
       COALESCE(resp.sex,''), COALESCE(resp.district,''), COALESCE(resp.citizenship,''), COALESCE(resp.age_range,'')
FROM interactions i
JOIN respondents resp ON resp.id=i.respondent_id
JOIN tasks t ON t.id=i.task_id
JOIN projects p ON p.id=t.project_id
JOIN organizations o ON o.id=t.organization_id
` + s.where() + ` ORDER BY i.date, i.id`
	rows, err := r.DB.QueryContext(ctx, query, s.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.InteractionRecord
	index := map[int64]int{}
	for rows.Next() {
		var rec domain.InteractionRecord
		var date string
		if err := rows.Scan(&rec.ID, &rec.RespondentID, &rec.TaskID, &rec.OrgName, &date,
			&rec.Sex, &rec.District, &rec.Citizenship, &rec.AgeRange); err != nil {
			return nil, err
		}
		if rec.Date, err = parseDate(date); err != nil {
			return nil, err
		}
		index[rec.ID] = len(res)
		res = append(res, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(res) == 0 {
		return nil, nil
	}
	if err := r.attachAttributes(ctx, res); err != nil {
		return nil, err
	}
	if err := r.attachResponses(ctx, res, index); err != nil {
		return nil, err
	}
	return res, r.attachSubcategories(ctx, res, index)
}

func (r Repo) interactionFilters(s *scope, filters map[string][]string) {
	for name, values := range filters {
		if len(values) == 0 {
			continue
		}
		switch name {
		case "sex", "district", "age_range":
			placeholders, args := inClauseStr(values)
			s.clauses = append(s.clauses, "resp."+name+" IN ("+placeholders+")")
			s.args = append(s.args, args...)
		case "citizenship":
			if v := exactSingle(values); v != "" {
				s.clauses = append(s.clauses, "resp.citizenship=?")
				s.args = append(s.args, v)
			}
		case "kp_type", "disability_type":
			placeholders, args := inClauseStr(values)
			s.clauses = append(s.clauses, `EXISTS (SELECT 1 FROM respondent_attributes ra WHERE ra.respondent_id=i.respondent_id AND ra.attribute IN (`+placeholders+`))`)
			s.args = append(s.args, args...)
		case "pregnancy":
			switch exactSingle(values) {
			case domain.ValPregnant:
				s.clauses = append(s.clauses, pregnantOnRecordDate)
			case domain.ValNotPregnant:
				s.clauses = append(s.clauses, "NOT "+pregnantOnRecordDate)
			}
		case "hiv_status":
			switch exactSingle(values) {
			case domain.ValHIVPositive:
				s.clauses = append(s.clauses, positiveOnRecordDate)
			case domain.ValHIVNegative:
				s.clauses = append(s.clauses, "NOT "+positiveOnRecordDate)
			}
		case "option":
			placeholders, args := inClauseStr(values)
			s.clauses = append(s.clauses, `EXISTS (SELECT 1 FROM interaction_responses ir WHERE ir.interaction_id=i.id AND ir.option_id IN (`+placeholders+`))`)
			s.args = append(s.args, args...)
		default:
			r.logger().Printf("ignoring unknown filter %q", name)
		}
	}
}

// Temporal filters compare against the record's own date, never today.
const pregnantOnRecordDate = `EXISTS (SELECT 1 FROM pregnancies pg WHERE pg.respondent_id=i.respondent_id AND pg.began<=i.date AND (pg.ended IS NULL OR pg.ended>=i.date))`
const positiveOnRecordDate = `EXISTS (SELECT 1 FROM hiv_statuses hs WHERE hs.respondent_id=i.respondent_id AND hs.positive_since<=i.date)`

func (r Repo) attachAttributes(ctx context.Context, recs []domain.InteractionRecord) error {
	ids := respondentIDs(recs)
	placeholders, args := inClause(ids)
	rows, err := r.DB.QueryContext(ctx, `SELECT respondent_id, attribute FROM respondent_attributes WHERE respondent_id IN (`+placeholders+`) ORDER BY attribute`, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	attrs := map[int64][]string{}
	for rows.Next() {
		var id int64
		var attr string
		if err := rows.Scan(&id, &attr); err != nil {
			return err
		}
		attrs[id] = append(attrs[id], attr)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	for i := range recs {
		recs[i].Attributes = attrs[recs[i].RespondentID]
	}
	return nil
}

func (r Repo) attachResponses(ctx context.Context, recs []domain.InteractionRecord, index map[int64]int) error {
	placeholders, args := inClause(interactionIDs(recs))
	rows, err := r.DB.QueryContext(ctx, `
SELECT ir.interaction_id, COALESCE(ir.option_id,0), COALESCE(io.name,''), COALESCE(ir.numeric_value,''), ir.bool_value
FROM interaction_responses ir
LEFT JOIN indicator_options io ON io.id=ir.option_id
WHERE ir.interaction_id IN (`+placeholders+`) ORDER BY ir.interaction_id, ir.option_id`, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		var v domain.ResponseValue
		var boolVal sql.NullBool
		if err := rows.Scan(&id, &v.OptionID, &v.OptionName, &v.Numeric, &boolVal); err != nil {
			return err
		}
		if boolVal.Valid {
			v.Bool = &boolVal.Bool
		}
		if pos, ok := index[id]; ok {
			recs[pos].Responses = append(recs[pos].Responses, v)
		}
	}
	return rows.Err()
}

func (r Repo) attachSubcategories(ctx context.Context, recs []domain.InteractionRecord, index map[int64]int) error {
	placeholders, args := inClause(interactionIDs(recs))
	rows, err := r.DB.QueryContext(ctx, `
SELECT interaction_id, subcategory, COALESCE(numeric_value,'')
FROM interaction_subcategories WHERE interaction_id IN (`+placeholders+`) ORDER BY interaction_id, subcategory`, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		var v domain.SubcategoryValue
		if err := rows.Scan(&id, &v.Name, &v.Numeric); err != nil {
			return err
		}
		if pos, ok := index[id]; ok {
			recs[pos].Subcategories = append(recs[pos].Subcategories, v)
		}
	}
	return rows.Err()
}

func interactionIDs(recs []domain.InteractionRecord) []int64 {
	ids := make([]int64, len(recs))
	for i, rec := range recs {
		ids[i] = rec.ID
	}
	return ids
}

func respondentIDs(recs []domain.InteractionRecord) []int64 {
	seen := map[int64]bool{}
	var ids []int64
	for _, rec := range recs {
		if !seen[rec.RespondentID] {
			seen[rec.RespondentID] = true
			ids = append(ids, rec.RespondentID)
		}
	}
	return ids
}

// CollectCounts returns scoped event-tally rows; each row is one
// weighted record contributing its stored amount.
func (r Repo) CollectCounts(ctx context.Context, o CollectOptions) ([]domain.CountRecord, error) {
	s, err := r.taskScope(ctx, o)
	if err != nil {
		return nil, err
	}
	if s.empty {
		return nil, nil
	}
	s.window("e.end_date", o.Start, o.End)
	s.clauses = append(s.clauses,
		`NOT EXISTS (SELECT 1 FROM flags f WHERE f.entity_kind='count' AND f.entity_id=c.id AND f.resolved=0)`)
	for name, values := range o.Filters {
		if len(values) == 0 {
			continue
		}
		switch name {
		case "sex", "age_range":
			placeholders, args := inClauseStr(values)
			s.clauses = append(s.clauses, "c."+name+" IN ("+placeholders+")")
			s.args = append(s.args, args...)
		case "citizenship", "hiv_status", "pregnancy":
			if v := exactSingle(values); v != "" {
				s.clauses = append(s.clauses, "c."+name+"=?")
				s.args = append(s.args, v)
			}
		default:
			r.logger().Printf("ignoring unknown filter %q", name)
		}
	}
	query := `
SELECT c.id, c.event_id, c.task_id, o.name, e.end_date, c.amount,
       COALESCE(c.sex,''), COALESCE(c.age_range,''), COALESCE(c.citizenship,''), COALESCE(c.hiv_status,''), COALESCE(c.pregnancy,'')
FROM counts c
JOIN events e ON e.id=c.event_id
JOIN tasks t ON t.id=c.task_id
JOIN projects p ON p.id=t.project_id
JOIN organizations o ON o.id=t.organization_id
` + s.where() + ` ORDER BY e.end_date, c.id`
	rows, err := r.DB.QueryContext(ctx, query, s.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.CountRecord
	for rows.Next() {
		var rec domain.CountRecord
		var date string
		if err := rows.Scan(&rec.ID, &rec.EventID, &rec.TaskID, &rec.OrgName, &date, &rec.Amount,
			&rec.Sex, &rec.AgeRange, &rec.Citizenship, &rec.HIVStatus, &rec.Pregnancy); err != nil {
			return nil, err
		}
		if rec.Date, err = parseDate(date); err != nil {
			return nil, err
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}

// CollectEvents backs the event-count indicator categories: one record
// per distinct event linked to a task of the indicator.
func (r Repo) CollectEvents(ctx context.Context, o CollectOptions) ([]domain.EventRecord, error) {
	s, err := r.taskScope(ctx, o)
	if err != nil {
		return nil, err
	}
	if s.empty {
		return nil, nil
	}
	s.window("e.end_date", o.Start, o.End)
	query := `
SELECT DISTINCT e.id, e.name, o.name, e.end_date,
       (SELECT COUNT(*) FROM event_orgs eo WHERE eo.event_id=e.id)
FROM events e
JOIN event_tasks et ON et.event_id=e.id
JOIN tasks t ON t.id=et.task_id
JOIN projects p ON p.id=t.project_id
JOIN organizations o ON o.id=e.organization_id
` + s.where() + ` ORDER BY e.end_date, e.id`
	rows, err := r.DB.QueryContext(ctx, query, s.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.EventRecord
	for rows.Next() {
		var rec domain.EventRecord
		var date string
		if err := rows.Scan(&rec.ID, &rec.Name, &rec.OrgName, &date, &rec.OrgCount); err != nil {
			return nil, err
		}
		if rec.Date, err = parseDate(date); err != nil {
			return nil, err
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}

// CollectPosts returns scoped social-engagement posts. OrgName is the
// hosting organization, which may differ from the task's organization.
func (r Repo) CollectPosts(ctx context.Context, o CollectOptions) ([]domain.PostRecord, error) {
	s, err := r.taskScope(ctx, o)
	if err != nil {
		return nil, err
	}
	if s.empty {
		return nil, nil
	}
	s.window("sp.published_on", o.Start, o.End)
	s.clauses = append(s.clauses,
		`NOT EXISTS (SELECT 1 FROM flags f WHERE f.entity_kind='post' AND f.entity_id=sp.id AND f.resolved=0)`)
	for name, values := range o.Filters {
		if len(values) == 0 {
			continue
		}
		switch name {
		case "platform":
			placeholders, args := inClauseStr(values)
			s.clauses = append(s.clauses, "sp.platform IN ("+placeholders+")")
			s.args = append(s.args, args...)
		default:
			r.logger().Printf("ignoring unknown filter %q", name)
		}
	}
	query := `
SELECT sp.id, sp.task_id, so.name, sp.platform, sp.published_on, sp.likes, sp.views, sp.comments, sp.reach
FROM social_posts sp
JOIN tasks t ON t.id=sp.task_id
JOIN projects p ON p.id=t.project_id
JOIN organizations so ON so.id=sp.organization_id
` + s.where() + ` ORDER BY sp.published_on, sp.id`
	rows, err := r.DB.QueryContext(ctx, query, s.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.PostRecord
	for rows.Next() {
		var rec domain.PostRecord
		var date string
		if err := rows.Scan(&rec.ID, &rec.TaskID, &rec.OrgName, &rec.Platform, &date,
			&rec.Likes, &rec.Views, &rec.Comments, &rec.Reach); err != nil {
			return nil, err
		}
		if rec.Date, err = parseDate(date); err != nil {
			return nil, err
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}
