package repo

import (
	"context"
	"strings"

	"bonaso/internal/domain"
)

// CollectOptions are the shared parameters of the three collectors.
type CollectOptions struct {
	Actor          domain.Actor
	IndicatorID    int64
	ProjectID      int64
	OrganizationID int64
	Start          *string // inclusive, YYYY-MM-DD
	End            *string // inclusive
	Filters        map[string][]string
	Cascade        bool
}

// scope is the reusable predicate applied identically by every
// collector: role visibility, project/organization narrowing, and
// cascade widening. Clauses reference aliases t (tasks) and p
// (projects). An empty scope means the actor can see nothing in the
// requested slice; collectors then return an empty set rather than an
// error, since rejecting requests belongs to the auth layer.
type scope struct {
	clauses []string
	args    []any
	empty   bool
}

func (r Repo) taskScope(ctx context.Context, o CollectOptions) (scope, error) {
	s := scope{
		clauses: []string{"t.indicator_id=?"},
		args:    []any{o.IndicatorID},
	}
	if o.ProjectID != 0 {
		s.clauses = append(s.clauses, "t.project_id=?")
		s.args = append(s.args, o.ProjectID)
	}

	switch o.Actor.Role {
	case domain.RoleAdmin:
		// sees everything
	case domain.RoleClient:
		if o.Actor.ClientOrgID == 0 {
			s.empty = true
			return s, nil
		}
		s.clauses = append(s.clauses, "p.client_org_id=?")
		s.args = append(s.args, o.Actor.ClientOrgID)
	default:
		if o.Actor.OrgID == 0 {
			s.empty = true
			return s, nil
		}
		// Cascade plus an explicit target widens to the full descendant
		// subtree for that project only, provided the target itself is
		// visible to the actor.
		if o.Cascade && o.OrganizationID != 0 && o.ProjectID != 0 {
			visible, err := r.orgVisible(ctx, o.Actor, o.ProjectID, o.OrganizationID)
			if err != nil {
				return s, err
			}
			if !visible {
				s.empty = true
				return s, nil
			}
			subtree, err := r.OrgSubtree(ctx, o.ProjectID, o.OrganizationID)
			if err != nil {
				return s, err
			}
			placeholders, args := inClause(subtree)
			s.clauses = append(s.clauses, "t.organization_id IN ("+placeholders+")")
			s.args = append(s.args, args...)
			return s, nil
		}
		s.clauses = append(s.clauses, `(t.organization_id=? OR EXISTS (
			SELECT 1 FROM project_orgs po
			WHERE po.project_id=t.project_id AND po.org_id=t.organization_id AND po.parent_org_id=?))`)
		s.args = append(s.args, o.Actor.OrgID, o.Actor.OrgID)
	}

	if o.OrganizationID != 0 {
		if o.Cascade && o.ProjectID != 0 {
			subtree, err := r.OrgSubtree(ctx, o.ProjectID, o.OrganizationID)
			if err != nil {
				return s, err
			}
			placeholders, args := inClause(subtree)
			s.clauses = append(s.clauses, "t.organization_id IN ("+placeholders+")")
			s.args = append(s.args, args...)
		} else {
			s.clauses = append(s.clauses, "t.organization_id=?")
			s.args = append(s.args, o.OrganizationID)
		}
	}
	return s, nil
}

func (r Repo) orgVisible(ctx context.Context, actor domain.Actor, projectID, orgID int64) (bool, error) {
	if actor.Privileged() || orgID == actor.OrgID {
		return true, nil
	}
	children, err := r.ProjectChildOrgs(ctx, projectID, actor.OrgID)
	if err != nil {
		return false, err
	}
	for _, id := range children {
		if id == orgID {
			return true, nil
		}
	}
	return false, nil
}

// window appends inclusive date-range clauses for the given column.
func (s *scope) window(column string, start, end *string) {
	if start != nil && *start != "" {
		s.clauses = append(s.clauses, column+">=?")
		s.args = append(s.args, *start)
	}
	if end != nil && *end != "" {
		s.clauses = append(s.clauses, column+"<=?")
		s.args = append(s.args, *end)
	}
}

func (s *scope) where() string {
	if len(s.clauses) == 0 {
		return ""
	}
	return "WHERE " + strings.Join(s.clauses, " AND ")
}

// exactSingle returns the single selected value when exactly one is
// chosen, or "" when the selection means "don't filter" (both or
// neither selected).
func exactSingle(values []string) string {
	if len(values) == 1 {
		return values[0]
	}
	return ""
}

func inClauseStr(values []string) (string, []any) {
	placeholders := ""
	args := make([]any, 0, len(values))
	for i, v := range values {
		if i > 0 {
			placeholders += ","
		}
		placeholders += "?"
		args = append(args, v)
	}
	return placeholders, args
}
