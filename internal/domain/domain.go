package domain

import "time"

// Indicator categories select the aggregation strategy.
const (
	CategoryRespondent    = "respondent"
	CategoryEventCount    = "event_count"
	CategoryEventOrgCount = "event_org_count"
	CategorySocial        = "social"
	CategoryMisc          = "misc"
)

// Indicator types describe how responses are recorded.
const (
	TypeMultiSelect  = "multi_select"
	TypeSingleSelect = "single_select"
	TypeInteger      = "integer"
	TypeBoolean      = "boolean"
)

type Indicator struct {
	ID             int64    `json:"id"`
	Code           string   `json:"code"`
	Name           string   `json:"name"`
	Type           string   `json:"type" enum:"multi_select,single_select,integer,boolean"`
	Category       string   `json:"category" enum:"respondent,event_count,event_org_count,social,misc"`
	RequireNumeric bool     `json:"require_numeric"`
	AllowAggregate bool     `json:"allow_aggregate"`
	Subcategories  []string `json:"subcategories,omitempty"`
	Options        []Option `json:"options,omitempty"`
}

type Option struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Task binds one indicator to one (project, organization) pair.
type Task struct {
	ID             int64  `json:"id"`
	IndicatorID    int64  `json:"indicator_id"`
	ProjectID      int64  `json:"project_id"`
	OrganizationID int64  `json:"organization_id"`
	OrgName        string `json:"organization_name,omitempty"`
}

type Organization struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	ParentID *int64 `json:"parent_id,omitempty"`
}

type Project struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	ClientOrgID *int64 `json:"client_org_id,omitempty"`
	Status      string `json:"status"`
	Start       string `json:"start,omitempty" format:"date"`
	End         string `json:"end,omitempty" format:"date"`
}

// Actor is the descriptor supplied by the (external) auth layer.
// Role drives scope: admins see everything, clients see their client's
// projects, anyone else sees their own organization plus child
// organizations linked under it within a project.
type Actor struct {
	ID          string `json:"id"`
	Role        string `json:"role"`
	OrgID       int64  `json:"organization_id,omitempty"`
	ClientOrgID int64  `json:"client_organization_id,omitempty"`
}

const (
	RoleAdmin  = "admin"
	RoleClient = "client"
)

// Derived and binary dimension value labels.
const (
	ValPregnant    = "Pregnant"
	ValNotPregnant = "Not_Pregnant"
	ValHIVPositive = "HIV_Positive"
	ValHIVNegative = "HIV_Negative"
	ValCitizen     = "Citizen"
	ValNonCitizen  = "Non_Citizen"
)

// Privileged reports whether the role bypasses organization scoping.
func (a Actor) Privileged() bool {
	return a.Role == RoleAdmin || a.Role == RoleClient
}

type ResponseValue struct {
	OptionID   int64  `json:"option_id,omitempty"`
	OptionName string `json:"option_name,omitempty"`
	Numeric    string `json:"numeric,omitempty"`
	Bool       *bool  `json:"bool,omitempty"`
}

type SubcategoryValue struct {
	Name    string `json:"name"`
	Numeric string `json:"numeric,omitempty"`
}

// InteractionRecord is one respondent interacting with one task on one
// date, joined with the respondent attributes the key builder reads.
type InteractionRecord struct {
	ID            int64              `json:"id"`
	RespondentID  int64              `json:"respondent_id"`
	TaskID        int64              `json:"task_id"`
	OrgName       string             `json:"organization_name"`
	Date          time.Time          `json:"date" format:"date"`
	Sex           string             `json:"sex,omitempty"`
	District      string             `json:"district,omitempty"`
	Citizenship   string             `json:"citizenship,omitempty"`
	AgeRange      string             `json:"age_range,omitempty"`
	Attributes    []string           `json:"attributes,omitempty"`
	Responses     []ResponseValue    `json:"responses,omitempty"`
	Subcategories []SubcategoryValue `json:"subcategories,omitempty"`
}

// CountRecord is a pre-aggregated event tally, already partitioned by
// demographic columns at write time.
type CountRecord struct {
	ID          int64     `json:"id"`
	EventID     int64     `json:"event_id"`
	TaskID      int64     `json:"task_id"`
	OrgName     string    `json:"organization_name"`
	Date        time.Time `json:"date" format:"date"`
	Amount      int64     `json:"amount"`
	Sex         string    `json:"sex,omitempty"`
	AgeRange    string    `json:"age_range,omitempty"`
	Citizenship string    `json:"citizenship,omitempty"`
	HIVStatus   string    `json:"hiv_status,omitempty"`
	Pregnancy   string    `json:"pregnancy,omitempty"`
}

// EventRecord backs the event-count indicator categories.
type EventRecord struct {
	ID       int64     `json:"id"`
	Name     string    `json:"name"`
	OrgName  string    `json:"organization_name"`
	Date     time.Time `json:"date" format:"date"`
	OrgCount int64     `json:"org_count"`
}

type PostRecord struct {
	ID       int64     `json:"id"`
	TaskID   int64     `json:"task_id"`
	OrgName  string    `json:"organization_name"`
	Platform string    `json:"platform"`
	Date     time.Time `json:"date" format:"date"`
	Likes    int64     `json:"likes"`
	Views    int64     `json:"views"`
	Comments int64     `json:"comments"`
	Reach    int64     `json:"reach"`
}

// PregnancyInterval is a subject timeline fact. A nil End means the
// pregnancy is ongoing through any record date that follows Began.
type PregnancyInterval struct {
	RespondentID int64      `json:"respondent_id"`
	Began        time.Time  `json:"began" format:"date"`
	Ended        *time.Time `json:"ended,omitempty" format:"date"`
}

// HIVStatusFact is one-directional: once positive, positive for all
// later dates.
type HIVStatusFact struct {
	RespondentID  int64     `json:"respondent_id"`
	PositiveSince time.Time `json:"positive_since" format:"date"`
}

// Target is a numeric goal for a task over a window. Exactly one of
// Amount or (RelatedTaskID, Percentage) is set.
type Target struct {
	ID            int64     `json:"id"`
	TaskID        int64     `json:"task_id"`
	Start         time.Time `json:"start" format:"date"`
	End           time.Time `json:"end" format:"date"`
	Amount        *int64    `json:"amount,omitempty"`
	RelatedTaskID *int64    `json:"related_task_id,omitempty"`
	Percentage    *float64  `json:"percentage,omitempty"`
}

// Flag soft-excludes a record until resolved.
type Flag struct {
	ID         string  `json:"id"`
	EntityKind string  `json:"entity_kind" enum:"interaction,respondent,count,post"`
	EntityID   int64   `json:"entity_id"`
	Reason     string  `json:"reason,omitempty"`
	Resolved   bool    `json:"resolved"`
	RaisedBy   string  `json:"raised_by"`
	RaisedAt   string  `json:"raised_at" format:"date-time"`
	ResolvedAt *string `json:"resolved_at,omitempty" format:"date-time"`
}

type AuditEvent struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}
