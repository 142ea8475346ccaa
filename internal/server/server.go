package server

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"bonaso/internal/analytics"
	"bonaso/internal/events"
	"bonaso/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   analytics.Engine
	Events   events.Writer
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"not_found"`
	Message string         `json:"message" example:"indicator not found"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the aggregation API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v1"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(newAuthMiddleware(basePath, cfg.Auth))
	hcfg := huma.DefaultConfig("BONASO Data API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerHealth(group)
	registerAggregate(group, cfg.Engine)
	registerExport(group, cfg.Engine)
	registerAchievement(group, cfg.Engine)
	registerTargetPeriods(group, cfg.Engine)
	registerFlags(group, cfg.Engine.Repo, cfg.Events)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	switch {
	case strings.Contains(lowered, "already resolved"):
		return newAPIError(http.StatusConflict, "conflict", msg, nil)
	case strings.Contains(lowered, "does not allow aggregation"):
		return newAPIError(http.StatusUnprocessableEntity, "validation_failed", msg, nil)
	case strings.Contains(lowered, "invalid") || strings.Contains(lowered, "missing") ||
		strings.Contains(lowered, "required") || strings.Contains(lowered, "unsupported"):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

// AggregateQuery is shared by the aggregate and export endpoints.
type AggregateQuery struct {
	IndicatorID     int64    `path:"indicator_id"`
	ProjectID       int64    `query:"project_id"`
	OrganizationID  int64    `query:"organization_id"`
	Start           string   `query:"start" example:"2025-01-01"`
	End             string   `query:"end" example:"2025-12-31"`
	Dimensions      []string `query:"dimensions"`
	Split           string   `query:"split" enum:",month,quarter"`
	RepeatOnly      bool     `query:"repeat_only"`
	RepeatThreshold int      `query:"repeat_threshold"`
	Cascade         bool     `query:"cascade"`
	Filters         []string `query:"filter" doc:"name:value pairs, repeatable"`
}

func (q AggregateQuery) request(ctx context.Context) (analytics.Request, huma.StatusError) {
	actor, authErr := actorFromContext(ctx)
	if authErr != nil {
		return analytics.Request{}, authErr
	}
	req := analytics.Request{
		Actor:          actor,
		IndicatorID:    q.IndicatorID,
		ProjectID:      q.ProjectID,
		OrganizationID: q.OrganizationID,
		Breakdown: analytics.BreakdownSpec{
			Dimensions:      map[string]bool{},
			Split:           q.Split,
			RepeatOnly:      q.RepeatOnly,
			RepeatThreshold: q.RepeatThreshold,
			Cascade:         q.Cascade,
		},
		Filters: map[string][]string{},
	}
	for _, d := range q.Dimensions {
		if d = strings.TrimSpace(d); d != "" {
			req.Breakdown.Dimensions[d] = true
		}
	}
	for _, f := range q.Filters {
		name, value, ok := strings.Cut(f, ":")
		if !ok || name == "" || value == "" {
			return analytics.Request{}, newAPIError(http.StatusBadRequest, "bad_request",
				fmt.Sprintf("invalid filter %q, expected name:value", f), nil)
		}
		req.Filters[name] = append(req.Filters[name], value)
	}
	var err huma.StatusError
	if req.Start, err = parseDateParam("start", q.Start); err != nil {
		return analytics.Request{}, err
	}
	if req.End, err = parseDateParam("end", q.End); err != nil {
		return analytics.Request{}, err
	}
	return req, nil
}

func parseDateParam(name, value string) (*time.Time, huma.StatusError) {
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return nil, newAPIError(http.StatusBadRequest, "bad_request",
			fmt.Sprintf("invalid %s date %q, expected YYYY-MM-DD", name, value), nil)
	}
	return &t, nil
}

func registerAggregate(api huma.API, e analytics.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "aggregate-indicator",
		Method:      http.MethodGet,
		Path:        "/indicators/{indicator_id}/aggregate",
		Summary:     "Aggregate an indicator over the requested bucket space",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *AggregateQuery) (*struct {
		Body analytics.Result `json:"body"`
	}, error) {
		req, authErr := input.request(ctx)
		if authErr != nil {
			return nil, authErr
		}
		res, err := e.Aggregate(ctx, req)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body analytics.Result `json:"body"`
		}{Body: res}, nil
	})
}

type exportQuery struct {
	AggregateQuery
	Pivot  string `query:"pivot" doc:"dimension laid out as columns"`
	Format string `query:"format" enum:",json,csv"`
}

func registerExport(api huma.API, e analytics.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "export-indicator",
		Method:      http.MethodGet,
		Path:        "/indicators/{indicator_id}/export",
		Summary:     "Export an aggregation as a pivot table",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusNotFound,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *exportQuery) (*struct {
		ContentType string `header:"Content-Type"`
		Body        []byte
	}, error) {
		req, authErr := input.request(ctx)
		if authErr != nil {
			return nil, authErr
		}
		res, err := e.Aggregate(ctx, req)
		if err != nil {
			return nil, handleError(err)
		}
		table, err := analytics.Pivot(res, input.Pivot)
		if err != nil {
			return nil, handleError(err)
		}
		if input.Format == "csv" {
			body, err := pivotCSV(table)
			if err != nil {
				return nil, handleError(err)
			}
			return &struct {
				ContentType string `header:"Content-Type"`
				Body        []byte
			}{ContentType: "text/csv", Body: body}, nil
		}
		body, err := encodeJSON(table)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			ContentType string `header:"Content-Type"`
			Body        []byte
		}{ContentType: "application/json", Body: body}, nil
	})
}

func pivotCSV(table analytics.PivotTable) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	header := append(table.Header(), "total")
	if err := w.Write(header); err != nil {
		return nil, err
	}
	for _, row := range table.Rows {
		record := make([]string, 0, len(header))
		record = append(record, row.Labels...)
		for _, c := range row.Cells {
			record = append(record, strconv.FormatInt(c, 10))
		}
		record = append(record, strconv.FormatInt(row.Total, 10))
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

func registerAchievement(api huma.API, e analytics.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "task-achievement",
		Method:      http.MethodGet,
		Path:        "/tasks/{task_id}/achievement",
		Summary:     "Target achievement for a task",
		Errors: []int{
			http.StatusUnauthorized,
			http.StatusNotFound,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		TaskID int64 `path:"task_id"`
	}) (*struct {
		Body analytics.TaskAchievement `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		out, err := e.Achievement(ctx, actor, input.TaskID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body analytics.TaskAchievement `json:"body"`
		}{Body: out}, nil
	})
}

func registerTargetPeriods(api huma.API, e analytics.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "task-target-periods",
		Method:      http.MethodGet,
		Path:        "/tasks/{task_id}/targets/periods",
		Summary:     "Target goals apportioned across calendar periods",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusNotFound,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		TaskID int64  `path:"task_id"`
		Split  string `query:"split" enum:"month,quarter" required:"true"`
	}) (*struct {
		Body []analytics.PeriodAmount `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		out, err := e.TargetPeriods(ctx, actor, input.TaskID, input.Split)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []analytics.PeriodAmount `json:"body"`
		}{Body: out}, nil
	})
}

func headerInt64(req *http.Request, name string) int64 {
	v := strings.TrimSpace(req.Header.Get(name))
	if v == "" {
		return 0
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
