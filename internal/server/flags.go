package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"bonaso/internal/domain"
	"bonaso/internal/events"
	"bonaso/internal/repo"
)

type RaiseFlagRequest struct {
	EntityKind string `json:"entity_kind" enum:"interaction,respondent,count,post"`
	EntityID   int64  `json:"entity_id"`
	Reason     string `json:"reason,omitempty"`
}

func registerFlags(api huma.API, r repo.Repo, w events.Writer) {
	huma.Register(api, huma.Operation{
		OperationID:   "raise-flag",
		Method:        http.MethodPost,
		Path:          "/flags",
		Summary:       "Raise a flag on a record",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body RaiseFlagRequest `json:"body"`
	}) (*struct {
		Body domain.Flag `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		flag, err := r.RaiseFlag(ctx, w, input.Body.EntityKind, input.Body.EntityID, input.Body.Reason, actor.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Flag `json:"body"`
		}{Body: flag}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "resolve-flag",
		Method:      http.MethodPost,
		Path:        "/flags/{flag_id}/resolve",
		Summary:     "Resolve a flag, returning the record to aggregation",
		Errors: []int{
			http.StatusUnauthorized,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		FlagID string `path:"flag_id"`
	}) (*struct {
		Body domain.Flag `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		flag, err := r.ResolveFlag(ctx, w, input.FlagID, actor.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Flag `json:"body"`
		}{Body: flag}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-flags",
		Method:      http.MethodGet,
		Path:        "/flags",
		Summary:     "List flags",
		Errors: []int{
			http.StatusUnauthorized,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		EntityKind string `query:"entity_kind" enum:",interaction,respondent,count,post"`
		Unresolved bool   `query:"unresolved"`
	}) (*struct {
		Body []domain.Flag `json:"body"`
	}, error) {
		if _, authErr := actorFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		flags, err := r.ListFlags(ctx, input.EntityKind, input.Unresolved)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Flag `json:"body"`
		}{Body: flags}, nil
	})
}

func encodeJSON(v any) ([]byte, error) {
	return json.MarshalIndent(v, "", "  ")
}
