package router

import (
	"context"
	"encoding/json"

	"github.com/dmitrijs2005/usersvc/internal/server/apperr"
	"github.com/dmitrijs2005/usersvc/internal/server/users"
)

const (
	msgMalformedBody        = "Malformed request body."
	msgCredentialsRequired  = "Email and password are required."
	msgUserIDRequired       = "User ID is required."
	msgUserIDsRequired      = "User IDs are required."
	msgCreateFieldsRequired = "Email, password and displayName are required."
)

// Absent and null fields decode to nil pointers.
type authenticateRequest struct {
	Email    *string `json:"email"`
	Password *string `json:"password"`
}

type idRequest struct {
	ID *string `json:"id"`
}

type idsRequest struct {
	IDs []string `json:"ids"`
}

type createRequest struct {
	Email       *string `json:"email"`
	Password    *string `json:"password"`
	DisplayName *string `json:"displayName"`
}

type updateRequest struct {
	ID          *string `json:"id"`
	Email       *string `json:"email"`
	Password    *string `json:"password"`
	DisplayName *string `json:"displayName"`
}

// decode parses body into v. An empty or null body leaves v zero.
func decode(body []byte, v any) error {
	if len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, v); err != nil {
		return apperr.InvalidInput(msgMalformedBody)
	}
	return nil
}

func blank(s *string) bool {
	return s == nil || *s == ""
}

func (r *Router) authenticate(ctx context.Context, body []byte) (any, error) {
	var req authenticateRequest
	if err := decode(body, &req); err != nil {
		return nil, err
	}
	if blank(req.Email) || blank(req.Password) {
		return nil, apperr.InvalidInput(msgCredentialsRequired)
	}
	return r.svc.Authenticate(ctx, *req.Email, *req.Password)
}

func (r *Router) getAll(ctx context.Context, _ []byte) (any, error) {
	return r.svc.ListAll(ctx)
}

func (r *Router) getByID(ctx context.Context, body []byte) (any, error) {
	var req idRequest
	if err := decode(body, &req); err != nil {
		return nil, err
	}
	if req.ID == nil {
		return nil, apperr.InvalidInput(msgUserIDRequired)
	}
	return r.svc.GetByID(ctx, *req.ID)
}

func (r *Router) getSummaries(ctx context.Context, body []byte) (any, error) {
	var req idsRequest
	if err := decode(body, &req); err != nil {
		return nil, err
	}
	if req.IDs == nil {
		return nil, apperr.InvalidInput(msgUserIDsRequired)
	}
	return r.svc.GetSummariesByIDs(ctx, req.IDs)
}

func (r *Router) create(ctx context.Context, body []byte) (any, error) {
	var req createRequest
	if err := decode(body, &req); err != nil {
		return nil, err
	}
	if blank(req.Email) || blank(req.Password) || blank(req.DisplayName) {
		return nil, apperr.InvalidInput(msgCreateFieldsRequired)
	}
	return r.svc.Create(ctx, *req.Email, *req.Password, *req.DisplayName)
}

func (r *Router) update(ctx context.Context, body []byte) (any, error) {
	var req updateRequest
	if err := decode(body, &req); err != nil {
		return nil, err
	}
	if req.ID == nil {
		return nil, apperr.InvalidInput(msgUserIDRequired)
	}
	return r.svc.Update(ctx, *req.ID, users.Update{
		Email:       req.Email,
		Password:    req.Password,
		DisplayName: req.DisplayName,
	})
}

func (r *Router) delete(ctx context.Context, body []byte) (any, error) {
	var req idRequest
	if err := decode(body, &req); err != nil {
		return nil, err
	}
	if req.ID == nil {
		return nil, apperr.InvalidInput(msgUserIDRequired)
	}
	return r.svc.DeleteByID(ctx, *req.ID)
}
