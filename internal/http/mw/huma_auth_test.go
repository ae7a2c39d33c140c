package mw

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"testing"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/humatest"
)

type pingOutput struct {
	Body struct {
		OK bool `json:"ok"`
	}
}

func ping(ctx context.Context, _ *struct{}) (*pingOutput, error) {
	out := &pingOutput{}
	out.Body.OK = true
	return out, nil
}

func TestAdminAuth(t *testing.T) {
	_, api := humatest.New(t)
	api.UseMiddleware(AdminAuth(api, "s3cret", slog.New(slog.NewTextHandler(io.Discard, nil))))
	api.OpenAPI().Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		SecurityScheme: {Type: "http", Scheme: "bearer"},
	}

	PublicGet(api, "/public", ping, WithOperationID("public-ping"))
	AdminPost(api, "/admin", ping, WithOperationID("admin-ping"), WithTags("Admin"))

	tests := []struct {
		name   string
		method string
		path   string
		header []any
		want   int
	}{
		{"public needs no key", http.MethodGet, "/public", nil, http.StatusOK},
		{"admin without header", http.MethodPost, "/admin", nil, http.StatusUnauthorized},
		{"admin with wrong key", http.MethodPost, "/admin", []any{"Authorization: Bearer nope"}, http.StatusUnauthorized},
		{"admin without bearer prefix", http.MethodPost, "/admin", []any{"Authorization: s3cret"}, http.StatusUnauthorized},
		{"admin with key", http.MethodPost, "/admin", []any{"Authorization: Bearer s3cret"}, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := api.Do(tt.method, tt.path, tt.header...)
			if got := resp.Code; got != tt.want {
				t.Errorf("status = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestAdminAuth_EmptyKeyDisablesAdmin(t *testing.T) {
	_, api := humatest.New(t)
	api.UseMiddleware(AdminAuth(api, "", slog.New(slog.NewTextHandler(io.Discard, nil))))
	AdminPost(api, "/admin", ping)

	resp := api.Post("/admin", "Authorization: Bearer ")
	if resp.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.Code)
	}
}

func TestOperationOptions(t *testing.T) {
	op := huma.Operation{}
	for _, opt := range []OperationOption{
		WithTags("Session"),
		WithSummary("Start"),
		WithDescription("Starts a session"),
		WithOperationID("start-session"),
		WithErrors(http.StatusNotFound),
		WithMaxBodyBytes(1024),
	} {
		opt(&op)
	}
	if len(op.Tags) != 1 || op.Summary != "Start" || op.Description == "" || op.OperationID != "start-session" {
		t.Errorf("operation = %+v", op)
	}
	if len(op.Errors) != 1 || op.MaxBodyBytes != 1024 {
		t.Errorf("errors = %v, max body = %d", op.Errors, op.MaxBodyBytes)
	}
}
