package api

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"strings"
	"testing"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/humatest"
)

func TestRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	_, api := humatest.New(t)
	api.UseMiddleware(RequestLogger(logger))
	huma.Register(api, huma.Operation{
		OperationID: "list-things",
		Method:      http.MethodGet,
		Path:        "/things",
	}, func(_ context.Context, _ *struct{}) (*struct{}, error) {
		return nil, nil
	})
	huma.Register(api, huma.Operation{
		OperationID: "broken-thing",
		Method:      http.MethodGet,
		Path:        "/broken",
	}, func(_ context.Context, _ *struct{}) (*struct{}, error) {
		return nil, huma.Error500InternalServerError("boom")
	})

	tests := []struct {
		name    string
		path    string
		want    []string
		notWant []string
	}{
		{
			name:    "credentials redacted",
			path:    "/things?auth=YWRtaW46c2VjcmV0&limit=5",
			want:    []string{"level=INFO", "operation=list-things", "auth=REDACTED", "limit=5"},
			notWant: []string{"YWRtaW46c2VjcmV0"},
		},
		{
			name: "server error",
			path: "/broken",
			want: []string{"level=ERROR", "status=500", "operation=broken-thing"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf.Reset()
			api.Get(tt.path)
			line := buf.String()
			for _, w := range tt.want {
				if !strings.Contains(line, w) {
					t.Errorf("log %q missing %q", line, w)
				}
			}
			for _, w := range tt.notWant {
				if strings.Contains(line, w) {
					t.Errorf("log %q contains %q", line, w)
				}
			}
		})
	}
}
