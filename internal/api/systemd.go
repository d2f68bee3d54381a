package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/sitemon/internal/api/models"
	"github.com/smazurov/sitemon/internal/systemd"
)

func (s *Server) registerSystemdRoutes() {
	if s.options.SystemdManager == nil {
		return
	}

	unit := s.options.ServiceName
	if unit == "" {
		unit = systemd.ServiceName
	}

	huma.Register(s.api, huma.Operation{
		OperationID: "get-service-status",
		Method:      http.MethodGet,
		Path:        "/api/service/status",
		Summary:     "Service Status",
		Description: "Active state of the monitor's systemd unit",
		Tags:        []string{"systemd"},
		Security:    withAuth(),
		Errors:      []int{401, 500},
	}, func(ctx context.Context, _ *struct{}) (*models.SystemdServiceStatusResponse, error) {
		status, err := s.options.SystemdManager.ServiceStatus(ctx, unit)
		if err != nil {
			return nil, huma.Error500InternalServerError("Failed to get service status", err)
		}
		return &models.SystemdServiceStatusResponse{
			Body: models.SystemdServiceStatus{Service: unit, Status: status},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "restart-service",
		Method:      http.MethodPost,
		Path:        "/api/service/restart",
		Summary:     "Restart Service",
		Description: "Ask systemd to restart the monitor. The response is sent before the restart takes effect.",
		Tags:        []string{"systemd"},
		Security:    withAuth(),
		Errors:      []int{401, 500},
	}, func(ctx context.Context, _ *struct{}) (*models.SystemdServiceActionResponse, error) {
		if err := s.options.SystemdManager.RestartService(ctx, unit); err != nil {
			return nil, huma.Error500InternalServerError("Failed to restart service", err)
		}
		return &models.SystemdServiceActionResponse{
			Body: models.SystemdServiceAction{Service: unit, Action: "restart", Success: true},
		}, nil
	})
}
