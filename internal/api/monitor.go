package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/sitemon/internal/api/models"
)

func (s *Server) registerMonitorRoutes() {
	if s.options.Monitor != nil {
		huma.Register(s.api, huma.Operation{
			OperationID: "get-status",
			Method:      http.MethodGet,
			Path:        "/api/status",
			Summary:     "Monitor Status",
			Description: "Current monitor state, capture format, last motion score and counters",
			Tags:        []string{"monitor"},
			Security:    withAuth(),
			Errors:      []int{401},
		}, func(_ context.Context, _ *struct{}) (*models.StatusResponse, error) {
			return &models.StatusResponse{Body: s.options.Monitor.Status()}, nil
		})

		huma.Register(s.api, huma.Operation{
			OperationID: "get-tuning",
			Method:      http.MethodGet,
			Path:        "/api/tuning",
			Summary:     "Get Tuning",
			Description: "Live motion settings",
			Tags:        []string{"monitor"},
			Security:    withAuth(),
			Errors:      []int{401},
		}, func(_ context.Context, _ *struct{}) (*models.TuningResponse, error) {
			return s.tuningResponse(), nil
		})

		huma.Register(s.api, huma.Operation{
			OperationID: "update-tuning",
			Method:      http.MethodPatch,
			Path:        "/api/tuning",
			Summary:     "Update Tuning",
			Description: "Change the motion threshold, sensing interval or cooldown without a restart. Omitted fields keep their value. Edits to the config file override these on the next reload.",
			Tags:        []string{"monitor"},
			Security:    withAuth(),
			Errors:      []int{400, 401},
		}, func(_ context.Context, input *models.TuningRequest) (*models.TuningResponse, error) {
			t := s.options.Monitor.CurrentTuning()
			if input.Body.Threshold != nil {
				t.Threshold = *input.Body.Threshold
			}
			var err error
			if input.Body.Interval != nil {
				if t.Interval, err = parseDuration("interval", *input.Body.Interval); err != nil {
					return nil, err
				}
			}
			if input.Body.Cooldown != nil {
				if t.Cooldown, err = parseDuration("cooldown", *input.Body.Cooldown); err != nil {
					return nil, err
				}
			}
			s.options.Monitor.Tune(t)
			return s.tuningResponse(), nil
		})
	}

	if s.options.OnMotion != nil {
		huma.Register(s.api, huma.Operation{
			OperationID: "get-on-motion",
			Method:      http.MethodGet,
			Path:        "/api/on-motion",
			Summary:     "On-Motion Command",
			Description: "State of the command started when motion is detected",
			Tags:        []string{"monitor"},
			Security:    withAuth(),
			Errors:      []int{401},
		}, func(_ context.Context, _ *struct{}) (*models.OnMotionResponse, error) {
			return &models.OnMotionResponse{Body: s.options.OnMotion.Info()}, nil
		})
	}
}

func (s *Server) tuningResponse() *models.TuningResponse {
	t := s.options.Monitor.CurrentTuning()
	return &models.TuningResponse{
		Body: models.TuningData{
			Threshold: t.Threshold,
			Interval:  t.Interval.String(),
			Cooldown:  t.Cooldown.String(),
		},
	}
}

func parseDuration(field, value string) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, huma.Error400BadRequest("Invalid "+field, err)
	}
	if d < 0 {
		return 0, huma.Error400BadRequest("Negative " + field)
	}
	return d, nil
}
