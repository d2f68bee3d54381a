package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/sitemon/internal/api/models"
	"github.com/smazurov/sitemon/internal/evidence"
)

var contentTypes = map[string]string{
	"pgm":  "image/x-portable-graymap",
	"jpeg": "image/jpeg",
}

func (s *Server) registerEvidenceRoutes() {
	store := s.options.Evidence
	if store == nil {
		return
	}

	huma.Register(s.api, huma.Operation{
		OperationID: "list-evidence",
		Method:      http.MethodGet,
		Path:        "/api/evidence",
		Summary:     "List Evidence",
		Description: "Captured frames, newest first",
		Tags:        []string{"evidence"},
		Security:    withAuth(),
		Errors:      []int{401, 500},
	}, func(_ context.Context, input *models.EvidenceListRequest) (*models.EvidenceListResponse, error) {
		files, err := store.List()
		if err != nil {
			return nil, huma.Error500InternalServerError("Failed to list evidence", err)
		}
		total := len(files)
		if len(files) > input.Limit {
			files = files[:input.Limit]
		}
		if files == nil {
			files = []evidence.File{}
		}
		return &models.EvidenceListResponse{
			Body: models.EvidenceListData{Files: files, Count: len(files), Total: total},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-evidence-usage",
		Method:      http.MethodGet,
		Path:        "/api/evidence/usage",
		Summary:     "Evidence Usage",
		Description: "Number and total size of stored frames",
		Tags:        []string{"evidence"},
		Security:    withAuth(),
		Errors:      []int{401, 500},
	}, func(_ context.Context, _ *struct{}) (*models.EvidenceUsageResponse, error) {
		usage, err := store.Usage()
		if err != nil {
			return nil, huma.Error500InternalServerError("Failed to read evidence usage", err)
		}
		return &models.EvidenceUsageResponse{Body: usage}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-evidence-file",
		Method:      http.MethodGet,
		Path:        "/api/evidence/{name}",
		Summary:     "Download Evidence",
		Description: "Raw frame: PGM for sensing frames, JPEG for recorded frames",
		Tags:        []string{"evidence"},
		Security:    withAuth(),
		Errors:      []int{401, 404, 500},
	}, func(_ context.Context, input *models.EvidenceFileRequest) (*models.EvidenceFileResponse, error) {
		path, err := store.Path(input.Name)
		if errors.Is(err, evidence.ErrNotFound) {
			return nil, huma.Error404NotFound("Evidence file not found")
		}
		if err != nil {
			return nil, huma.Error500InternalServerError("Failed to resolve evidence file", err)
		}
		data, err := os.ReadFile(path)
		if errors.Is(err, os.ErrNotExist) {
			// pruned between lookup and read
			return nil, huma.Error404NotFound("Evidence file not found")
		}
		if err != nil {
			return nil, huma.Error500InternalServerError("Failed to read evidence file", err)
		}
		kind, _ := evidence.KindOf(input.Name)
		return &models.EvidenceFileResponse{
			ContentType:        contentTypes[kind],
			ContentDisposition: fmt.Sprintf("inline; filename=%q", input.Name),
			Body:               data,
		}, nil
	})
}
