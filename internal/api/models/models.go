package models

import (
	"github.com/smazurov/sitemon/internal/evidence"
	"github.com/smazurov/sitemon/internal/logging"
	"github.com/smazurov/sitemon/internal/monitor"
	"github.com/smazurov/sitemon/internal/process"
	"github.com/smazurov/sitemon/internal/version"
)

// Health check models
type HealthData struct {
	Status  string `json:"status" example:"ok" doc:"Service status"`
	Message string `json:"message" example:"API is healthy" doc:"Status message"`
}

type HealthResponse struct {
	Body HealthData
}

type VersionResponse struct {
	Body version.Info
}

// Monitor models
type StatusResponse struct {
	Body monitor.Status
}

type TuningData struct {
	Threshold uint64 `json:"threshold" example:"5" doc:"Motion threshold"`
	Interval  string `json:"interval" example:"0s" doc:"Pause between sensing cycles"`
	Cooldown  string `json:"cooldown" example:"30s" doc:"Quiet period after a recording burst"`
}

type TuningResponse struct {
	Body TuningData
}

type TuningRequest struct {
	Body struct {
		Threshold *uint64 `json:"threshold,omitempty" example:"8" doc:"New motion threshold"`
		Interval  *string `json:"interval,omitempty" example:"500ms" doc:"New pause between sensing cycles"`
		Cooldown  *string `json:"cooldown,omitempty" example:"1m" doc:"New cooldown"`
	}
}

type OnMotionResponse struct {
	Body process.RunnerInfo
}

// Evidence models
type EvidenceListRequest struct {
	Limit int `query:"limit" default:"100" minimum:"1" maximum:"10000" doc:"Maximum files returned, newest first"`
}

type EvidenceListData struct {
	Files []evidence.File `json:"files" doc:"Evidence files, newest first"`
	Count int             `json:"count" example:"3" doc:"Number of files returned"`
	Total int             `json:"total" example:"120" doc:"Number of files stored"`
}

type EvidenceListResponse struct {
	Body EvidenceListData
}

type EvidenceUsageResponse struct {
	Body evidence.Usage
}

type EvidenceFileRequest struct {
	Name string `path:"name" example:"1700000000.jpeg" doc:"Evidence file name"`
}

type EvidenceFileResponse struct {
	ContentType        string `header:"Content-Type"`
	ContentDisposition string `header:"Content-Disposition"`
	Body               []byte
}

// Log models
type LogsRequest struct {
	Limit int `query:"limit" default:"200" minimum:"1" maximum:"1000" doc:"Maximum entries returned, oldest first"`
}

type LogsData struct {
	Entries []logging.LogEntry `json:"entries" doc:"Recent log entries"`
	Count   int                `json:"count" doc:"Number of entries returned"`
}

type LogsResponse struct {
	Body LogsData
}
