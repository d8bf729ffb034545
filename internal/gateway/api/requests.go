// Package api provides the HTTP surface of the execution gateway.
package api

import (
	v1 "github.com/promptgate/promptgate/pkg/api/v1"
)

// RunRequest is the body of POST /run.
type RunRequest struct {
	Prompt  string `json:"prompt" binding:"required"`
	Context string `json:"context,omitempty"`
}

// RunResponse is the success body of POST /run.
type RunResponse struct {
	Success     bool   `json:"success"`
	Response    string `json:"response"`
	AuthMode    string `json:"authMode"`
	ExecutionID string `json:"executionId"`
}

// HealthResponse is the body of GET /healthz.
type HealthResponse struct {
	Status   string `json:"status"`
	AuthMode string `json:"authMode"`
}

// AssetListResponse lists the names in one asset collection.
type AssetListResponse struct {
	Kind  string   `json:"kind"`
	Names []string `json:"names"`
	Total int      `json:"total"`
}

// ExecutionsListResponse lists recorded executions.
type ExecutionsListResponse struct {
	Executions []*v1.Execution `json:"executions"`
	Total      int             `json:"total"`
}
