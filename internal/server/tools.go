// internal/server/tools.go
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/ThinkInAIXYZ/go-mcp/protocol"
	"github.com/go-chi/chi/v5"

	"nutrimood/internal/apperr"
)

// extractParams converts the request arguments into a plain JSON object.
func extractParams(req *protocol.CallToolRequest, target interface{}) error {
	jsonBytes, err := json.Marshal(req.Arguments)
	if err != nil {
		return apperr.Invalid("failed to marshal arguments: %v", err)
	}
	if string(jsonBytes) == "null" {
		return nil
	}
	if err := json.Unmarshal(jsonBytes, target); err != nil {
		return apperr.Invalid("failed to unmarshal parameters: %v", err)
	}
	return nil
}

// handleMCP executes a tools/call style request. Tool failures are reported
// inside the result with IsError set; the status code still reflects the
// error kind.
func (s *NutriMoodServer) handleMCP(w http.ResponseWriter, r *http.Request) {
	var request protocol.CallToolRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		writeError(w, r, apperr.Invalid("invalid JSON: %v", err))
		return
	}

	var args map[string]any
	if err := extractParams(&request, &args); err != nil {
		writeError(w, r, err)
		return
	}

	data, err := s.deps.Gateway.Call(r.Context(), request.Name, args)
	if errors.Is(err, apperr.ErrUnknownTool) {
		writeError(w, r, err)
		return
	}
	if err != nil {
		result, encErr := createJSONResponse(newErrorBody(err))
		if encErr != nil {
			writeError(w, r, encErr)
			return
		}
		result.IsError = true
		writeJSON(w, apperr.HTTPStatus(err), result)
		return
	}

	result, err := createJSONResponse(data)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *NutriMoodServer) handleMCPInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Gateway.Info())
}

func (s *NutriMoodServer) handleListTools(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, protocol.NewListToolsResult(s.deps.Gateway.Tools(), ""))
}

// handleCallTool takes the arguments object as the whole request body and
// answers with the tool's plain JSON result.
func (s *NutriMoodServer) handleCallTool(w http.ResponseWriter, r *http.Request) {
	var args map[string]any
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &args); err != nil {
			writeError(w, r, err)
			return
		}
	}
	data, err := s.deps.Gateway.Call(r.Context(), chi.URLParam(r, "name"), args)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, data)
}

func (s *NutriMoodServer) handleListResources(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, protocol.NewListResourcesResult(s.deps.Gateway.Resources(), ""))
}

func (s *NutriMoodServer) handleReadResource(w http.ResponseWriter, r *http.Request) {
	content, err := s.deps.Gateway.ReadResource(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, content)
}

func (s *NutriMoodServer) handleListPrompts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, protocol.NewListPromptsResult(s.deps.Gateway.Prompts(), ""))
}

func (s *NutriMoodServer) handleGetPrompt(w http.ResponseWriter, r *http.Request) {
	var args map[string]string
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &args); err != nil {
			writeError(w, r, err)
			return
		}
	}
	result, err := s.deps.Gateway.Prompt(chi.URLParam(r, "name"), args)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func createJSONResponse(data interface{}) (*protocol.CallToolResult, error) {
	jsonBytes, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal response: %w", err)
	}

	return &protocol.CallToolResult{
		Content: []protocol.Content{
			protocol.TextContent{
				Type: "text",
				Text: string(jsonBytes),
			},
		},
	}, nil
}
