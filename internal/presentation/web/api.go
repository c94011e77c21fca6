package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"smart-mcp/internal/domain"
)

// createRequest is the union of create bodies across kinds. Which fields
// matter is decided by the route the request came in on.
type createRequest struct {
	Name        string   `json:"name"`
	Role        string   `json:"role"`
	Content     string   `json:"content"`
	Description string   `json:"description"`
	Category    string   `json:"category"`
	Code        string   `json:"code"`
	Tags        []string `json:"tags"`
}

type updateRequest struct {
	Name        *string            `json:"name"`
	Role        *domain.PromptRole `json:"role"`
	Content     *string            `json:"content"`
	Description *string            `json:"description"`
	Category    *string            `json:"category"`
	Code        *string            `json:"code"`
	Tags        *[]string          `json:"tags"`
}

func (s *Server) handleList(kind domain.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		artifacts, err := s.svc.List(r.Context(), kind)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, artifacts)
	}
}

func (s *Server) handleGet(kind domain.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, err := s.svc.Get(r.Context(), r.PathValue("id"))
		if err != nil {
			writeError(w, err)
			return
		}
		if a.Kind != kind {
			writeJSON(w, http.StatusNotFound, map[string]any{"detail": "not found"})
			return
		}
		writeJSON(w, http.StatusOK, a)
	}
}

func (s *Server) handleCreate(kind domain.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createRequest
		if err := decodeBody(r, &req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"detail": err.Error()})
			return
		}

		a, err := s.svc.Create(r.Context(), domain.CreateInput{
			Kind:        kind,
			Name:        req.Name,
			Role:        domain.PromptRole(req.Role),
			Content:     req.Content,
			Description: req.Description,
			Category:    req.Category,
			Code:        req.Code,
			Tags:        req.Tags,
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, a)
	}
}

func (s *Server) handleUpdate(kind domain.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")

		var req updateRequest
		if err := decodeBody(r, &req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"detail": err.Error()})
			return
		}

		if err := s.requireKind(r, id, kind); err != nil {
			writeError(w, err)
			return
		}

		a, err := s.svc.Update(r.Context(), id, domain.UpdateInput{
			Name:        req.Name,
			Role:        req.Role,
			Content:     req.Content,
			Description: req.Description,
			Category:    req.Category,
			Code:        req.Code,
			Tags:        req.Tags,
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, a)
	}
}

func (s *Server) handleDelete(kind domain.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")

		if err := s.requireKind(r, id, kind); err != nil {
			writeError(w, err)
			return
		}
		if err := s.svc.Delete(r.Context(), id); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// handleSearch serves GET /api/v1/search?q=...&target=prompt|resource|tool|all&k=N.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"detail": "q is required"})
		return
	}

	target := r.URL.Query().Get("target")
	var kind domain.Kind
	switch target {
	case "", "all":
		kind = ""
	case "prompt", "resource", "tool":
		kind = domain.Kind(target)
	default:
		writeJSON(w, http.StatusBadRequest, map[string]any{"detail": "target must be prompt, resource, tool or all"})
		return
	}

	k := 0
	if raw := r.URL.Query().Get("k"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeJSON(w, http.StatusBadRequest, map[string]any{"detail": "k must be a positive integer"})
			return
		}
		k = parsed
	}
	if k == 0 {
		k = s.rpc.TopK()
	}

	hits, err := s.svc.Search(r.Context(), q, k, kind)
	if err != nil {
		writeError(w, err)
		return
	}

	results := make([]map[string]any, 0, len(hits))
	for _, h := range hits {
		results = append(results, map[string]any{
			"id":      h.Artifact.ID,
			"type":    h.Artifact.Kind,
			"score":   h.Score,
			"payload": h.Artifact,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"query": q, "results": results})
}

// requireKind turns a cross-kind id into the same 404 a missing id gets, so
// PUT /api/v1/prompts/{id} cannot touch a resource.
func (s *Server) requireKind(r *http.Request, id string, kind domain.Kind) error {
	a, err := s.svc.Get(r.Context(), id)
	if err != nil {
		return err
	}
	if a.Kind != kind {
		return domain.ErrNotFound
	}
	return nil
}

func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 4<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid JSON body: %v", err)
	}
	return nil
}
