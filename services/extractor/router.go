package extractor

import (
	"encoding/json"
	"net/http"

	"socialkpi-backend/lib/kpi"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type extractResponse struct {
	Success bool                      `json:"success"`
	Data    map[kpi.Platform]any      `json:"data,omitempty"`
	Errors  map[kpi.Platform]string   `json:"errors,omitempty"`
	Message string                    `json:"message,omitempty"`
}

// NewRouter mounts the HTTP boundary: POST /api/extract takes a JSON
// object of platform keys to profile URLs, POST /api/extract/{platform}
// extracts a single platform, GET /api/health is the liveness probe.
func NewRouter(svc *Service) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Post("/api/extract", svc.handleExtract)
	r.Post("/api/extract/{platform}", svc.handleExtractPlatform)
	r.Get("/api/health", handleHealth)
	return r
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Service) handleExtract(w http.ResponseWriter, r *http.Request) {
	var body map[string]string
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, extractResponse{
			Success: false,
			Message: "request body must be a JSON object of platform keys to profile URLs",
		})
		return
	}

	reqs := make([]kpi.ExtractionRequest, 0, len(body))
	for key, profileURL := range body {
		platform, err := kpi.ParsePlatform(key)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, extractResponse{
				Success: false,
				Message: "unknown platform key: " + key,
			})
			return
		}
		if profileURL == "" {
			continue
		}
		reqs = append(reqs, kpi.ExtractionRequest{Platform: platform, ProfileURL: profileURL})
	}
	if len(reqs) == 0 {
		writeJSON(w, http.StatusBadRequest, extractResponse{
			Success: false,
			Message: "no profile URLs provided",
		})
		return
	}

	outcomes := s.ExtractBatch(r.Context(), reqs)

	res := extractResponse{
		Success: true,
		Data:    make(map[kpi.Platform]any, len(outcomes)),
	}
	for platform, outcome := range outcomes {
		if outcome.Err != nil {
			res.Data[platform] = nil
			if res.Errors == nil {
				res.Errors = make(map[kpi.Platform]string)
			}
			res.Errors[platform] = string(kpi.KindOf(outcome.Err))
			continue
		}
		res.Data[platform] = ResultDTO(outcome.Result)
	}
	writeJSON(w, http.StatusOK, res)
}

// handleExtractPlatform extracts one platform named in the path, with
// the profile URL in the body. On success the metrics object is the
// whole response, with no batch envelope around it.
func (s *Service) handleExtractPlatform(w http.ResponseWriter, r *http.Request) {
	platform, err := kpi.ParsePlatform(chi.URLParam(r, "platform"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "unsupported platform: " + chi.URLParam(r, "platform"),
		})
		return
	}

	var body struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.URL == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "no profile URL provided"})
		return
	}

	outcomes := s.ExtractBatch(r.Context(), []kpi.ExtractionRequest{
		{Platform: platform, ProfileURL: body.URL},
	})
	outcome := outcomes[platform]
	if outcome.Err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": string(kpi.KindOf(outcome.Err)),
		})
		return
	}
	writeJSON(w, http.StatusOK, ResultDTO(outcome.Result))
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
