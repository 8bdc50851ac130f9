package handlers

import (
	"net/http"
	"time"

	"github.com/nourx/mailer/internal/app"
)

type WorkerHandler struct {
	worker *app.Worker
}

func (h *WorkerHandler) Start(w http.ResponseWriter, r *http.Request) {
	if err := h.worker.Start(r.Context()); err != nil {
		Error(w, r, http.StatusServiceUnavailable, "Failed to start email worker: "+err.Error())
		return
	}

	JSON(w, r, http.StatusOK, map[string]interface{}{
		"message": "Email worker started",
		"status":  "active",
	})
}

func (h *WorkerHandler) Stop(w http.ResponseWriter, r *http.Request) {
	h.worker.Stop()

	JSON(w, r, http.StatusOK, map[string]interface{}{
		"message": "Email worker stopped",
		"status":  "inactive",
	})
}

func (h *WorkerHandler) Stats(w http.ResponseWriter, r *http.Request) {
	since := time.Time{}
	if sinceStr := r.URL.Query().Get("since"); sinceStr != "" {
		parsed, err := time.Parse(time.RFC3339, sinceStr)
		if err != nil {
			Error(w, r, http.StatusBadRequest, "Invalid since parameter, expected RFC3339")
			return
		}
		since = parsed
	}

	stats, err := h.worker.Stats(r.Context(), since)
	if err != nil {
		Error(w, r, http.StatusInternalServerError, "Failed to retrieve worker stats")
		return
	}

	JSON(w, r, http.StatusOK, stats)
}

func RegisterWorkerHandler(mux *http.ServeMux, worker *app.Worker) {
	h := &WorkerHandler{worker: worker}

	mux.HandleFunc("POST /worker/start", h.Start)
	mux.HandleFunc("POST /worker/stop", h.Stop)
	mux.HandleFunc("GET /worker/stats", h.Stats)
}
