package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"shopharvest/packages/csvexport"
	"shopharvest/packages/db"
	"shopharvest/packages/domain"
	"shopharvest/packages/worker"
)

// The boundary stays thin on purpose: auth and real validation live in
// front of this service, the user id arrives as a header, and the core
// packages never import anything from here.
func newRouter(dispatcher *worker.Dispatcher, storage *db.Storage) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /harvests", handleSubmit(dispatcher))
	mux.HandleFunc("GET /harvests/{id}", handleStatus(storage))
	mux.HandleFunc("GET /harvests/{id}/download", handleDownload(storage))
	return mux
}

type submitRequest struct {
	URL string `json:"url"`
}

func handleSubmit(dispatcher *worker.Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get("X-User-ID")
		if userID == "" {
			writeError(w, http.StatusUnauthorized, "missing X-User-ID header")
			return
		}

		var req submitRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		jobID, err := dispatcher.Dispatch(r.Context(), userID, req.URL)
		if err != nil {
			writeSubmitError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"job_id": jobID})
	}
}

func writeSubmitError(w http.ResponseWriter, err error) {
	var credits *domain.InsufficientCreditsError
	var store *domain.InvalidStoreError
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &credits):
		writeJSON(w, http.StatusPaymentRequired, map[string]any{
			"error":     credits.Error(),
			"shortfall": credits.Shortfall(),
		})
	case errors.As(err, &store):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":  store.Error(),
			"reason": store.Reason,
		})
	case errors.Is(err, domain.ErrHarvestInProgress):
		writeError(w, http.StatusConflict, err.Error())
	default:
		slog.Error("Submit failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func handleStatus(storage *db.Storage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, err := storage.Get(r.Context(), r.PathValue("id"))
		if err != nil {
			if errors.Is(err, db.ErrJobNotFound) {
				writeError(w, http.StatusNotFound, "job not found")
				return
			}
			slog.Error("Job lookup failed", "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, job)
	}
}

func handleDownload(storage *db.Storage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID := r.PathValue("id")
		job, err := storage.Get(r.Context(), jobID)
		if err != nil {
			if errors.Is(err, db.ErrJobNotFound) {
				writeError(w, http.StatusNotFound, "job not found")
				return
			}
			slog.Error("Job lookup failed", "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		if job.Status != domain.StatusCompleted {
			writeError(w, http.StatusConflict, fmt.Sprintf("job is %s, not completed", job.Status))
			return
		}

		products, err := storage.GetProducts(r.Context(), jobID)
		if err != nil {
			slog.Error("Product load failed", "job_id", jobID, "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}

		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition",
			fmt.Sprintf("attachment; filename=%q", job.StoreTarget.DisplayName+"-products.csv"))
		if err := csvexport.Write(w, products); err != nil {
			slog.Error("CSV write failed", "job_id", jobID, "error", err)
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
