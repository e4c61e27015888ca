package api

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	apperrors "receipt-agent/internal/common/errors"
	"receipt-agent/internal/common/metrics"
	"receipt-agent/internal/extraction"
	"receipt-agent/internal/models"
	"receipt-agent/internal/stages"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// SubmitRequest is the JSON form of a receipt submission.
type SubmitRequest struct {
	EmployeeID  string `json:"employee_id"`
	File        string `json:"file"` // base64
	ContentType string `json:"content_type,omitempty"`
}

type SubmitResponse struct {
	FileID string `json:"fileId"`
	Status string `json:"status"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func newFileID() string { return uuid.NewString() }

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

func (s *Server) ready(w http.ResponseWriter, r *http.Request) {
	if s.opts.Ready != nil {
		if err := s.opts.Ready(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ready",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// processReceipt accepts a receipt and processes it in the background.
func (s *Server) processReceipt(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)

	doc, err := decodeSubmission(r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, apperrors.NewInvalidSubmissionError("receipt file too large"))
			return
		}
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if _, err := extraction.ContentType(doc); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if !s.sem.TryAcquire(1) {
		w.Header().Set("Retry-After", "5")
		writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "intake is at capacity"})
		return
	}

	doc.FileID = s.newID()
	metrics.IntakeInFlight.Inc()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer metrics.IntakeInFlight.Dec()
		defer s.sem.Release(1)

		// the pipeline logs the outcome and records the failure stage
		_, _ = s.opts.Processor.Process(s.baseCtx, doc)
	}()

	writeJSON(w, http.StatusAccepted, SubmitResponse{FileID: doc.FileID, Status: "accepted"})
}

func decodeSubmission(r *http.Request) (extraction.Document, error) {
	ct := r.Header.Get("Content-Type")
	if strings.HasPrefix(ct, "multipart/form-data") {
		return decodeMultipart(r)
	}

	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return extraction.Document{}, err
		}
		return extraction.Document{}, apperrors.NewInvalidSubmissionError("invalid request body")
	}
	if strings.TrimSpace(req.EmployeeID) == "" {
		return extraction.Document{}, apperrors.NewInvalidSubmissionError("employee_id is required")
	}
	data, err := base64.StdEncoding.DecodeString(req.File)
	if err != nil {
		return extraction.Document{}, apperrors.NewInvalidSubmissionError("file is not valid base64")
	}
	return extraction.Document{
		EmployeeID:  strings.TrimSpace(req.EmployeeID),
		Data:        data,
		ContentType: req.ContentType,
	}, nil
}

func decodeMultipart(r *http.Request) (extraction.Document, error) {
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return extraction.Document{}, err
		}
		return extraction.Document{}, apperrors.NewInvalidSubmissionError("invalid multipart form")
	}
	employeeID := strings.TrimSpace(r.FormValue("employee_id"))
	if employeeID == "" {
		return extraction.Document{}, apperrors.NewInvalidSubmissionError("employee_id is required")
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return extraction.Document{}, apperrors.NewInvalidSubmissionError("file is required")
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return extraction.Document{}, err
	}
	return extraction.Document{
		EmployeeID:  employeeID,
		Data:        data,
		ContentType: header.Header.Get("Content-Type"),
	}, nil
}

func (s *Server) listReceipts(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	list, err := s.opts.Stages.List(r.Context(), limit)
	if err != nil {
		s.logger.Error("failed to list receipts", map[string]interface{}{"error": err.Error()})
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if list == nil {
		list = []*models.FileStatus{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"receipts": list})
}

func (s *Server) receiptStages(w http.ResponseWriter, r *http.Request) {
	status, err := s.opts.Stages.Get(r.Context(), chi.URLParam(r, "fileID"))
	if errors.Is(err, stages.ErrUnknownFile) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
		return
	}
	if err != nil {
		s.logger.Error("failed to read stages", map[string]interface{}{"error": err.Error()})
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) listEmployees(w http.ResponseWriter, r *http.Request) {
	emps, err := s.opts.Employees.List(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	if emps == nil {
		emps = []*models.Employee{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"employees": emps})
}

func (s *Server) getEmployee(w http.ResponseWriter, r *http.Request) {
	emp, err := s.opts.Employees.Get(r.Context(), chi.URLParam(r, "employeeID"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, emp)
}

func (s *Server) putEmployee(w http.ResponseWriter, r *http.Request) {
	var emp models.Employee
	if err := json.NewDecoder(r.Body).Decode(&emp); err != nil {
		writeError(w, http.StatusBadRequest, apperrors.NewInvalidSubmissionError("invalid employee body"))
		return
	}
	id := chi.URLParam(r, "employeeID")
	if emp.ID != "" && emp.ID != id {
		writeError(w, http.StatusBadRequest, apperrors.NewInvalidSubmissionError("employeeId does not match path"))
		return
	}
	emp.ID = id

	if err := s.opts.Employees.Upsert(r.Context(), &emp); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	s.logger.Info("employee upserted", map[string]interface{}{"employeeId": id})
	writeJSON(w, http.StatusOK, &emp)
}

func statusFor(err error) int {
	switch apperrors.CodeOf(err) {
	case apperrors.ErrCodeEmployeeNotFound:
		return http.StatusNotFound
	case apperrors.ErrCodeInvalidSubmission, apperrors.ErrCodeInvalidExpenseType:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	resp := errorResponse{Error: err.Error()}
	if std, ok := apperrors.As(err); ok {
		resp.Error = std.Message
		if std.Details != "" {
			resp.Error += ": " + std.Details
		}
		resp.Code = string(std.Code)
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
