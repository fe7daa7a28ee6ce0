package handler

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/hlog"

	"github.com/vasapolrittideah/school-attendance-api/services/attendance-service/internal/export"
	"github.com/vasapolrittideah/school-attendance-api/services/attendance-service/internal/usecase"
)

func (s *Server) handleCreateRecord(w http.ResponseWriter, r *http.Request) {
	var req CreateRecordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeAppError(w, r, err)
		return
	}
	if err := s.validator.Struct(req); err != nil {
		writeAppError(w, r, err)
		return
	}

	record, err := s.attendance.CreateRecord(r.Context(), callerFromContext(r.Context()), usecase.CreateRecordParams{
		StudentID: req.StudentID,
		Subject:   req.Subject,
		Status:    req.Status,
		Date:      req.Date,
		TimeIn:    req.TimeIn,
	})
	if err != nil {
		writeAppError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, RecordCreatedResponse{
		Message:  "Attendance record created successfully",
		RecordID: record.ID.Hex(),
	})
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	var req ScanRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeAppError(w, r, err)
		return
	}
	if err := s.validator.Struct(req); err != nil {
		writeAppError(w, r, err)
		return
	}

	record, err := s.attendance.ScanQRCode(r.Context(), usecase.ScanParams{
		StudentID: req.StudentID,
		QRCode:    req.QRCode,
	})
	if err != nil {
		writeAppError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, RecordCreatedResponse{
		Message:  "Attendance marked successfully",
		RecordID: record.ID.Hex(),
	})
}

func (s *Server) handleUpdateRecord(w http.ResponseWriter, r *http.Request) {
	var req UpdateRecordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeAppError(w, r, err)
		return
	}
	if err := s.validator.Struct(req); err != nil {
		writeAppError(w, r, err)
		return
	}

	record, err := s.attendance.UpdateStatus(r.Context(), callerFromContext(r.Context()), chi.URLParam(r, "id"), usecase.UpdateStatusParams{
		Status: req.Status,
		TimeIn: req.TimeIn,
	})
	if err != nil {
		writeAppError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, newRecordResponse(record))
}

func (s *Server) handleListByDate(w http.ResponseWriter, r *http.Request) {
	records, err := s.attendance.ListByDate(r.Context(), chi.URLParam(r, "date"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, newRecordResponses(records))
}

func (s *Server) handleListByStudent(w http.ResponseWriter, r *http.Request) {
	records, err := s.attendance.ListByStudent(r.Context(), callerFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, newRecordResponses(records))
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	date := chi.URLParam(r, "date")

	workbook, err := s.attendance.ExportByDate(r.Context(), callerFromContext(r.Context()), date)
	if err != nil {
		writeAppError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", workbook.FileName(date)))
	w.WriteHeader(http.StatusOK)
	if _, err := workbook.WriteTo(w); err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("failed to write attendance workbook")
	}
}
