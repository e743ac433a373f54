package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/apptnegotiate/services/negotiation-service/internal/model"
	"github.com/md-rashed-zaman/apptnegotiate/services/negotiation-service/internal/negotiation"
	"github.com/md-rashed-zaman/apptnegotiate/services/negotiation-service/internal/rules"
)

type NegotiationHandler struct {
	svc    *negotiation.Service
	logger *slog.Logger
}

func NewNegotiationHandler(svc *negotiation.Service, logger *slog.Logger) *NegotiationHandler {
	return &NegotiationHandler{svc: svc, logger: logger}
}

type transitionRequest struct {
	ConversationID   string `json:"conversation_id"`
	AppointmentID    string `json:"appointment_id"`
	TargetStatus     string `json:"target_status"`
	PreferredDate    string `json:"preferred_date"`
	PreferredTime    string `json:"preferred_time"`
	RejectSuggestion bool   `json:"reject_suggestion"`
	AcceptSuggestion bool   `json:"accept_suggestion"`
}

type suggestedTimeView struct {
	Date string `json:"date"`
	Time string `json:"time"`
}

type appointmentView struct {
	AppointmentID  string             `json:"appointment_id"`
	ConversationID string             `json:"conversation_id"`
	Status         string             `json:"status"`
	Service        string             `json:"service"`
	CustomerName   string             `json:"customer_name"`
	CustomerPhone  string             `json:"customer_phone"`
	PreferredDate  string             `json:"preferred_date"`
	PreferredTime  string             `json:"preferred_time"`
	SuggestedTime  *suggestedTimeView `json:"suggested_time,omitempty"`
	WasRescheduled bool               `json:"was_rescheduled"`
	CreatedAt      string             `json:"created_at"`
	UpdatedAt      string             `json:"updated_at"`
}

func (h *NegotiationHandler) Transition(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req transitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.ConversationID = strings.TrimSpace(req.ConversationID)
	req.AppointmentID = strings.TrimSpace(req.AppointmentID)
	req.TargetStatus = strings.TrimSpace(req.TargetStatus)
	if req.ConversationID == "" || req.AppointmentID == "" || req.TargetStatus == "" {
		http.Error(w, "conversation_id, appointment_id and target_status required", http.StatusBadRequest)
		return
	}

	appt, err := h.svc.Transition(r.Context(), bearerToken(r), negotiation.Request{
		ConversationID:   req.ConversationID,
		AppointmentID:    req.AppointmentID,
		Target:           req.TargetStatus,
		PreferredDate:    strings.TrimSpace(req.PreferredDate),
		PreferredTime:    strings.TrimSpace(req.PreferredTime),
		RejectSuggestion: req.RejectSuggestion,
		AcceptSuggestion: req.AcceptSuggestion,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeAppointment(w, appt)
}

func (h *NegotiationHandler) State(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	conversationID := strings.TrimSpace(r.URL.Query().Get("conversation_id"))
	appointmentID := strings.TrimSpace(r.URL.Query().Get("appointment_id"))
	if conversationID == "" || appointmentID == "" {
		http.Error(w, "conversation_id and appointment_id required", http.StatusBadRequest)
		return
	}

	appt, err := h.svc.Get(r.Context(), bearerToken(r), conversationID, appointmentID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeAppointment(w, appt)
}

func (h *NegotiationHandler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, negotiation.ErrUnauthenticated):
		http.Error(w, "authentication required", http.StatusUnauthorized)
	case errors.Is(err, rules.ErrValidation):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, negotiation.ErrNotFound):
		http.Error(w, "appointment not found", http.StatusNotFound)
	case errors.Is(err, negotiation.ErrConflict):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, negotiation.ErrWriteFailed):
		h.logger.Error("transition write failed", "err", err)
		http.Error(w, "failed to apply transition", http.StatusInternalServerError)
	default:
		h.logger.Error("unexpected negotiation error", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func (h *NegotiationHandler) writeAppointment(w http.ResponseWriter, appt model.Appointment) {
	view := appointmentView{
		AppointmentID:  appt.ID,
		ConversationID: appt.ConversationID,
		Status:         string(appt.Status),
		Service:        appt.Service,
		CustomerName:   appt.CustomerName,
		CustomerPhone:  appt.CustomerPhone,
		PreferredDate:  appt.PreferredDate,
		PreferredTime:  appt.PreferredTime,
		WasRescheduled: appt.WasRescheduled,
		CreatedAt:      appt.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:      appt.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if appt.Suggested != nil {
		view.SuggestedTime = &suggestedTimeView{Date: appt.Suggested.Date, Time: appt.Suggested.Time}
	}

	body, err := json.Marshal(view)
	if err != nil {
		http.Error(w, "failed to build response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func bearerToken(r *http.Request) string {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	if raw == "" {
		return ""
	}
	if len(raw) > 7 && strings.EqualFold(raw[:7], "Bearer ") {
		return strings.TrimSpace(raw[7:])
	}
	return ""
}
