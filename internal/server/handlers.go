package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/nhle/pmnotify/internal/api"
	"github.com/nhle/pmnotify/internal/broker"
	"github.com/nhle/pmnotify/internal/model"
	"github.com/nhle/pmnotify/internal/store"
)

func (s *Server) listNotifications(w http.ResponseWriter, r *http.Request) {
	notifications, err := s.store.ListNotifications(r.Context(), UserFromContext(r.Context()))
	if err != nil {
		s.internalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, notifications)
}

func (s *Server) markRead(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	err := s.store.MarkNotificationRead(r.Context(), UserFromContext(r.Context()), id)
	if err != nil {
		s.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "notification marked as read"})
}

func (s *Server) markAllRead(w http.ResponseWriter, r *http.Request) {
	changed, err := s.store.MarkAllNotificationsRead(r.Context(), UserFromContext(r.Context()))
	if err != nil {
		s.internalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":  "all notifications marked as read",
		"modified": changed,
	})
}

func (s *Server) deleteNotification(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	err := s.store.DeleteNotification(r.Context(), UserFromContext(r.Context()), id)
	if err != nil {
		s.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "notification deleted"})
}

// createNotification stores a notification for the user named in the
// body, which need not be the caller.
func (s *Server) createNotification(w http.ResponseWriter, r *http.Request) {
	var req model.NewNotification
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.User = strings.TrimSpace(req.User)
	req.Message = strings.TrimSpace(req.Message)
	if req.User == "" || req.Message == "" {
		writeError(w, http.StatusBadRequest, "user and message are required")
		return
	}
	typ := model.ParseNotificationType(req.Type)
	if typ == model.TypeUnknown {
		writeError(w, http.StatusBadRequest, "unknown notification type "+req.Type)
		return
	}
	kind := model.ParseEntityKind(req.OnModel)
	if req.RelatedTo != "" && kind == model.EntityNone {
		writeError(w, http.StatusBadRequest, "onModel is required with relatedTo")
		return
	}

	n, err := s.store.CreateNotification(r.Context(), req.User, model.Notification{
		Type:      typ,
		Message:   req.Message,
		RelatedTo: req.RelatedTo,
		OnModel:   kind,
	})
	if err != nil {
		s.internalError(w, err)
		return
	}

	if s.hints != nil {
		err := s.hints.Publish(r.Context(), broker.Hint{
			User:           req.User,
			Reason:         "created",
			NotificationID: n.ID,
		})
		if err != nil {
			s.logger.Warn().Err(err).Str("user", req.User).Msg("publishing refresh hint")
		}
	}

	s.logger.Info().Str("id", n.ID).Str("user", req.User).Str("type", n.Type.String()).Msg("notification created")
	writeJSON(w, http.StatusCreated, n)
}

func (s *Server) getTask(w http.ResponseWriter, r *http.Request) {
	t, err := s.store.GetTask(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) getComment(w http.ResponseWriter, r *http.Request) {
	c, err := s.store.GetComment(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) getDocument(w http.ResponseWriter, r *http.Request) {
	d, err := s.store.GetDocument(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) createProject(w http.ResponseWriter, r *http.Request) {
	var p model.Project
	if !decode(w, r, &p) {
		return
	}
	if p.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	p, err := s.store.CreateProject(r.Context(), p)
	if err != nil {
		s.internalError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) createTask(w http.ResponseWriter, r *http.Request) {
	var t model.Task
	if !decode(w, r, &t) {
		return
	}
	if t.Title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}
	t, err := s.store.CreateTask(r.Context(), t)
	if err != nil {
		s.internalError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (s *Server) createComment(w http.ResponseWriter, r *http.Request) {
	var c model.Comment
	if !decode(w, r, &c) {
		return
	}
	if c.Project == "" && c.Task == "" {
		writeError(w, http.StatusBadRequest, "project or task is required")
		return
	}
	c, err := s.store.CreateComment(r.Context(), c)
	if err != nil {
		s.internalError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) createDocument(w http.ResponseWriter, r *http.Request) {
	var d model.Document
	if !decode(w, r, &d) {
		return
	}
	if d.Name == "" || d.Project == "" {
		writeError(w, http.StatusBadRequest, "name and project are required")
		return
	}
	d, err := s.store.CreateDocument(r.Context(), d)
	if err != nil {
		s.internalError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func (s *Server) storeError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	s.internalError(w, err)
}

func (s *Server) internalError(w http.ResponseWriter, err error) {
	s.logger.Error().Err(err).Msg("request failed")
	writeError(w, http.StatusInternalServerError, "internal server error")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, api.ErrorResponse{Message: msg})
}
