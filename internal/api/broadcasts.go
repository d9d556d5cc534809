// SPDX-License-Identifier: MIT

package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/ManuGH/tvgrid/internal/broadcast"
	"github.com/ManuGH/tvgrid/internal/store"
)

// GET /broadcasts lists the messages visible at the caller's level.
func (s *Server) handleListBroadcasts(w http.ResponseWriter, r *http.Request) {
	if s.deps.Broadcasts == nil {
		writeJSON(w, http.StatusOK, map[string]any{"broadcasts": []store.Broadcast{}})
		return
	}
	list, err := s.deps.Broadcasts.Active(r.Context(), levelOf(r.Context()))
	if err != nil {
		writeInternal(w, r, err)
		return
	}
	if list == nil {
		list = []store.Broadcast{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"broadcasts": list})
}

type createBroadcastRequest struct {
	Content         string            `json:"content"`
	TargetLevel     int               `json:"target_level"`
	MessageType     store.MessageType `json:"message_type"`
	ScheduleTime    *time.Time        `json:"schedule_time,omitempty"`
	IntervalMinutes *int              `json:"interval_minutes,omitempty"`
	ExpiresAt       *time.Time        `json:"expires_at,omitempty"`
}

func (s *Server) handleCreateBroadcast(w http.ResponseWriter, r *http.Request) {
	if s.deps.Broadcasts == nil {
		writeError(w, http.StatusServiceUnavailable, CodeUnavailable, "broadcasts disabled")
		return
	}
	var req createBroadcastRequest
	if err := decodeJSON(w, r, 0, &req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}
	created, err := s.deps.Broadcasts.Create(r.Context(), store.Broadcast{
		Content:         req.Content,
		TargetLevel:     req.TargetLevel,
		MessageType:     req.MessageType,
		ScheduleTime:    req.ScheduleTime,
		IntervalMinutes: req.IntervalMinutes,
		ExpiresAt:       req.ExpiresAt,
	})
	switch {
	case errors.Is(err, broadcast.ErrInvalid):
		writeError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
	case err != nil:
		writeInternal(w, r, err)
	default:
		writeJSON(w, http.StatusCreated, created)
	}
}
