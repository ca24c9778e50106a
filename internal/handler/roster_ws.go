package handler

import (
	"log/slog"
	"net/http"
	"reflect"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ridewatch/onboarding/internal/service"
)

// RosterHandler streams a school's driver roster over WebSocket. The
// dashboard subscribes and receives a fresh snapshot whenever the roster
// changes, so new drivers appear as soon as they accept their invitation.
type RosterHandler struct {
	provisioning   *service.ProvisioningService
	logger         *slog.Logger
	allowedOrigins []string
	pollInterval   time.Duration
}

// NewRosterHandler creates a new roster handler
func NewRosterHandler(provisioning *service.ProvisioningService, logger *slog.Logger, allowedOrigins []string) *RosterHandler {
	if logger == nil {
		logger = slog.Default()
	}

	return &RosterHandler{
		provisioning:   provisioning,
		logger:         logger,
		allowedOrigins: allowedOrigins,
		pollInterval:   3 * time.Second,
	}
}

// SetPollInterval overrides the refresh cadence, used by tests
func (h *RosterHandler) SetPollInterval(d time.Duration) {
	h.pollInterval = d
}

func (h *RosterHandler) getUpgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			for _, allowed := range h.allowedOrigins {
				if origin == allowed {
					return true
				}
			}
			h.logger.Warn("websocket origin rejected", slog.String("origin", origin))
			return false
		},
	}
}

type rosterSnapshot struct {
	SchoolID string         `json:"school_id"`
	Drivers  []userResponse `json:"drivers"`
}

// Stream handles GET /ws/schools/{id}/drivers. The caller authenticates
// with ?token= since browsers cannot set headers on WebSocket dials; the
// route wrapper resolves it to a user ID before calling here.
func (h *RosterHandler) Stream(w http.ResponseWriter, r *http.Request, userID string) {
	schoolID := r.PathValue("id")
	if schoolID == "" {
		http.Error(w, "missing school id", http.StatusBadRequest)
		return
	}

	// Verify access before upgrading so a rejected caller gets a clean
	// HTTP status instead of an aborted socket.
	if _, err := h.provisioning.ListDrivers(r.Context(), userID, schoolID); err != nil {
		writeError(w, h.logger, err)
		return
	}

	upgrader := h.getUpgrader()
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer ws.Close()

	// Drain client messages so pongs and close frames are processed.
	go func() {
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(h.pollInterval)
	defer ticker.Stop()
	pinger := time.NewTicker(15 * time.Second)
	defer pinger.Stop()

	var last []userResponse
	send := func() error {
		drivers, err := h.provisioning.ListDrivers(r.Context(), userID, schoolID)
		if err != nil {
			h.logger.Error("roster poll failed",
				slog.String("school_id", schoolID),
				slog.String("error", err.Error()),
			)
			return err
		}

		out := make([]userResponse, 0, len(drivers))
		for _, d := range drivers {
			out = append(out, toUserResponse(d))
		}
		if reflect.DeepEqual(out, last) {
			return nil
		}
		last = out
		return ws.WriteJSON(rosterSnapshot{SchoolID: schoolID, Drivers: out})
	}

	if err := send(); err != nil {
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case <-pinger.C:
			if err := ws.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(5*time.Second)); err != nil {
				return
			}
		case <-ticker.C:
			if err := send(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					h.logger.Debug("roster socket closed", slog.String("school_id", schoolID))
				}
				return
			}
		}
	}
}
