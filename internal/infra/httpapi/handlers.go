package httpapi

import (
	"errors"
	"fmt"
	"net/http"

	"home-control/internal/domain"
	"home-control/internal/infra/firmware"
)

type lightView struct {
	Room        string            `json:"room"`
	Light       string            `json:"light"`
	Description string            `json:"description,omitempty"`
	State       domain.LightState `json:"state"`
}

type toggleResponse struct {
	State          domain.LightState `json:"state,omitempty"`
	DeviceResponse string            `json:"device_response,omitempty"`
	Error          string            `json:"error,omitempty"`
	Action         string            `json:"action,omitempty"`
}

type transferResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	running := s.Running()

	status := "ok"
	code := http.StatusOK
	if !running {
		status = "not_ready"
		code = http.StatusServiceUnavailable
	}
	body := map[string]any{"status": status, "running": running}
	if s.deps.Sessions != nil {
		body["active_sessions"] = len(s.deps.Sessions.ActiveUsers())
	}
	writeJSON(w, code, body)
}

// handleStatus reports null until the monitor has observed the caller's home.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request, userID int64) {
	var online *bool
	if value, known := s.deps.Status.Get(userID); known {
		online = &value
	}
	writeJSON(w, http.StatusOK, map[string]*bool{"home_online_status": online})
}

func (s *Server) handleListLights(w http.ResponseWriter, r *http.Request, userID int64) {
	lights, err := s.deps.Lights.ListLights(r.Context(), userID)
	if err != nil {
		s.logger.Error("listing lights", "user_id", userID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "an internal error occurred"})
		return
	}

	views := make([]lightView, 0, len(lights))
	for _, l := range lights {
		views = append(views, lightView{Room: l.Room, Light: l.Name, Description: l.Description, State: l.State})
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request, userID int64) {
	room, light := r.PathValue("room"), r.PathValue("light")

	result, err := s.deps.Control.Toggle(r.Context(), userID, room, light)
	if err == nil {
		writeJSON(w, http.StatusOK, toggleResponse{State: result.State, DeviceResponse: result.DeviceResponse})
		return
	}

	resp := toggleResponse{State: result.State, DeviceResponse: result.DeviceResponse}
	var code int
	switch {
	case errors.Is(err, domain.ErrBusy):
		code, resp.Error = http.StatusConflict, domain.ErrBusy.Error()
	case errors.Is(err, domain.ErrNotFound):
		code, resp.Error = http.StatusNotFound, domain.ErrNotFound.Error()
	case errors.Is(err, domain.ErrDeviceNotConfigured),
		errors.Is(err, domain.ErrSettingsNotFound),
		errors.Is(err, domain.ErrUserNotFound):
		code, resp.Error, resp.Action = http.StatusBadRequest, domain.ErrDeviceNotConfigured.Error(), "go_to_settings"
	case domain.IsTransportError(err):
		code, resp.Error = http.StatusBadGateway, err.Error()
	default:
		s.logger.Error("toggling light", "user_id", userID, "room", room, "light", light, "error", err)
		code, resp.Error = http.StatusInternalServerError, "an internal error occurred"
	}
	writeJSON(w, code, resp)
}

func (s *Server) handleFirmwareUpload(w http.ResponseWriter, r *http.Request, userID int64) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUpload+1<<20)

	file, header, err := r.FormFile("firmware")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, transferResponse{Status: "error", Message: firmware.ErrTooLarge.Error()})
			return
		}
		writeJSON(w, http.StatusBadRequest, transferResponse{Status: "error", Message: domain.ErrNoArtifact.Error()})
		return
	}
	defer file.Close()

	artifact, err := s.deps.Firmware.Receive(r.Context(), header.Filename, file)
	switch {
	case err == nil:
		s.logger.Info("firmware uploaded", "user_id", userID, "id", artifact.ID)
		writeJSON(w, http.StatusOK, transferResponse{
			Status:  "uploaded_to_django",
			Message: fmt.Sprintf("firmware %s staged (%d bytes)", artifact.Name, artifact.Size),
		})
	case errors.Is(err, domain.ErrNoArtifact):
		writeJSON(w, http.StatusBadRequest, transferResponse{Status: "error", Message: domain.ErrNoArtifact.Error()})
	case errors.Is(err, firmware.ErrTooLarge):
		writeJSON(w, http.StatusRequestEntityTooLarge, transferResponse{Status: "error", Message: firmware.ErrTooLarge.Error()})
	default:
		s.logger.Error("staging firmware", "user_id", userID, "error", err)
		writeJSON(w, http.StatusInternalServerError, transferResponse{Status: "error", Message: "failed to stage firmware"})
	}
}

func (s *Server) handleFirmwarePush(w http.ResponseWriter, r *http.Request, userID int64) {
	msg, err := s.deps.Firmware.PushForUser(r.Context(), userID)
	switch {
	case err == nil:
		if msg == "" {
			msg = "firmware delivered"
		}
		writeJSON(w, http.StatusOK, transferResponse{Status: "success", Message: msg})
	case errors.Is(err, domain.ErrNoArtifact):
		writeJSON(w, http.StatusBadRequest, transferResponse{Status: "error", Message: domain.ErrNoArtifact.Error()})
	case domain.IsConfigError(err):
		writeJSON(w, http.StatusBadRequest, transferResponse{Status: "error", Message: domain.ErrDeviceNotConfigured.Error()})
	case domain.IsTransportError(err):
		writeJSON(w, http.StatusBadGateway, transferResponse{Status: "error", Message: err.Error()})
	default:
		s.logger.Error("pushing firmware", "user_id", userID, "error", err)
		writeJSON(w, http.StatusInternalServerError, transferResponse{Status: "error", Message: "an internal error occurred"})
	}
}
