package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/okaypadak/everup-backend/internal/usecase"
)

// VoiceHandler is the read-only REST surface over live rooms.
type VoiceHandler struct {
	roomUsecase usecase.RoomUsecase
}

func NewVoiceHandler(roomUsecase usecase.RoomUsecase) *VoiceHandler {
	return &VoiceHandler{roomUsecase: roomUsecase}
}

// RoomState reports a snapshot of one room. An absent room is an empty
// snapshot, not an error: state lookups never create rooms.
func (h *VoiceHandler) RoomState(c echo.Context) error {
	state, err := h.roomUsecase.RoomState(c.Request().Context(), c.Param("roomId"))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "could not read room state"})
	}

	return c.JSON(http.StatusOK, state)
}

func (h *VoiceHandler) RouterCapabilities(c echo.Context) error {
	caps, err := h.roomUsecase.RouterCapabilities(c.Request().Context(), c.Param("roomId"))
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "room not found"})
	}

	return c.JSONBlob(http.StatusOK, caps)
}
