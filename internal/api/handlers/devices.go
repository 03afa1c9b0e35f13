package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/patrickkettner/homebridge-smart-diffuser-lbslm/internal/amos"
	"github.com/patrickkettner/homebridge-smart-diffuser-lbslm/internal/devices"
)

// DevicesHandler handles diffuser characteristic requests
type DevicesHandler struct {
	registry *devices.Registry
	logger   *slog.Logger
}

// NewDevicesHandler creates a new devices handler
func NewDevicesHandler(registry *devices.Registry, logger *slog.Logger) *DevicesHandler {
	return &DevicesHandler{
		registry: registry,
		logger:   logger,
	}
}

// deviceResponse is the JSON view of one diffuser's cached state
func deviceResponse(device *amos.Device) gin.H {
	state := device.Snapshot()
	return gin.H{
		"nid":              device.NID(),
		"name":             device.Name(),
		"model":            device.Model(),
		"on":               state.IsOn,
		"rotation_speed":   device.RotationSpeed(),
		"consumable_level": state.LiquidLevel,
		"consumable_low":   device.ConsumableLow(),
		"locked":           state.Locked,
	}
}

// ListDevices returns all registered diffusers with their cached state
// GET /v1/devices
func (h *DevicesHandler) ListDevices(c *gin.Context) {
	deviceList := h.registry.List()

	response := make([]gin.H, 0, len(deviceList))
	for _, device := range deviceList {
		response = append(response, deviceResponse(device))
	}

	c.JSON(http.StatusOK, response)
}

// GetDevice returns one diffuser's cached state
// GET /v1/devices/:nid
func (h *DevicesHandler) GetDevice(c *gin.Context) {
	device, ok := h.lookup(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, deviceResponse(device))
}

// SetPower turns a diffuser on or off
// PUT /v1/devices/:nid/power
func (h *DevicesHandler) SetPower(c *gin.Context) {
	device, ok := h.lookup(c)
	if !ok {
		return
	}

	var req struct {
		On *bool `json:"on" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "on field is required")
		return
	}

	if err := device.SetOn(c.Request.Context(), *req.On); err != nil {
		h.serviceUnavailable(c, device.NID(), "set power", err)
		return
	}

	c.JSON(http.StatusOK, deviceResponse(device))
}

// SetRotationSpeed sets a diffuser's intensity (0-100)
// PUT /v1/devices/:nid/rotation-speed
func (h *DevicesHandler) SetRotationSpeed(c *gin.Context) {
	device, ok := h.lookup(c)
	if !ok {
		return
	}

	var req struct {
		Percent *int `json:"percent" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "percent field is required")
		return
	}
	if *req.Percent < 0 || *req.Percent > 100 {
		badRequest(c, "percent must be between 0 and 100")
		return
	}

	if err := device.SetRotationSpeed(c.Request.Context(), *req.Percent); err != nil {
		h.serviceUnavailable(c, device.NID(), "set rotation speed", err)
		return
	}

	c.JSON(http.StatusOK, deviceResponse(device))
}

// SetLock locks or unlocks a diffuser's physical controls
// PUT /v1/devices/:nid/lock
func (h *DevicesHandler) SetLock(c *gin.Context) {
	device, ok := h.lookup(c)
	if !ok {
		return
	}

	var req struct {
		Locked *bool `json:"locked" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "locked field is required")
		return
	}

	if err := device.SetLock(c.Request.Context(), *req.Locked); err != nil {
		h.serviceUnavailable(c, device.NID(), "set lock", err)
		return
	}

	c.JSON(http.StatusOK, deviceResponse(device))
}

// ResetConsumable marks a diffuser's reservoir as refilled
// POST /v1/devices/:nid/consumable/reset
func (h *DevicesHandler) ResetConsumable(c *gin.Context) {
	device, ok := h.lookup(c)
	if !ok {
		return
	}

	if err := device.ResetConsumable(c.Request.Context()); err != nil {
		h.serviceUnavailable(c, device.NID(), "reset consumable", err)
		return
	}

	c.JSON(http.StatusOK, deviceResponse(device))
}

// lookup resolves the :nid route parameter to a registered device
func (h *DevicesHandler) lookup(c *gin.Context) (*amos.Device, bool) {
	nid := c.Param("nid")
	device, err := h.registry.Get(nid)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Device not found",
			"code":  "DEVICE_NOT_FOUND",
		})
		return nil, false
	}
	return device, true
}

// serviceUnavailable maps a cloud failure to the caller-facing signal while
// keeping the underlying message for diagnostics
func (h *DevicesHandler) serviceUnavailable(c *gin.Context, nid, operation string, err error) {
	h.logger.Error("Device operation failed",
		"component", "api",
		"nid", nid,
		"operation", operation,
		"error", err)

	c.JSON(http.StatusBadGateway, gin.H{
		"error":  "Service unavailable",
		"code":   "SERVICE_UNAVAILABLE",
		"detail": err.Error(),
	})
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error": message,
		"code":  "INVALID_REQUEST",
	})
}
