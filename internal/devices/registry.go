package devices

import (
	"errors"
	"fmt"
	"sync"

	"github.com/patrickkettner/homebridge-smart-diffuser-lbslm/internal/amos"
)

var (
	ErrDeviceNotFound      = errors.New("device not found")
	ErrDeviceAlreadyExists = errors.New("device already registered")
)

// Registry manages the live diffuser devices keyed by cloud nid.
type Registry struct {
	devices map[string]*amos.Device
	mu      sync.RWMutex
}

// NewRegistry creates a new device registry
func NewRegistry() *Registry {
	return &Registry{
		devices: make(map[string]*amos.Device),
	}
}

// Register adds a device to the registry
func (r *Registry) Register(device *amos.Device) error {
	if device.NID() == "" {
		return fmt.Errorf("device nid cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.devices[device.NID()]; exists {
		return fmt.Errorf("%w: %s", ErrDeviceAlreadyExists, device.NID())
	}

	r.devices[device.NID()] = device
	return nil
}

// Get retrieves a device by nid
func (r *Registry) Get(nid string) (*amos.Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	device, exists := r.devices[nid]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, nid)
	}

	return device, nil
}

// List returns all registered devices
func (r *Registry) List() []*amos.Device {
	r.mu.RLock()
	defer r.mu.RUnlock()

	devices := make([]*amos.Device, 0, len(r.devices))
	for _, device := range r.devices {
		devices = append(devices, device)
	}

	return devices
}

// StopAll stops every device's polling loop
func (r *Registry) StopAll() {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, device := range r.devices {
		device.Stop()
	}
}
