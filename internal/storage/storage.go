package storage

import (
	"context"
	"errors"
	"time"

	"github.com/patrickkettner/homebridge-smart-diffuser-lbslm/internal/amos"
)

var ErrAccessoryNotFound = errors.New("accessory not found")

// Accessory is a cached diffuser registration. The bridge persists every
// device it has seen so accessories can be restored at startup before the
// cloud answers.
type Accessory struct {
	ID        string
	NID       string
	Name      string
	Model     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Storage defines the persistence interface for the bridge
type Storage interface {
	SaveAccessory(ctx context.Context, accessory *Accessory) error
	GetAccessory(ctx context.Context, nid string) (*Accessory, error)
	ListAccessories(ctx context.Context) ([]*Accessory, error)
	DeleteAccessory(ctx context.Context, nid string) error

	SaveDeviceState(ctx context.Context, nid string, state amos.State) error
	GetDeviceState(ctx context.Context, nid string) (*amos.State, error)

	Close() error
}
