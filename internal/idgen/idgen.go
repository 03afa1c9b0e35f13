package idgen

import (
	"github.com/google/uuid"
)

// ID prefixes for different models
const (
	PrefixAccessory = "acc_"
)

// NewAccessory generates a new accessory ID with acc_ prefix
func NewAccessory() string {
	return PrefixAccessory + uuid.New().String()
}

// New generates a generic UUID without prefix (for internal use only)
func New() string {
	return uuid.New().String()
}
