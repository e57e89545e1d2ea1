package utils

import "github.com/google/uuid"

// GenerateID returns a fresh random identifier for feed events.
func GenerateID() string {
	return uuid.New().String()
}
