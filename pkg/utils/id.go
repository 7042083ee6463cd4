package utils

import (
	"fmt"

	"github.com/google/uuid"
)

// GenerateRunID generates a unique run ID
func GenerateRunID() string {
	return fmt.Sprintf("run-%s", uuid.NewString())
}

// GenerateClientID generates a unique ID for a streaming subscriber
func GenerateClientID() string {
	return uuid.NewString()
}
