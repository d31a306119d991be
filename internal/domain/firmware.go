package domain

import "time"

// FirmwareArtifact describes the binary currently held in the staging slot.
type FirmwareArtifact struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Size     int64     `json:"size"`
	SHA256   string    `json:"sha256"`
	StagedAt time.Time `json:"staged_at"`
}
