package domain

import "time"

// Revision is one saved version of the desired configuration.
// Seq starts at 1 and increases by one per save.
type Revision struct {
	Seq        uint64      `json:"seq" yaml:"seq"`
	SavedAt    time.Time   `json:"saved_at" yaml:"saved_at"`
	Deployment *Deployment `json:"deployment" yaml:"deployment"`
}
