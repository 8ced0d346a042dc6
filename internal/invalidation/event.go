// Package invalidation describes dataset change events that trigger a reload of the served map.
package invalidation

import (
	"fmt"
	"strings"
	"time"
)

const (
	// OpUpdated means the dataset content changed and must be reloaded.
	OpUpdated = "dataset_updated"
	// OpDeleted drops cached artifacts for the dataset without reloading.
	OpDeleted = "dataset_deleted"
)

type Event struct {
	Version int       `json:"version"`
	Op      string    `json:"op"`
	Dataset string    `json:"dataset"`
	TS      time.Time `json:"ts"`
	Source  string    `json:"source,omitempty"`
}

func (e Event) Validate() error {
	if e.Version != 1 {
		return fmt.Errorf("version must be 1")
	}
	switch e.Op {
	case OpUpdated, OpDeleted:
	default:
		return fmt.Errorf("op must be dataset_updated|dataset_deleted")
	}
	if strings.TrimSpace(e.Dataset) == "" {
		return fmt.Errorf("dataset is required")
	}
	if e.TS.IsZero() {
		return fmt.Errorf("ts is required")
	}
	return nil
}
