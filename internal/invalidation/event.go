// Package invalidation describes the region boundary update events that
// evict cached coverages.
package invalidation

import (
	"fmt"
	"strings"
	"time"

	"github.com/mohammed-shakir/squadrats-grid/internal/region"
)

const (
	OpUpdate = "update"
	OpDelete = "delete"
)

// Event announces that the boundary files of Region changed (update) or
// were removed (delete). Seq orders events of one region; zero disables
// ordering checks for that event.
type Event struct {
	Version int       `json:"version"`
	Op      string    `json:"op"`
	Region  string    `json:"region"`
	Seq     uint64    `json:"seq,omitempty"`
	TS      time.Time `json:"ts"`
	Source  string    `json:"source,omitempty"`
}

func (e Event) Validate() error {
	if e.Version != 1 {
		return fmt.Errorf("version must be 1")
	}
	switch e.Op {
	case OpUpdate, OpDelete:
	default:
		return fmt.Errorf("op must be update|delete")
	}
	code := strings.TrimSpace(e.Region)
	if code == "" {
		return fmt.Errorf("region is required")
	}
	if !region.ValidCode(code) {
		return fmt.Errorf("region %q is not a CC or CC-SUB code", code)
	}
	if e.TS.IsZero() {
		return fmt.Errorf("ts is required")
	}
	return nil
}
