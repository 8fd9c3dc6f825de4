//
//  Copyright © Manetu Inc. All rights reserved.
//

package accesslog

import (
	"time"

	"github.com/google/uuid"
)

// Decision is the outcome stored in a [Record].
type Decision string

// Decisions
const (
	Grant Decision = "GRANT"
	Deny  Decision = "DENY"
	// Error marks a check that failed before reaching a decision, such as a
	// missing object or an unknown action.
	Error Decision = "ERROR"
)

// Record describes one authorization decision.
type Record struct {
	ID        string        `json:"id"`
	Timestamp time.Time     `json:"timestamp"`
	Profile   string        `json:"profile"`
	Action    string        `json:"action"`
	User      string        `json:"user,omitempty"`
	Object    string        `json:"object,omitempty"`
	Decision  Decision      `json:"decision"`
	Reason    string        `json:"reason,omitempty"`
	Sysadmin  bool          `json:"sysadmin,omitempty"`
	Duration  time.Duration `json:"duration_ns"`
}

// NewRecord starts a record for action with a fresh id and the current time.
func NewRecord(profile, action, user string) *Record {
	return &Record{
		ID:        uuid.New().String(),
		Timestamp: time.Now().UTC(),
		Profile:   profile,
		Action:    action,
		User:      user,
	}
}
