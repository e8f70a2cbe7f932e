package model

import "time"

// Availability is the outcome of probing the remote platform.
type Availability struct {
	Available bool
	Reason    string
}

// ConnectionStatus is the persisted result of the last availability probe.
type ConnectionStatus struct {
	Available bool      `json:"available" db:"available"`
	LastCheck time.Time `json:"last_check" db:"-"`
	Error     string    `json:"error,omitempty" db:"error"`
}
