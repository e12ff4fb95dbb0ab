package monitor

import "time"

// Dependency is the state of one optional backing service.
type Dependency struct {
	Configured bool   `json:"configured"`
	Online     bool   `json:"online"`
	Error      string `json:"error,omitempty"`
}

// Up reports whether the dependency does not hold the service back. An
// unconfigured dependency is never a reason to degrade.
func (d Dependency) Up() bool {
	return !d.Configured || d.Online
}

type Status struct {
	PostgreSQL Dependency `json:"postgresql"`
	Redis      Dependency `json:"redis"`
	Buffer     bool       `json:"buffer"`
	BufferSize int        `json:"buffer_size"`
	LastCheck  time.Time  `json:"last_check"`
}

// Healthy reports whether every configured dependency answered its last check.
func (s Status) Healthy() bool {
	return s.PostgreSQL.Up() && s.Redis.Up()
}
