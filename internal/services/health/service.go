package health

import "time"

// Service encapsulates health-related checks.
type Service struct {
	startedAt time.Time
}

// NewService constructs a new health service.
func NewService() *Service {
	return &Service{startedAt: time.Now().UTC()}
}

// Status returns the liveness payload.
func (s *Service) Status() map[string]any {
	return map[string]any{
		"ok":       true,
		"uptime_s": int(time.Since(s.startedAt).Seconds()),
	}
}
