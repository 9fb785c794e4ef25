package health

import "context"

// DBPinger checks counter/comment store availability.
type DBPinger interface {
	Ping(ctx context.Context) error
}

// ProviderChecker checks LLM provider availability.
type ProviderChecker interface {
	HealthCheck(ctx context.Context) error
}
