package services

import (
	"context"
)

// HealthChecker defines basic health check capabilities
type HealthChecker interface {
	// Ping tests the service connection
	Ping(ctx context.Context) error
}

// Closer defines cleanup capabilities
type Closer interface {
	// Close closes the service connection
	Close() error
}

// Service is a dependency the health endpoint reports on.
type Service interface {
	HealthChecker
	Closer
}
