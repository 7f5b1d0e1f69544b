// Package startup brings external dependencies up in registration order and
// tears them down in reverse, retrying the whole sequence with fibonacci
// backoff until it succeeds or the attempts are exhausted.
package startup

import (
	"context"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
)

// Dependency is one boot step. Start must be safe to call again after a
// failed attempt.
type Dependency interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

type Startup struct {
	dependencies []Dependency
	started      map[string]bool
	logger       ectologger.Logger
	maxAttempts  int
}

func NewStartup(logger ectologger.Logger, maxAttempts int) *Startup {
	return &Startup{
		logger:      logger,
		started:     map[string]bool{},
		maxAttempts: maxAttempts,
	}
}

// AddDependency registers a boot step. Order of registration is the order of
// startup.
func (s *Startup) AddDependency(dependency Dependency) {
	s.dependencies = append(s.dependencies, dependency)
}

func (s *Startup) Start(ctx context.Context) error {
	var lastErr error

	a, b := 1, 1
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		lastErr = s.startAll(ctx, attempt)
		if lastErr == nil {
			return nil
		}

		if attempt == s.maxAttempts {
			break
		}

		wait := time.Duration(a) * time.Second
		s.logger.Infof("Retrying startup in %v (attempt %d/%d)", wait, attempt, s.maxAttempts)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		a, b = b, a+b
	}

	return fmt.Errorf("startup failed after %d attempts: %w", s.maxAttempts, lastErr)
}

func (s *Startup) startAll(ctx context.Context, attempt int) error {
	for _, dependency := range s.dependencies {
		if s.started[dependency.Name()] {
			continue
		}

		s.logger.WithField("dependency", dependency.Name()).Infof("Starting dependency '%s'", dependency.Name())
		if err := dependency.Start(ctx); err != nil {
			s.logger.WithError(err).Errorf("Startup dependency '%s' attempt %d failed", dependency.Name(), attempt)
			return err
		}
		s.started[dependency.Name()] = true
	}
	return nil
}

// Stop tears the started dependencies down in reverse registration order. It
// keeps going past individual failures and returns the first error seen.
func (s *Startup) Stop(ctx context.Context) error {
	var firstErr error
	for i := len(s.dependencies) - 1; i >= 0; i-- {
		dependency := s.dependencies[i]
		if !s.started[dependency.Name()] {
			continue
		}

		s.logger.WithField("dependency", dependency.Name()).Infof("Stopping dependency '%s'", dependency.Name())
		if err := dependency.Stop(ctx); err != nil {
			s.logger.WithError(err).Errorf("Failed to stop dependency '%s'", dependency.Name())
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		s.started[dependency.Name()] = false
	}
	return firstErr
}
