package config

import (
	"context"
	"errors"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// ParseError reports an environment value that could not be read as its key's type.
type ParseError struct {
	Key string
	Err error
}

func (e *ParseError) Error() string { return "parse " + e.Key + ": " + e.Err.Error() }

func (e *ParseError) Unwrap() error { return e.Err }

// ValidationError wraps every structural problem found by Validate.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string { return "validate config: " + e.Err.Error() }

func (e *ValidationError) Unwrap() error { return e.Err }

var loadEvents struct {
	once    sync.Once
	counter metric.Int64Counter
}

// recordLoad counts one Load call under config.validation.events.
func recordLoad(ctx context.Context, profile string, err error) {
	loadEvents.once.Do(func() {
		counter, cerr := otel.Meter("portal-credential-exchange/config").Int64Counter("config.validation.events")
		if cerr == nil {
			loadEvents.counter = counter
		}
	})
	if loadEvents.counter == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	loadEvents.counter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("profile", profileLabel(profile)),
		attribute.String("outcome", outcome),
		attribute.String("error_class", classifyLoadError(err)),
		attribute.Int("problems", problemCount(err)),
	))
}

// profileLabel keeps the profile attribute to a bounded set.
func profileLabel(profile string) string {
	switch v := strings.ToLower(strings.TrimSpace(profile)); v {
	case "":
		return "unknown"
	case "development", "test", "staging", "production":
		return v
	case "dev":
		return "development"
	case "prod":
		return "production"
	default:
		return "other"
	}
}

func classifyLoadError(err error) string {
	if err == nil {
		return "none"
	}
	var parseErr *ParseError
	if errors.As(err, &parseErr) {
		return "parse"
	}
	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return "validation"
	}
	return "load"
}

// problemCount counts the leaf errors behind a joined load failure.
func problemCount(err error) int {
	switch e := err.(type) {
	case nil:
		return 0
	case interface{ Unwrap() []error }:
		n := 0
		for _, inner := range e.Unwrap() {
			n += problemCount(inner)
		}
		return n
	case *ValidationError:
		return problemCount(e.Err)
	default:
		return 1
	}
}
