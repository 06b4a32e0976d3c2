package pipeline

import "errors"

// Error classes for the two fatal pre-step failure modes. Step failures are
// not errors; they are recorded in the Result and reflected in its verdict.
var (
	// ErrConfiguration marks a bad or incomplete pipeline definition,
	// including unresolvable required secrets. Nothing has been started.
	ErrConfiguration = errors.New("configuration error")

	// ErrDependency marks a service that failed to start or never became
	// ready. Any partially started services have been torn down.
	ErrDependency = errors.New("dependency unavailable")
)
