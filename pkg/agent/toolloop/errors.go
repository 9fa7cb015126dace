package toolloop

import "errors"

var (
	// ErrMaxIterations is returned when the model keeps calling tools past Config.MaxIterations.
	ErrMaxIterations = errors.New("maximum tool iterations exceeded")

	// ErrNoProvider is returned when Run is called without a client.
	ErrNoProvider = errors.New("toolloop requires an LLM client")
)
