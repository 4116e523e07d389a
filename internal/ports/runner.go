package ports

// Runner is a long-lived process entry point
type Runner interface {
	// Start starts the runner
	Start() error

	// Stop stops the runner and waits for in-flight work
	Stop() error
}
