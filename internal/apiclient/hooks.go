package apiclient

import "time"

// Hooks receives notifications about request lifecycle events.
// Implementations must be safe for concurrent use.
type Hooks interface {
	// OnRequest is called before a request is attempted
	OnRequest(provider, endpoint string)
	// OnResponse is called once per logical request after it completes,
	// with the final status code (0 if no response was received), the
	// total duration including backoff, and the number of retries used
	OnResponse(provider, endpoint string, statusCode int, duration time.Duration, retries int)
}

type nopHooks struct{}

func (nopHooks) OnRequest(string, string) {}

func (nopHooks) OnResponse(string, string, int, time.Duration, int) {}

// NopHooks returns a Hooks implementation that does nothing
func NopHooks() Hooks {
	return nopHooks{}
}
