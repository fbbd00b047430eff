package kiwoom

import "fmt"

// ConfigError means required upstream credentials are absent outside
// mock mode. Every call fails with it until the environment is fixed.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return "kiwoom: configuration error: " + e.Reason
}

// ValidationError means the request itself was malformed (empty or
// invalid instrument code). It is raised before any network access.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("kiwoom: invalid %s: %s", e.Field, e.Reason)
}

// AuthError means the token endpoint rejected the request. The cached
// token is left unchanged.
type AuthError struct {
	Status  int
	Message string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("kiwoom: token request failed (%d): %s", e.Status, e.Message)
}

// UpstreamError means a data endpoint returned a non-success status.
type UpstreamError struct {
	Status int
	Body   string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("kiwoom: api call failed (%d): %s", e.Status, e.Body)
}
