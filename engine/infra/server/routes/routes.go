package routes

import "fmt"

const version = "v0"

// Version returns the current API version string used in routing (e.g., "v0").
func Version() string {
	return version
}

// Base returns the versioned API base path (e.g., "/api/v0").
func Base() string {
	return fmt.Sprintf("/api/%s", Version())
}

// Tenants returns the tenants base path (e.g., "/api/v0/tenants").
func Tenants() string {
	return Base() + "/tenants"
}

// Progress returns the cross-tenant progress path.
func Progress() string {
	return Base() + "/progress"
}

// Trigger returns the trigger-all path.
func Trigger() string {
	return Base() + "/trigger"
}

// HealthVersioned returns the versioned health path (e.g., "/api/v0/health").
func HealthVersioned() string {
	return Base() + "/health"
}

// Events returns the trigger event stream path.
func Events() string {
	return Base() + "/events"
}
