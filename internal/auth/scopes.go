package auth

// Scopes understood by the operator API.
const (
	ScopeTripsRead  = "trips:read"
	ScopeTripsAdmin = "trips:admin"
)
