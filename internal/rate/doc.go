// Package rate implements the client-side fixed-window call limiter keyed by
// (tenant, user, endpoint). It blocks excessive outbound calls before they
// reach the network; the backend enforces its own authoritative limits.
package rate
