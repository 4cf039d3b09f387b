// Package health serves the liveness and run status endpoints.
package health
