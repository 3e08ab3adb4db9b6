// Package controller implements the offline asset cache controller that sits
// in front of every mapped origin.
//
// A Controller owns one cache version: it precaches the static manifest during
// Install, removes buckets of superseded versions during Activate, and then
// answers intercepted GET requests with the strategy picked by Classify.
// Registration tracks which controller is active, keeps the previous one when
// an install fails, and flushes detached cache writes on teardown. Handler is
// the Fiber entry point that plugs the active controller into server.NewApp.
package controller
