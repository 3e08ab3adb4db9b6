// Package server hosts the Fiber HTTP service, the request middleware chain,
// and the origin registry that maps Host headers onto upstream origins. The
// offline cache controller plugs in through ProxyHandler; diagnostics and
// weather routes live under /-/ and bypass Host routing. Keep exports narrow
// and accept explicit dependencies.
package server
