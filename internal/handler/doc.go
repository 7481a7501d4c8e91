// Package handler implements the proxy's HTTP request handler.
// It runs every request through the URL rewrite engine, then forwards it
// to the rewritten backend or, for absolute URIs, to the origin server.
package handler
