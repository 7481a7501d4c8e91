// Package reverse decides where reverse-proxied requests go.
//
// A Registry holds path-prefix rules, newest first. An Engine rewrites a
// request path into a backend URL, either through a direct prefix match or
// through the magic tracking cookie that pins a client to the rule it used
// last, and refuses unmatched requests when the proxy runs reverse-only.
package reverse
