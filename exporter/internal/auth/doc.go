// Package auth provides the bearer-token middleware guarding the federation
// push endpoint.
//
// RequireBearer(token) returns chi-compatible middleware. The Authorization
// header must equal "Bearer <token>" exactly; anything else gets a 401 JSON
// error and the wrapped handler is never called, so the request body is not
// read. When token returns "" every request passes through (authentication
// not configured).
package auth
