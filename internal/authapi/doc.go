// Package authapi is the HTTP client for the glint auth service.
//
// It exposes the four remote operations the session layer depends on —
// Login, Signup, VerifyToken, RefreshToken — as plain request/response
// calls. Failures are reported as *Error values carrying a typed Kind
// (invalid_credentials, unauthorized, not_found, ...) derived from the
// response body or, failing that, the HTTP status code. Transport-level
// failures map to KindTransient.
package authapi
