// Package httputil provides shared HTTP response/request utilities for handlers.
//
// Handler files should use these helpers instead of writing raw
// http.ResponseWriter calls, so the API, auth, and webhook surfaces all
// produce the same JSON envelope and error structure.
package httputil
