// Package httputil provides shared HTTP response/request utilities for handlers.
//
// Handlers and middleware write through these helpers instead of raw
// http.ResponseWriter calls so every endpoint emits the same JSON framing.
package httputil
