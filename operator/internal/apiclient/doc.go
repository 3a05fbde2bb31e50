// Package apiclient is portwatchctl's client for the REST API and the
// /ws/stream board push.
//
// The HTTP client injects the API key and X-Operator header on every request
// (authRoundTripper) and decodes non-2xx bodies back into pkg/types errors:
// 409 becomes *types.ConflictError, 400 *types.ValidationError, 404 wraps
// types.ErrNotFound and 503 wraps types.ErrUnavailable.
//
// The view types here mirror the server's JSON payloads; only the fields the
// CLI prints are decoded.
package apiclient
