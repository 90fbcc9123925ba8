// Package api is the console's boundary to the vapor backend's REST and
// WebSocket surface.
//
// # Overview
//
// Client wraps net/http with bearer authentication, JSON encoding, and error
// mapping. Stores depend on the narrower Transport interface so they can be
// tested against fakes.
//
// # Response Normalisation
//
// The backend wraps payloads inconsistently: some endpoints return
// {"status":"success","data":...}, some return bare arrays, and list payloads
// hide under "vms", "pools", "items", "instances" or "resources". DecodeList
// decides the shape once, here, and returns a ListResult:
//
//	switch r := result.(type) {
//	case api.Items:        // recognised entities
//	case api.Unrecognized: // r.Raw kept for logging; stores treat it as empty
//	}
//
// # Errors
//
// Every failure is an *Error. Transport failures carry Code NETWORK_ERROR and
// wrap the underlying error. Non-2xx responses carry the HTTP status and the
// code/message from the body when one is present, API_ERROR otherwise. An
// error envelope ({"status":"error","error":{...}}) on a 2xx response is
// reported the same way with Status zero.
//
// # Uploads
//
// InitiateUpload creates a tus 1.0 session and returns its URL and id. The
// upload package sends the bytes; ResolveURL, Header and HTTPClient give it
// the same base URL, credentials and transport as the JSON calls.
package api
