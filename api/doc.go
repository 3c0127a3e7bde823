// Package api provides the request/response types for the VideoFlow HTTP API.
//
// # API Overview
//
// VideoFlow provides a RESTful API for:
//   - Starting and tracking video-analysis sessions
//   - Fetching synthesized results and per-frame analyses
//   - Streaming session events over WebSocket
//   - Downloading session reports (HTML, Markdown, CSV)
//   - Browsing the session archive and managing analysis presets
//   - Health monitoring and metrics
//
// # Authentication
//
// Most API endpoints require authentication via the X-API-Key header:
//
//	X-API-Key: your-api-key
//
// Health, version and metrics endpoints are always unauthenticated.
//
// # Base URL
//
// The default base URL for the API is:
//
//	http://localhost:8080
//
// # Session lifecycle
//
// POST /api/v1/sessions returns immediately with a session id; the
// pipeline runs in the background. Poll GET /api/v1/sessions/{id} or
// subscribe to GET /api/v1/sessions/{id}/events (WebSocket) for
// progress. GET /api/v1/sessions/{id}/result answers 409 with
// RESULT_NOT_READY until the session reaches a terminal state.
package api
