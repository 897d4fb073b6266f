// Package fetch is the pipeline's HTTP layer.
//
// A single Client instance is shared by the provider adapters (JSON API
// calls) and the harvest controller (asset downloads). The client:
//
//   - sends a realistic User-Agent on every request (some providers reject
//     default or empty client identifiers)
//   - waits on a shared rate limiter before each request
//   - bounds every request with a timeout
//   - streams downloads to disk rather than buffering them
//   - refuses to write a download whose Content-Type is not image/*
//
// Every failure is scoped to the single call. Retrying, and deciding what a
// failure means for a term or a page, is the controller's business.
package fetch
