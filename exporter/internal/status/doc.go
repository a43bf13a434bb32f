// Package status fetches and decodes the JSON status document published by a
// fishnet server.
//
// A Fetcher performs one HTTP GET per call: bearer authentication when the
// server has a key, a 10-second timeout, no retries. Only HTTP 200 with a
// decodable JSON body counts as success; everything else is returned as a
// *FetchError naming the server so the caller can mark it down and move on.
//
// Snapshot mirrors the document loosely. Every section is optional, and the
// scalar fields that matter for "absent vs zero" are pointers; callers decide
// the defaults.
package status
