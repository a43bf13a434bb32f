// Package ws streams the exporter's metric set to WebSocket clients.
//
// A Hub is mounted at /ws/stream. Each client receives the current snapshot
// as soon as it connects and then one message per broadcast interval:
//
//	{"event": "snapshot", "data": { /* GET /api/v1/snapshot payload */ }}
//
// Clients that fall behind (a full send buffer) are disconnected rather than
// slowing the broadcast for everyone. Run closes every connection when its
// context is cancelled.
package ws
