// Package ws provides the server side of the conversation WebSocket protocol.
//
// The package implements:
//   - Client: one WebSocket connection with buffered writes and read/write pumps
//   - Registry: the set of connected clients, one connection per client identity
//   - Handler: upgrades /ws/:clientId and routes decoded commands
//   - Service: wires the registry and handler together for the composition root
//
// Key behaviors:
//   - JSON text frames carrying the protocol.Envelope event format
//   - A second connection for the same client identity replaces the first,
//     so a reconnecting tab resumes cleanly
//   - Malformed frames are logged and dropped without dispatching
package ws
