// Package client implements the conversation protocol from the browser's
// side of the wire: a reconnecting WebSocket connection, an event dispatcher,
// and a session controller that drives speech collaborators.
//
// The package implements:
//   - Conn: one WebSocket connection with a stable client identity and
//     bounded automatic reconnection
//   - Dispatcher: ordered event handlers with subscription handles
//   - Conversation: the session state machine (idle, listening, thinking,
//     speaking) and the append-only transcript
//
// Speech capture and playback are collaborators behind the Recognizer and
// Synthesizer interfaces; cmd/convctl provides terminal implementations.
package client
