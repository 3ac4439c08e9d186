// Package types provides shared type definitions for the VoiceFlow service.
//
// The types package is the lowest-level package with no internal dependencies,
// so every other package may import it without creating cycles. It holds the
// unified error model, the per-call identity bundle and the contact extraction
// result types shared between the session orchestrator and its clients.
package types
