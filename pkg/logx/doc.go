// Package logx is the structured logger used across coderelay.
//
// It wraps zerolog behind a small value type (Logger) so components can carry
// fixed fields (comp=..., rid=...) without touching zerolog directly. A Service
// owns the live sinks:
//   - console (human readable, short caller)
//   - file (JSON lines)
//   - Telegram log chat (min level + rate limited, never blocks the caller)
//
// Configured secrets (the bot token) are masked before any sink sees a line.
//
// Sinks can be swapped at runtime with Service.Apply; loggers derived from the
// Service pick up the change on their next write.
package logx
