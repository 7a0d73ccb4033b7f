// Package storage persists the bot's state.
//
// State is kept as whole-namespace payloads ("codes", "subscribers") so every
// driver can replace a namespace atomically. Drivers also append an audit
// trail of operator actions.
//
// Drivers: file, sqlite, redis, postgres, memory.
package storage
