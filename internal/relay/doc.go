// Package relay is the bot's core: the code registry, the subscriber
// directory, the admin gate and the broadcast fan-out, plus the Service that
// the chat router calls into.
//
// Every mutation is persisted through storage.Store before it becomes
// visible in memory.
package relay
