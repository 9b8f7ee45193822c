// Package storage provides the durable store used by the bot.
//
// It holds:
//   - posted_content: URLs already broadcast (the dedup set)
//   - bot_state: generic key-value rows for long-lived-mode bookkeeping
//   - guilds: destination directory persistence (service mode only)
package storage
