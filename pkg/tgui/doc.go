// Package tgui holds small Telegram UI helpers: inline keyboard building,
// callback_data packing, HTML escaping, and message splitting against
// Telegram's hard length limits.
package tgui
