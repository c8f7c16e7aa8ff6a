// Package config handles loading, parsing and watching the jpdict config file.
//
// # Configuration Discovery
//
// The Load function follows this resolution order:
//
//  1. If a path is explicitly provided, use it
//  2. Otherwise, use ~/.config/jpdict/config.toml (default)
//  3. If the config file doesn't exist, fall back to hardcoded defaults
//  4. If the file exists but fields are missing/empty, use defaults
//
// # Default Values
//
//   - popup_style: blue
//   - dict_lang: en
//   - data_url: http://127.0.0.1:7490/
//   - data_dir: ~/.local/share/jpdict (kanji.db, state.toml and dict/ live here)
//   - socket_path: <data_dir>/jpdict.sock
//   - http_bind: 127.0.0.1:7491
//   - update_threshold: 12h
//   - retry_initial_interval: 3s, retry_max_interval: 12h
//   - poll_interval: 1h
//
// # TOML Format
//
//	popup_style = "yellow"
//	dict_lang = "fr"
//	show_romaji = true
//	update_threshold = "6h"
//
// Durations use Go duration syntax. Tilde expansion is performed on paths.
//
// # Watching
//
// Watch observes the config file's directory with fsnotify, debounces bursts
// of events by 100ms, reloads the file and reports the keys that changed.
// A file that fails to parse leaves the previous config in effect.
package config
