// Package config loads the console's TOML configuration.
//
// # Configuration Discovery
//
// Load resolves the file in this order:
//
//  1. If a path is explicitly provided, use it
//  2. Otherwise, use ~/.config/vapor-console/config.toml
//  3. If the file doesn't exist, fall back to defaults
//  4. If the file exists but fields are missing or empty, use defaults
//
// # TOML Format
//
//	api_url = "https://vapor.example.com"
//	api_prefix = "/api/v1"
//	ws_url = "wss://vapor.example.com/api/v1/ws/virtualization/vms"
//	poll_seconds = 10
//	namespace = "default"
//	state_dir = "~/.local/state/vapor-console"
//
// Every field is optional. ws_url is derived from api_url when empty, and
// state_dir holds the log file. Tilde expansion is performed for state_dir
// and the config path.
//
// Missing config files are not an error; a parse error is.
package config
