// Package config handles configuration loading for gateway-sentry.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// The package provides validation and sensible defaults matching the stock
// gateway layout, so a minimal file only needs the values that differ.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	two_fa:
//	  totp_secret: "${SENTRY_TOTP_SECRET}"
//
// Syntax: ${VAR_NAME}
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	maintenance:
//	  interval: "60s"
//	gateway:
//	  request_timeout: "15s"
//
// Supported units: ns, us, ms, s, m, h
//
// # Configuration Sections
//
// Gateway endpoint and routes:
//
//	gateway:
//	  base_url: "https://localhost:5000"
//	  dir: "/opt/gateway"
//	  process_match: "clientportal"
//	  route_tickle: "/v1/api/tickle"
//	  request_timeout: "15s"
//
// Strategy selection:
//
//	auth:
//	  strategy: "A"                    # A or B
//	  restart_failed_sessions: false
//	  max_reauthenticate_retries: 3
//	  max_status_check_retries: 5
//
// Login tuning, including per-role DOM locator overrides:
//
//	login:
//	  max_failed_auth: 5
//	  min_presubmit_buffer: "1s"
//	  targets:
//	    USER_NAME: "NAME@@user_name"
//	    SUBMIT: "CSS_SELECTOR@@.btn.btn-lg.btn-primary"
//
// Two-factor handler selection:
//
//	two_fa:
//	  handler: "TOTP"                  # TOTP, EXTERNAL_REQUEST, NOTIFICATION_RESEND, COMMAND
//	  totp_secret: "${SENTRY_TOTP_SECRET}"
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// # Usage
//
// Load configuration from a path:
//
//	cfg, err := config.Load("/etc/gateway-sentry/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
package config
