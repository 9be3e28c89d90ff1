package api

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/mindtrap/maze-server/internal/engine"
)

// SecurityLogger handles security-conscious logging with no raw seed or
// credential exposure
type SecurityLogger struct {
	logger *log.Logger
}

// NewSecurityLogger creates a new security logger
func NewSecurityLogger() *SecurityLogger {
	return NewSecurityLoggerWith(log.New(os.Stdout, "[SECURITY] ", log.LstdFlags|log.LUTC))
}

// NewSecurityLoggerWith wraps an existing logger.
func NewSecurityLoggerWith(logger *log.Logger) *SecurityLogger {
	return &SecurityLogger{logger: logger}
}

// LogSecurityEvent logs security-related events (failed logins, rejected
// tokens, rate limits, validation failures)
func (sl *SecurityLogger) LogSecurityEvent(
	requestID string,
	eventType string,
	description string,
	context map[string]interface{},
	remoteAddr string,
) {
	sl.logger.Printf(
		"security_event request_id=%s type=%s description=%q context=%+v remote_addr=%s version=%s timestamp=%s",
		requestID,
		eventType,
		description,
		sl.sanitizeContext(context),
		remoteAddr,
		Version,
		time.Now().UTC().Format(time.RFC3339),
	)
}

// LogAuditEvent logs admin actions and probes for later review
func (sl *SecurityLogger) LogAuditEvent(
	requestID string,
	action string,
	resource string,
	outcome string,
	details map[string]interface{},
) {
	sl.logger.Printf(
		"audit_event request_id=%s action=%s resource=%s outcome=%s details=%+v version=%s timestamp=%s",
		requestID,
		action,
		resource,
		outcome,
		sl.sanitizeContext(details),
		Version,
		time.Now().UTC().Format(time.RFC3339),
	)
}

// hashSeed creates a SHA256 hash of a credential for logging (first 16 chars)
func (sl *SecurityLogger) hashSeed(value string) string {
	if value == "" {
		return "empty"
	}
	hash := sha256.Sum256([]byte(value))
	return hex.EncodeToString(hash[:])[:16]
}

// sanitizeContext removes sensitive data from context maps
func (sl *SecurityLogger) sanitizeContext(context map[string]interface{}) map[string]interface{} {
	if context == nil {
		return nil
	}

	sanitized := make(map[string]interface{}, len(context))
	for key, value := range context {
		switch key {
		case "seed":
			switch v := value.(type) {
			case int32:
				sanitized["seed_hash"] = engine.Fingerprint(v)
			case string:
				sanitized["seed_hash"] = sl.hashSeed(v)
			default:
				sanitized["seed_hash"] = fmt.Sprintf("non_seed_value_%T", value)
			}
		case "username":
			if s, ok := value.(string); ok {
				sanitized["username_hash"] = sl.hashSeed(s)
			}
		case "secret", "password", "token", "authorization", "jwt_secret":
			sanitized[key] = "[REDACTED]"
		default:
			sanitized[key] = value
		}
	}

	return sanitized
}

// LogSystemStartup logs system startup information
func (sl *SecurityLogger) LogSystemStartup(addr string, config map[string]interface{}) {
	sl.logger.Printf(
		"system_startup addr=%s config=%+v version=%s git_commit=%s build_time=%s timestamp=%s",
		addr,
		sl.sanitizeContext(config),
		Version,
		GitCommit,
		BuildTime,
		time.Now().UTC().Format(time.RFC3339),
	)
}

// LogSystemShutdown logs system shutdown information
func (sl *SecurityLogger) LogSystemShutdown(reason string, uptime time.Duration) {
	sl.logger.Printf(
		"system_shutdown reason=%s uptime=%v version=%s timestamp=%s",
		reason,
		uptime,
		Version,
		time.Now().UTC().Format(time.RFC3339),
	)
}
