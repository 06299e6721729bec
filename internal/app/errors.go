package app

import (
	"errors"
	"strings"

	"github.com/willibrandon/dbpanel/internal/browser"
	"github.com/willibrandon/dbpanel/internal/db"
	"github.com/willibrandon/dbpanel/internal/registry"
	"github.com/willibrandon/dbpanel/internal/storage"
	"github.com/willibrandon/dbpanel/internal/validation"
)

// Hint returns a short troubleshooting suggestion for err, or "" when there
// is nothing useful to add to the error text itself.
func Hint(err error) string {
	if err == nil {
		return ""
	}

	var perr *storage.PersistenceError
	switch {
	case validation.IsValidationError(err):
		return "Check the connection fields: name, database and username are required, port must be 1-65535."
	case errors.Is(err, registry.ErrDuplicateName):
		return "Choose another name or remove the existing connection first."
	case errors.Is(err, registry.ErrNotFound):
		return "Run 'dbpanel conn list' to see saved connections."
	case errors.Is(err, browser.ErrTableNotFound):
		return "Run 'dbpanel tables <conn>' to see available tables."
	case errors.As(err, &perr):
		return "Check that the store path in config.yaml is writable."
	case db.IsConnectivity(err):
		return connectionHint(err.Error())
	}
	return ""
}

// connectionHint maps common connection failures to guidance.
func connectionHint(msg string) string {
	switch {
	case strings.Contains(msg, "password command"):
		return "Test the password_command manually and make sure it prints only the password."
	case strings.Contains(msg, "connection refused"):
		return "PostgreSQL is not accepting connections. Verify it is running and listening on the expected port."
	case strings.Contains(msg, "password authentication failed"), strings.Contains(msg, "authentication failed"):
		return "Verify the username and password, or configure password_command / PGPASSWORD."
	case strings.Contains(msg, "database") && strings.Contains(msg, "does not exist"):
		return "Verify the database name. List available databases with: psql -l"
	case strings.Contains(msg, "no such host"), strings.Contains(msg, "unknown host"):
		return "Cannot resolve the hostname. Try an IP address instead."
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "deadline exceeded"):
		return "The server did not respond in time. Check network connectivity and firewall rules."
	case strings.Contains(msg, "SSL"), strings.Contains(msg, "TLS"):
		return "Secure connection failed. Check whether the server supports SSL (pg_hba.conf)."
	case strings.Contains(msg, "permission denied"):
		return "The user lacks CONNECT privilege on the database."
	}
	return "Run with --debug for detailed logs."
}
