package db

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/willibrandon/dbpanel/internal/db/models"
	"golang.org/x/term"
)

// passwordCommandTimeout bounds how long a password_command may run.
const passwordCommandTimeout = 5 * time.Second

// ResolvePassword returns the password for params using the following precedence:
// 1. Execute PasswordCommand if configured
// 2. Use the stored Password if set
// 3. Use PGPASSWORD if set (even if empty)
func ResolvePassword(ctx context.Context, params models.ConnectionParams) (string, error) {
	if params.PasswordCommand != "" {
		password, err := executePasswordCommand(ctx, params.PasswordCommand)
		if err != nil {
			return "", fmt.Errorf("password command failed: %w", err)
		}
		return password, nil
	}

	if params.Password != "" {
		return params.Password, nil
	}

	if v, exists := os.LookupEnv("PGPASSWORD"); exists {
		return v, nil
	}

	return "", nil
}

// executePasswordCommand runs command with a 5-second timeout and returns its trimmed stdout.
func executePasswordCommand(ctx context.Context, command string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, passwordCommandTimeout)
	defer cancel()

	// Simple whitespace split; quoting is not interpreted.
	parts := strings.Fields(command)
	if len(parts) == 0 {
		return "", errors.New("empty password command")
	}

	cmd := exec.CommandContext(ctx, parts[0], parts[1:]...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", fmt.Errorf("command timed out after %s", passwordCommandTimeout)
		}
		return "", fmt.Errorf("command failed: %w (stderr: %s)", err, strings.TrimSpace(stderr.String()))
	}

	password := strings.TrimSpace(stdout.String())
	if password == "" {
		return "", errors.New("command returned empty password")
	}

	return password, nil
}

// PromptPassword prompts on stderr and reads a password with hidden input.
func PromptPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)

	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}

	fmt.Fprintln(os.Stderr)

	return string(passwordBytes), nil
}
