package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// PasswordEnv names the environment variable checked first for the password.
const PasswordEnv = "WORLDKEEPER_PASSWORD"

// readPassword returns the account password from, in priority order:
// 1. WORLDKEEPER_PASSWORD environment variable
// 2. --password-file
// 3. --password
// 4. Interactive prompt
func (a *App) readPassword(prompt string) (string, error) {
	if password := os.Getenv(PasswordEnv); password != "" {
		return password, nil
	}

	if a.opts.passwordFile != "" {
		content, err := os.ReadFile(a.opts.passwordFile)
		if err != nil {
			return "", fmt.Errorf("failed to read password file: %w", err)
		}
		// убираем перевод строки в конце
		password := strings.TrimSpace(string(content))
		if password == "" {
			return "", errors.New("password file is empty")
		}
		return password, nil
	}

	if a.opts.password != "" {
		return a.opts.password, nil
	}

	password, err := a.io.ReadPassword(prompt)
	if err != nil {
		return "", fmt.Errorf("failed to read password from stdin: %w", err)
	}
	if password == "" {
		return "", errors.New("password cannot be empty")
	}
	return password, nil
}

// readUsername берёт имя из аргументов или спрашивает его
func (a *App) readUsername(args []string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	username, err := a.io.ReadInput("Username: ")
	if err != nil {
		return "", fmt.Errorf("failed to read username: %w", err)
	}
	return username, nil
}
