package main

import (
	"bufio"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"
	"golang.org/x/term"
)

// resolveConnection resolves a connection string for a --source/--destination
// pair of flags: a literal URL flag takes precedence over the matching
// --*-env flag, which names an environment variable to read. A .env file in
// the working directory is loaded first (if present) so local development
// doesn't require exporting variables by hand, mirroring the convenience
// other CLIs in this ecosystem offer.
func resolveConnection(literal, envVar string) (string, error) {
	_ = godotenv.Load() // best-effort; absence of .env is not an error

	dsn := literal
	if dsn == "" {
		if envVar == "" {
			return "", fmt.Errorf("connection required: pass a URL or an env var name")
		}
		dsn = os.Getenv(envVar)
		if dsn == "" {
			return "", fmt.Errorf("environment variable %s is not set", envVar)
		}
	}
	return fillMissingPassword(dsn)
}

// fillMissingPassword prompts for a password when a connection URL names a
// user but carries none, and stdin is a TTY. Scripted/CI invocations (no
// TTY) pass the URL through untouched, so an omitted password there still
// surfaces as a driver auth error rather than hanging on a prompt.
func fillMissingPassword(dsn string) (string, error) {
	if isNativeMySQLDSN(dsn) {
		cfg, err := mysql.ParseDSN(dsn)
		if err != nil || cfg.User == "" || cfg.Passwd != "" {
			return dsn, nil
		}
		if !term.IsTerminal(int(os.Stdin.Fd())) {
			return dsn, nil
		}
		pass, err := promptPassword(fmt.Sprintf("Password for %s: ", cfg.User))
		if err != nil {
			return "", err
		}
		cfg.Passwd = pass
		return cfg.FormatDSN(), nil
	}

	u, err := url.Parse(dsn)
	if err != nil || u.User == nil {
		return dsn, nil
	}
	if _, hasPassword := u.User.Password(); hasPassword {
		return dsn, nil
	}
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return dsn, nil
	}
	pass, err := promptPassword(fmt.Sprintf("Password for %s: ", u.User.Username()))
	if err != nil {
		return "", err
	}
	filled := *u
	filled.User = url.UserPassword(u.User.Username(), pass)
	return filled.String(), nil
}

// redactDSN replaces the password component of a connection string with
// ***. go-sql-driver/mysql's native DSN form (user:pass@tcp(host:port)/db)
// has no URL scheme, so url.Parse treats the whole thing as an opaque path
// and silently leaves it untouched; isNativeMySQLDSN routes that form
// through mysql.ParseDSN/FormatDSN instead, which understands its password
// field.
func redactDSN(dsn string) string {
	if isNativeMySQLDSN(dsn) {
		cfg, err := mysql.ParseDSN(dsn)
		if err != nil || cfg.Passwd == "" {
			return dsn
		}
		cfg.Passwd = "***"
		return cfg.FormatDSN()
	}

	u, err := url.Parse(dsn)
	if err != nil || u.User == nil {
		return dsn
	}
	if _, hasPassword := u.User.Password(); !hasPassword {
		return dsn
	}
	redacted := *u
	redacted.User = url.UserPassword(u.User.Username(), "***")
	// url.URL.String percent-encodes '*' in userinfo; put the literal
	// placeholder back so the redacted form reads ":***@".
	return strings.Replace(redacted.String(), ":%2A%2A%2A@", ":***@", 1)
}

// isNativeMySQLDSN reports whether dsn uses go-sql-driver/mysql's native
// form rather than a URL. Any string carrying a "://" scheme separator is
// treated as URL-form, since the native form never contains one.
func isNativeMySQLDSN(dsn string) bool {
	return !strings.Contains(dsn, "://")
}

// promptPassword reads a password from the terminal without echoing it,
// falling back to a plain line read when stdin is not a TTY (e.g. in
// scripted/CI contexts, where golang.org/x/term.ReadPassword would fail).
func promptPassword(prompt string) (string, error) {
	fmt.Print(prompt)
	if term.IsTerminal(int(os.Stdin.Fd())) {
		b, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return string(b), nil
	}
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
