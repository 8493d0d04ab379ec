package errors

import (
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
)

// UserFriendlyError provides actionable error messages for end users
type UserFriendlyError struct {
	Message    string // User-facing message explaining what went wrong
	Suggestion string // Actionable steps to fix the issue
	DocsLink   string // Optional link to documentation
	Details    error  // Original error for debugging/logs
}

func (e *UserFriendlyError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Message)

	if e.Suggestion != "" {
		sb.WriteString("\n\n")
		sb.WriteString("How to fix:\n")
		sb.WriteString(e.Suggestion)
	}

	if e.DocsLink != "" {
		sb.WriteString("\n\n")
		sb.WriteString("Documentation: ")
		sb.WriteString(e.DocsLink)
	}

	return sb.String()
}

func (e *UserFriendlyError) Unwrap() error {
	return e.Details
}

// NewFriendlyError creates a user-friendly error
func NewFriendlyError(message, suggestion string) *UserFriendlyError {
	return &UserFriendlyError{
		Message:    message,
		Suggestion: suggestion,
	}
}

// WithDetails adds the underlying error details
func (e *UserFriendlyError) WithDetails(err error) *UserFriendlyError {
	e.Details = err
	return e
}

// WithDocs adds a documentation link
func (e *UserFriendlyError) WithDocs(link string) *UserFriendlyError {
	e.DocsLink = link
	return e
}

// Friendly maps a classified fetch error to a message a person can act on.
// A UserFriendlyError already in the chain wins. Errors without a kind are
// returned with a generic message.
func Friendly(err error) *UserFriendlyError {
	if err == nil {
		return nil
	}
	var fe *UserFriendlyError
	if stderrors.As(err, &fe) {
		return fe
	}
	switch KindOf(err) {
	case KindInvalidURL:
		return &UserFriendlyError{
			Message:    "The URL is not a valid http(s) address",
			Suggestion: "Pass an absolute URL such as https://host/path/file.safetensors",
			Details:    err,
		}
	case KindPathEscape:
		return &UserFriendlyError{
			Message:    "The output location is outside the allowed directories",
			Suggestion: "Use one of the roots (models, input, temp, output) or a path relative to them without '..'\nRun 'assetfetch roots' to list them",
			Details:    err,
		}
	case KindIO:
		return PathError("", err)
	case KindHTTP:
		return HTTPError(StatusOf(err), err)
	case KindNetwork:
		return NetworkError(err)
	case KindEmptyDownload:
		return &UserFriendlyError{
			Message:    "The server returned an empty file",
			Suggestion: "Check the link in a browser; it may require a login or point to a placeholder",
			Details:    err,
		}
	case KindSink:
		return &UserFriendlyError{
			Message:    "Download aborted by the progress display",
			Suggestion: "Retry without --tui, or report the issue if it persists",
			Details:    err,
		}
	case KindCancelled:
		return &UserFriendlyError{
			Message: "Download cancelled",
			Details: err,
		}
	case KindChecksum:
		return &UserFriendlyError{
			Message:    "Downloaded file does not match the expected SHA-256",
			Suggestion: "Verify the expected hash, or retry in case the transfer was corrupted",
			Details:    err,
		}
	}
	return &UserFriendlyError{Message: err.Error(), Details: err}
}

// HTTPError explains common non-2xx statuses.
func HTTPError(status int, err error) *UserFriendlyError {
	msg := fmt.Sprintf("Server responded with HTTP %d", status)
	suggestion := "Check that the URL is correct and reachable"
	switch {
	case status == 401 || status == 403:
		msg = fmt.Sprintf("Access denied (HTTP %d)", status)
		suggestion = "The file may require a token:\n  export HF_TOKEN=hf_...  (Hugging Face)\n  export CIVITAI_TOKEN=...  (CivitAI)"
	case status == 404:
		msg = "File not found (HTTP 404)"
		suggestion = "Check the path; private files may also report 404 without a token"
	case status == 429:
		msg = "Rate limited by the server (HTTP 429)"
		suggestion = "Wait a few minutes and try again"
	case status >= 500:
		msg = fmt.Sprintf("Server error (HTTP %d)", status)
		suggestion = "The server is having trouble. Try again later"
	}
	return &UserFriendlyError{Message: msg, Suggestion: suggestion, Details: err}
}

// Common error constructors for frequently encountered issues

// NetworkError returns a network-related error with helpful suggestions
func NetworkError(err error) *UserFriendlyError {
	msg := "Network error occurred"
	suggestion := "Check your internet connection and try again"

	if err != nil {
		errStr := err.Error()

		// DNS resolution failure
		if strings.Contains(errStr, "no such host") || strings.Contains(errStr, "name resolution") {
			msg = "Cannot resolve hostname - DNS lookup failed"
			suggestion = "1. Check your internet connection\n2. Verify DNS settings\n3. Try: ping google.com"
		}

		// Connection refused
		if strings.Contains(errStr, "connection refused") {
			msg = "Server refused connection"
			suggestion = "The server may be down or blocking requests. Try again later."
		}

		// Timeout
		if strings.Contains(errStr, "timeout") || strings.Contains(errStr, "deadline exceeded") {
			msg = "Connection timed out"
			suggestion = "Server is slow or unreachable. Try:\n1. Increase network.timeout_seconds in the config\n2. Check your network speed\n3. Try again later"
		}

		// Certificate errors
		if strings.Contains(errStr, "certificate") || strings.Contains(errStr, "x509") {
			msg = "SSL/TLS certificate verification failed"
			suggestion = "You may be behind a corporate proxy. Install its CA certificate,\nor disable verification (insecure): set network.tls_verify: false in the config"
		}
	}

	return &UserFriendlyError{
		Message:    msg,
		Suggestion: suggestion,
		Details:    err,
	}
}

// DiskSpaceError returns disk space related errors
func DiskSpaceError(availableBytes, requiredBytes uint64) *UserFriendlyError {
	return &UserFriendlyError{
		Message: fmt.Sprintf("Insufficient disk space: need %s but only %s available",
			humanize.IBytes(requiredBytes),
			humanize.IBytes(availableBytes)),
		Suggestion: fmt.Sprintf("Free up at least %s of disk space and try again",
			humanize.IBytes(requiredBytes-availableBytes)),
	}
}

// ConfigError returns configuration-related errors
func ConfigError(field, issue string) *UserFriendlyError {
	return &UserFriendlyError{
		Message:    fmt.Sprintf("Configuration error in field '%s': %s", field, issue),
		Suggestion: "Run 'assetfetch config validate' to check your configuration",
		DocsLink:   "https://github.com/jxwalker/assetfetch#configuration",
	}
}

// DatabaseError returns database-related errors with recovery suggestions
func DatabaseError(err error) *UserFriendlyError {
	msg := "Database error"
	suggestion := "Check that general.data_root is writable"

	if err != nil {
		errStr := err.Error()

		if strings.Contains(errStr, "locked") {
			msg = "Database is locked by another process"
			suggestion = "Wait for other assetfetch runs to finish and try again"
		}

		if strings.Contains(errStr, "corrupt") || strings.Contains(errStr, "malformed") {
			msg = "Database is corrupted"
			suggestion = "Move the state database aside; it only holds download history:\n" +
				"  mv <data_root>/state.db <data_root>/state.db.bak"
		}
	}

	return &UserFriendlyError{
		Message:    msg,
		Suggestion: suggestion,
		Details:    err,
	}
}

// PathError returns file/directory path related errors
func PathError(path string, err error) *UserFriendlyError {
	msg := "Filesystem error"
	if path != "" {
		msg = fmt.Sprintf("Path error: %s", path)
	}
	suggestion := "Check that the path exists and you have permission to access it"

	if err != nil {
		errStr := err.Error()

		if strings.Contains(errStr, "permission denied") {
			msg = "Permission denied"
			suggestion = "Ensure you have write permission on the destination directory"
			if path != "" {
				msg = fmt.Sprintf("Permission denied: %s", path)
				suggestion = fmt.Sprintf("Ensure you have write permission:\n  chmod u+w %s", path)
			}
		}

		if strings.Contains(errStr, "not a directory") {
			msg = "Path exists but is not a directory"
			suggestion = "Remove the file or choose a different path"
		}

		if strings.Contains(errStr, "no space left") {
			msg = "Disk is full"
			suggestion = "Free up disk space and try again"
		}

		if strings.Contains(errStr, "locked by") {
			msg = "Another download is writing the same file"
			suggestion = "Wait for it to finish, or remove the stale .lock file if no download is running"
		}
	}

	return &UserFriendlyError{
		Message:    msg,
		Suggestion: suggestion,
		Details:    err,
	}
}
