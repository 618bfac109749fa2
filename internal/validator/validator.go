package validator

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	emailRegex    = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9._+-]*[a-zA-Z0-9])?@[a-zA-Z0-9]([a-zA-Z0-9.-]*[a-zA-Z0-9])?\.[a-zA-Z]{2,}$`)
	usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9_.-]+$`)
)

func Email(email string) error {
	const maxlength = 64

	if len(email) > maxlength {
		return fmt.Errorf("long_email")
	}

	if !emailRegex.MatchString(email) {
		return fmt.Errorf("bad_format")
	}

	return nil
}

func Username(username string) error {
	length := utf8.RuneCountInString(username)
	if length < 2 {
		return fmt.Errorf("short_username")
	} else if length > 32 {
		return fmt.Errorf("long_username")
	}

	if !usernameRegex.MatchString(username) {
		return fmt.Errorf("bad_username")
	}
	return nil
}

// Password only bounds the length. bcrypt ignores bytes past 72.
func Password(password string) error {
	length := len(password)
	if length < 6 {
		return fmt.Errorf("short_password")
	} else if length > 72 {
		return fmt.Errorf("long_password")
	}
	return nil
}

// Name validates server and channel names after trimming.
func Name(name string) (string, error) {
	name = strings.TrimSpace(name)
	length := utf8.RuneCountInString(name)
	if length == 0 {
		return "", fmt.Errorf("empty_name")
	} else if length > 100 {
		return "", fmt.Errorf("long_name")
	}
	return name, nil
}
