package validate

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

const (
	MaxUsernameLen = 64
	MaxTitleLen    = 200
	MaxSummaryLen  = 500
)

func Username(username string) error {
	if l := len(username); l == 0 {
		return errors.New("empty username")
	} else if l > MaxUsernameLen {
		return fmt.Errorf("username too long; max %d characters", MaxUsernameLen)
	}

	for _, r := range username {
		if !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '-' || r == '.') {
			return fmt.Errorf("username contains invalid character %q", r)
		}
	}
	return nil
}

// Title normalizes an article title, replacing spaces with underscores, and checks that it can be used as a
// path segment.
func Title(title string) (string, error) {
	title = strings.ReplaceAll(strings.TrimSpace(title), " ", "_")
	switch l := len(title); {
	case l == 0:
		return "", errors.New("empty title")
	case l > MaxTitleLen:
		return "", fmt.Errorf("title too long; max %d characters", MaxTitleLen)
	}

	if strings.ContainsAny(title, "/?#%\\") {
		return "", fmt.Errorf("title %q contains a reserved character", title)
	}
	for _, r := range title {
		if unicode.IsControl(r) {
			return "", errors.New("title contains a control character")
		}
	}
	return title, nil
}

func Summary(summary string) error {
	if len(summary) > MaxSummaryLen {
		return fmt.Errorf("summary too long; max %d characters", MaxSummaryLen)
	}
	return nil
}
