// Package validation checks user input before it reaches the services.
package validation

import (
	"errors"
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	MaxTitleLen    = 256
	MaxSlugLen     = 64
	MaxCommentLen  = 10000
	MinPasswordLen = 8
	MaxPasswordLen = 128
	MaxEmailLen    = 254
	MaxUsernameLen = 150
)

var (
	usernameRegex = regexp.MustCompile(`^[A-Za-z0-9_.@+-]{3,150}$`)
	slugRegex     = regexp.MustCompile(`^[a-z0-9_-]+$`)
)

var commonPasswords = map[string]struct{}{
	"password":   {},
	"password1":  {},
	"12345678":   {},
	"123456789":  {},
	"qwertyuiop": {},
	"iloveyou":   {},
	"sunshine":   {},
	"football":   {},
	"baseball":   {},
	"letmein1":   {},
}

// ValidateUsername accepts 3 to 150 letters, digits and @ . + - _ characters.
func ValidateUsername(username string) error {
	if !usernameRegex.MatchString(username) {
		return errors.New("username must be 3-150 characters: letters, digits and @/./+/-/_ only")
	}
	return nil
}

// ValidatePassword rejects short, numeric-only, common passwords and passwords
// containing the username.
func ValidatePassword(password, username string) error {
	n := utf8.RuneCountInString(password)
	if n < MinPasswordLen {
		return fmt.Errorf("password must contain at least %d characters", MinPasswordLen)
	}
	if n > MaxPasswordLen {
		return fmt.Errorf("password must contain at most %d characters", MaxPasswordLen)
	}
	if strings.Trim(password, "0123456789") == "" {
		return errors.New("password cannot be entirely numeric")
	}
	if _, ok := commonPasswords[strings.ToLower(password)]; ok {
		return errors.New("password is too common")
	}
	if u := strings.ToLower(strings.TrimSpace(username)); len(u) >= 3 && strings.Contains(strings.ToLower(password), u) {
		return errors.New("password is too similar to the username")
	}
	return nil
}

// ValidateEmail checks a bare address like user@example.com.
func ValidateEmail(email string) error {
	if len(email) > MaxEmailLen {
		return fmt.Errorf("email must be at most %d characters", MaxEmailLen)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || addr.Name != "" {
		return errors.New("enter a valid email address")
	}
	at := strings.LastIndex(email, "@")
	domain := email[at+1:]
	if !strings.Contains(domain, ".") || strings.HasSuffix(domain, ".") || strings.HasPrefix(domain, ".") {
		return errors.New("enter a valid email address")
	}
	return nil
}

// ValidateSlug validates category slug format.
func ValidateSlug(slug string) error {
	if slug == "" || len(slug) > MaxSlugLen || !slugRegex.MatchString(slug) {
		return fmt.Errorf("slug must be 1-%d characters of lowercase letters, digits, hyphens and underscores", MaxSlugLen)
	}
	return nil
}

// ValidateTitle requires a non-blank title of at most MaxTitleLen characters.
func ValidateTitle(title string) error {
	if strings.TrimSpace(title) == "" {
		return errors.New("this field is required")
	}
	if utf8.RuneCountInString(title) > MaxTitleLen {
		return fmt.Errorf("ensure this value has at most %d characters", MaxTitleLen)
	}
	return nil
}

// ValidateText requires non-blank text.
func ValidateText(text string) error {
	if strings.TrimSpace(text) == "" {
		return errors.New("this field is required")
	}
	return nil
}

// ValidateCommentText requires non-blank text of at most MaxCommentLen characters.
func ValidateCommentText(text string) error {
	if err := ValidateText(text); err != nil {
		return err
	}
	if utf8.RuneCountInString(text) > MaxCommentLen {
		return fmt.Errorf("comment too long (max %d characters)", MaxCommentLen)
	}
	return nil
}
