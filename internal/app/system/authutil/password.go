// Package authutil holds password rules and hashing for account sign-up
// and sign-in.
package authutil

import (
	"errors"
	"strings"
	"sync"

	"github.com/consistencygrid/consistencygrid/internal/app/system/normalize"
	"golang.org/x/crypto/bcrypt"
)

const (
	MinPasswordLength = 8
	// bcrypt ignores input past 72 bytes.
	MaxPasswordLength = 72
	BcryptCost        = 12
)

var (
	ErrPasswordTooShort     = errors.New("Password must be at least 8 characters.")
	ErrPasswordTooLong      = errors.New("Password must be at most 72 characters.")
	ErrPasswordCommon       = errors.New("This password is too common. Please choose a different one.")
	ErrPasswordContainsUser = errors.New("Password must not contain your email name.")
)

var commonPasswords = map[string]bool{
	"12345678":    true,
	"123456789":   true,
	"1234567890":  true,
	"password":    true,
	"password1":   true,
	"password123": true,
	"qwerty123":   true,
	"qwertyuiop":  true,
	"11111111":    true,
	"00000000":    true,
	"iloveyou":    true,
	"letmein1":    true,
	"welcome1":    true,
	"sunshine":    true,
	"football":    true,
	"baseball":    true,
	"superman":    true,
	"princess":    true,
	"trustno1":    true,
	"habits123":   true,
}

// PasswordRules describes the rules for display next to a password field.
func PasswordRules() string {
	return "Password must be 8 to 72 characters and cannot be a common password like \"password1\"."
}

// ValidatePassword returns nil if password meets the rules.
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return ErrPasswordTooShort
	}
	if len(password) > MaxPasswordLength {
		return ErrPasswordTooLong
	}
	if commonPasswords[strings.ToLower(password)] {
		return ErrPasswordCommon
	}
	return nil
}

// ValidatePasswordFor applies ValidatePassword and also rejects passwords
// that contain the local part of email (when it is at least 4 characters).
func ValidatePasswordFor(password, email string) error {
	if err := ValidatePassword(password); err != nil {
		return err
	}
	local := normalize.EmailLocal(email)
	if len(local) >= 4 && strings.Contains(strings.ToLower(password), local) {
		return ErrPasswordContainsUser
	}
	return nil
}

// HashPassword hashes a validated password with bcrypt.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), BcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

var (
	decoyOnce sync.Once
	decoy     []byte
)

// CheckPassword reports whether password matches the bcrypt hash. An empty
// hash (unknown account) still costs one bcrypt comparison so response
// timing does not reveal which emails are registered.
func CheckPassword(password, hash string) bool {
	if hash == "" {
		decoyOnce.Do(func() {
			decoy, _ = bcrypt.GenerateFromPassword([]byte("consistencygrid-decoy"), BcryptCost)
		})
		_ = bcrypt.CompareHashAndPassword(decoy, []byte(password))
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// NeedsRehash reports whether hash was made with a cost other than
// BcryptCost and should be replaced after the next successful sign-in.
func NeedsRehash(hash string) bool {
	cost, err := bcrypt.Cost([]byte(hash))
	return err == nil && cost != BcryptCost
}
