// Package password hashes and checks operator passwords with bcrypt.
package password

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"

	dErrors "mutuelle/pkg/domain-errors"
)

// MinLength is the shortest password accepted for a new operator.
const MinLength = 6

// Validate checks a candidate password before hashing.
func Validate(plain string) error {
	if utf8.RuneCountInString(plain) < MinLength {
		return dErrors.Newf(dErrors.CodeInvalidInput, "password must be at least %d characters", MinLength)
	}
	return nil
}

// Hash validates plain and returns its bcrypt hash.
func Hash(plain string) (string, error) {
	if err := Validate(plain); err != nil {
		return "", err
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", dErrors.New(dErrors.CodeInvalidInput, "password is too long")
		}
		return "", fmt.Errorf("could not hash password: %w", err)
	}
	return string(hashed), nil
}

// Verify checks plain against a bcrypt hash. A mismatch is unauthorized.
func Verify(plain, hash string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return dErrors.New(dErrors.CodeUnauthorized, "invalid credentials")
		}
		return fmt.Errorf("could not verify password: %w", err)
	}
	return nil
}
