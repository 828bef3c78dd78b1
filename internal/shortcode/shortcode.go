// Package shortcode содержит правило формата коротких кодов и стратегии их генерации.
package shortcode

import (
	"errors"
	"regexp"
)

const (
	MinLength = 6
	MaxLength = 8
	Alphabet  = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

var ErrInvalidFormat = errors.New("short code must be 6-8 alphanumeric characters")

var codePattern = regexp.MustCompile(`^[A-Za-z0-9]{6,8}$`)

// Validate проверяет, что код состоит из 6-8 символов [A-Za-z0-9]
func Validate(code string) error {
	if !codePattern.MatchString(code) {
		return ErrInvalidFormat
	}
	return nil
}

// IsValid удобная обёртка над Validate
func IsValid(code string) bool {
	return Validate(code) == nil
}
