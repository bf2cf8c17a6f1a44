package validation

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"whisperq/internal/constants"
	"whisperq/internal/errors"
)

// ValidateUserID validates a Twitch user ID. An empty ID is allowed and marks
// a recipient whose ID has not been resolved yet.
func ValidateUserID(id string) error {
	if id == "" {
		return nil
	}

	if len(id) > constants.MaxTwitchUserIDLength {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("user ID too long (max %d digits)", constants.MaxTwitchUserIDLength))
	}

	for _, char := range id {
		if !unicode.IsDigit(char) {
			return errors.New(errors.ErrCodeInvalidInput, "user ID must contain only digits")
		}
	}

	return nil
}

// ValidateDisplayName validates a recipient display name
func ValidateDisplayName(name string) error {
	if strings.TrimSpace(name) == "" {
		return errors.New(errors.ErrCodeInvalidInput, "display name cannot be empty")
	}

	if err := ValidateStringLength(name, "display name", 1, constants.MaxDisplayNameLength); err != nil {
		return err
	}

	for _, char := range name {
		if unicode.IsControl(char) || unicode.IsSpace(char) {
			return errors.New(errors.ErrCodeInvalidInput, "display name contains invalid characters")
		}
	}

	return nil
}

// ValidateWhisperText validates whisper content against the Helix message limit
func ValidateWhisperText(text string) error {
	if strings.TrimSpace(text) == "" {
		return errors.New(errors.ErrCodeInvalidInput, "text cannot be empty")
	}

	if !utf8.ValidString(text) {
		return errors.New(errors.ErrCodeInvalidInput, "text must be valid UTF-8")
	}

	if strings.ContainsRune(text, '\x00') {
		return errors.New(errors.ErrCodeInvalidInput, "text contains invalid characters")
	}

	return ValidateStringLength(text, "text", 1, constants.MaxWhisperTextLength)
}

// ValidateStringLength validates the rune length of value against bounds
func ValidateStringLength(value, fieldName string, minLength, maxLength int) error {
	n := utf8.RuneCountInString(value)
	if n < minLength {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("%s too short (min %d characters)", fieldName, minLength))
	}

	if n > maxLength {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("%s too long (max %d characters)", fieldName, maxLength))
	}

	return nil
}

// ValidateNumericRange validates numeric values against bounds
func ValidateNumericRange(value int, fieldName string, minValue, maxValue int) error {
	if value < minValue {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("%s too small (min %d)", fieldName, minValue))
	}

	if value > maxValue {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("%s too large (max %d)", fieldName, maxValue))
	}

	return nil
}
