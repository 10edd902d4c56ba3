package validator

import (
	"strings"
	"unicode/utf8"
)

type ValidationErrors map[string]string

func (v ValidationErrors) HasErrors() bool {
	return len(v) > 0
}

func (v ValidationErrors) Add(field, message string) {
	v[field] = message
}

const maxContentLength = 4000

// ValidateMessage checks a message create or edit request. A message needs
// content or at least one attachment; content length is capped in runes so
// multi-byte text is not penalized.
func ValidateMessage(content string, attachmentCount int) ValidationErrors {
	errs := make(ValidationErrors)

	content = strings.TrimSpace(content)
	if content == "" && attachmentCount == 0 {
		errs.Add("content", "Message content or attachments are required")
	} else if utf8.RuneCountInString(content) > maxContentLength {
		errs.Add("content", "Message content is too long")
	}

	return errs
}

// ValidateEmoji checks a reaction symbol. Anything short and non-empty is
// accepted; rendering is the client's concern.
func ValidateEmoji(emoji string) ValidationErrors {
	errs := make(ValidationErrors)

	emoji = strings.TrimSpace(emoji)
	if emoji == "" {
		errs.Add("emoji", "Emoji is required")
	} else if utf8.RuneCountInString(emoji) > 16 {
		errs.Add("emoji", "Emoji is too long")
	}

	return errs
}
