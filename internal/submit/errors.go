package submit

import "errors"

var (
	ErrNoSubmitButton = errors.New("no submit button found")
	ErrSubmitDisabled = errors.New("submit button stayed disabled")
	ErrNoFieldsFilled = errors.New("no fields could be filled")
)
