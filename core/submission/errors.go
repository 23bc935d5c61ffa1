package submission

import "errors"

var (
	ErrNotFound  = errors.New("submission not found")
	ErrDuplicate = errors.New("this student already submitted this exact text for this assignment")
)
