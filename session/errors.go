package session

import (
	"fmt"

	"github.com/c360/cubestream/errors"
)

// rejectf builds a validation error whose text is suitable for sending to
// the client verbatim in a failed ack. The sentinel keeps errors.Is
// classification working on the dispatch side.
func rejectf(sentinel error, format string, args ...any) error {
	return &errors.ClassifiedError{
		Class:   errors.ErrorInvalid,
		Err:     sentinel,
		Message: fmt.Sprintf(format, args...),
	}
}
