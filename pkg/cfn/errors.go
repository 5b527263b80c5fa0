package cfn

import (
	"fmt"
	"strings"
	"time"

	"github.com/aws/smithy-go"
	"github.com/pkg/errors"
)

// TimeoutError is returned when drift detection did not finish for every
// stack before the shared deadline. No partial results are returned with it.
type TimeoutError struct {
	Timeout time.Duration
	Pending []string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout after %s waiting for drift detection of stack(s): %s",
		e.Timeout, strings.Join(e.Pending, ", "))
}

// TransportError wraps any failure talking to CloudFormation
type TransportError struct {
	Op    string
	Stack string
	Err   error
}

func (e *TransportError) Error() string {
	if e.Stack == "" {
		return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s failed for stack %s: %v", e.Op, e.Stack, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// isStackNotFound reports whether err is CloudFormation's answer for a stack
// that does not exist.
func isStackNotFound(err error) bool {
	var ae smithy.APIError
	if !errors.As(err, &ae) {
		return false
	}
	return ae.ErrorCode() == "ValidationError" && strings.Contains(ae.ErrorMessage(), "does not exist")
}
