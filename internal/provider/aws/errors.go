package aws

import (
	"errors"
	"fmt"

	"github.com/aws/smithy-go"
)

// AuthError means credentials or region could not be resolved or were rejected.
type AuthError struct {
	Op  string
	Err error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("aws authentication failed during %s: %v", e.Op, e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

var authCodes = map[string]bool{
	"ExpiredToken":                true,
	"ExpiredTokenException":       true,
	"UnrecognizedClientException": true,
	"InvalidClientTokenId":        true,
	"AuthFailure":                 true,
	"SignatureDoesNotMatch":       true,
}

// wrap annotates an SDK error with the failing operation. Credential
// rejections become *AuthError.
func wrap(op string, err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && authCodes[apiErr.ErrorCode()] {
		return &AuthError{Op: op, Err: err}
	}
	return fmt.Errorf("%s: %w", op, err)
}
