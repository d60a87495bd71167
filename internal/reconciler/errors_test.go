package reconciler

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestValidationError_Message(t *testing.T) {
	err := &ValidationError{Missing: []string{"min_size", "launch_config_name"}}
	assert.Equal(t, "Missing required arguments for autoscaling group create/update: min_size,launch_config_name", err.Error())

	err = &ValidationError{Reason: "bad state"}
	assert.Equal(t, "bad state", err.Error())
}

func TestRemoteError_Unwrap(t *testing.T) {
	cause := errors.New("Throttling: rate exceeded")
	err := remote("describe groups", cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "describe groups: Throttling: rate exceeded", err.Error())
}

func TestTimeoutError_IsTimedOut(t *testing.T) {
	err := &TimeoutError{Name: "web", Waited: 90 * time.Second}

	assert.ErrorIs(t, err, ErrTimedOut)
	assert.Contains(t, err.Error(), `"web"`)
	assert.Contains(t, err.Error(), "1m30s")
}
