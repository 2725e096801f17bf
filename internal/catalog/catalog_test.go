package catalog

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	cases := map[int]Class{
		200: Success,
		204: Success,
		0:   Retryable,
		401: AuthExpired,
		408: Retryable,
		429: Retryable,
		500: Retryable,
		503: Retryable,
		400: NonRetryable,
		403: NonRetryable,
		404: NonRetryable,
	}
	for code, want := range cases {
		assert.Equal(t, want, Classify(code), "code %d", code)
	}
}

func TestResultFromError(t *testing.T) {
	r := ResultFromError(fmt.Errorf("submit: %w", &RemoteError{StatusCode: 429, Message: "quota"}))
	assert.Equal(t, Retryable, r.Class)
	assert.Equal(t, 429, r.Code)

	r = ResultFromError(&RemoteError{StatusCode: 401, Message: "expired"})
	assert.Equal(t, AuthExpired, r.Class)

	r = ResultFromError(errors.New("connection reset"))
	assert.Equal(t, Retryable, r.Class)

	r = ResultFromError(context.Canceled)
	assert.Equal(t, NonRetryable, r.Class)
}

func TestFailedNeverSucceeds(t *testing.T) {
	r := Failed(200, "missing entry")
	assert.False(t, r.OK())
	assert.Equal(t, NonRetryable, r.Class)
}
