package llm

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantType  ErrorType
		retryable bool
	}{
		{
			name:      "unauthorized",
			err:       errors.New("status 401 Unauthorized: invalid api key"),
			wantType:  ErrorTypeAuth,
			retryable: false,
		},
		{
			name:      "model missing",
			err:       errors.New("the model gpt-5-ultra does not exist"),
			wantType:  ErrorTypeModel,
			retryable: false,
		},
		{
			name:      "connection refused",
			err:       errors.New("dial tcp 127.0.0.1:8000: connection refused"),
			wantType:  ErrorTypeEndpoint,
			retryable: true,
		},
		{
			name:      "rate limited",
			err:       errors.New("429 Too Many Requests: rate limit exceeded"),
			wantType:  ErrorTypeUnknown,
			retryable: true,
		},
		{
			name:      "server error",
			err:       errors.New("unexpected status 503"),
			wantType:  ErrorTypeEndpoint,
			retryable: true,
		},
		{
			name:      "unclassified",
			err:       errors.New("something odd happened"),
			wantType:  ErrorTypeUnknown,
			retryable: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyError(tt.err)
			require.NotNil(t, got)
			assert.Equal(t, tt.wantType, got.Type)
			assert.Equal(t, tt.retryable, got.IsRetryable())
			assert.ErrorIs(t, got, tt.err)
		})
	}
}

func TestClassifyErrorNil(t *testing.T) {
	assert.Nil(t, ClassifyError(nil))
}

func TestClassifyErrorPassesThroughStructured(t *testing.T) {
	orig := NewError(ErrorTypeAuth, "bad key", false, nil)
	got := ClassifyError(fmt.Errorf("wrapped: %w", orig))
	assert.Same(t, orig, got)
}

func TestErrorString(t *testing.T) {
	e := &Error{Type: ErrorTypeEndpoint, Message: "server error", StatusCode: 503}
	assert.Equal(t, "endpoint HTTP 503 server error", e.Error())
}
