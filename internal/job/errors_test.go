package job

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorIsMatchesKind(t *testing.T) {
	cause := errors.New("exit status 77")
	err := fmt.Errorf("convert: %w", &Error{Kind: ErrToolFailed, Op: "soffice", ExitCode: 77, Stderr: "lock held", Err: cause})

	assert.ErrorIs(t, err, ErrToolFailed)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrToolTimeout)
	assert.Contains(t, err.Error(), "soffice: tool failed")
	assert.Contains(t, err.Error(), "(exit 77)")
	assert.Contains(t, err.Error(), "lock held")
}

func TestErrorTruncatesStderr(t *testing.T) {
	err := &Error{Kind: ErrToolFailed, Stderr: strings.Repeat("x", 4000) + "END"}
	msg := err.Error()
	assert.Less(t, len(msg), 600)
	assert.True(t, strings.HasSuffix(msg, "END"))
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"nil", nil, nil},
		{"classified", Errorf(ErrInvalidInput, "split", "bad range"), ErrInvalidInput},
		{"wrapped", fmt.Errorf("x: %w", Errorf(ErrWorkspace, "", "disk full")), ErrWorkspace},
		{"deadline", fmt.Errorf("x: %w", context.DeadlineExceeded), ErrToolTimeout},
		{"cancel", context.Canceled, ErrCancelled},
		{"plain", errors.New("boom"), ErrToolFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestStatus(t *testing.T) {
	assert.Equal(t, http.StatusOK, Status(nil))
	assert.Equal(t, http.StatusBadRequest, Status(Errorf(ErrInvalidInput, "", "x")))
	assert.Equal(t, http.StatusGatewayTimeout, Status(Errorf(ErrToolTimeout, "", "x")))
	assert.Equal(t, http.StatusInternalServerError, Status(Errorf(ErrToolSilentFailure, "", "x")))
	assert.Equal(t, http.StatusInternalServerError, Status(Errorf(ErrWorkspace, "", "x")))
	assert.Equal(t, http.StatusInternalServerError, Status(Errorf(ErrToolNotFound, "", "x")))
}

func TestWrapKeepsExistingClassification(t *testing.T) {
	inner := Errorf(ErrInvalidInput, "merge", "not a pdf")
	assert.Same(t, inner, Wrap(ErrToolFailed, "merge", inner))
	assert.Nil(t, Wrap(ErrToolFailed, "merge", nil))

	wrapped := Wrap(ErrWorkspace, "import", errors.New("permission denied"))
	require.Error(t, wrapped)
	assert.ErrorIs(t, wrapped, ErrWorkspace)
	assert.Equal(t, "workspace_error", KindName(wrapped))
}
