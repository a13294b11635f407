package fault

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_Message(t *testing.T) {
	cause := errors.New("connection refused")

	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{"op only", &Error{Kind: KindStorage, Op: "store set"}, "store set: storage"},
		{"reason", New(KindDevice, "geo request", ReasonTimeout), "geo request: device (timeout)"},
		{"cause", &Error{Kind: KindNetwork, Op: "submit report", Err: cause}, "submit report: network: connection refused"},
		{"reason and cause", &Error{Kind: KindValidation, Op: "submit report", Reason: ReasonRejected, Err: cause},
			"submit report: validation (rejected): connection refused"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestKindOf_WrappedChain(t *testing.T) {
	base := New(KindNetwork, "submit report", "")
	wrapped := fmt.Errorf("flush: %w", base)

	assert.Equal(t, KindNetwork, KindOf(wrapped))
	assert.True(t, IsNetwork(wrapped))
	assert.False(t, IsStorage(wrapped))
}

func TestKindOf_Unclassified(t *testing.T) {
	assert.Equal(t, KindUnknown, KindOf(errors.New("boom")))
	assert.Equal(t, Kind(""), KindOf(nil))
}

func TestWrap_Nil(t *testing.T) {
	assert.NoError(t, Wrap(KindStorage, "store set", nil))
	assert.NoError(t, Wrapf(KindStorage, "store set", "x", nil))
}

func TestWrap_Unwrap(t *testing.T) {
	cause := errors.New("disk full")
	err := Wrap(KindStorage, "store set", cause)

	assert.ErrorIs(t, err, cause)
	assert.True(t, IsStorage(err))
}

func TestReasonOf(t *testing.T) {
	err := fmt.Errorf("capture: %w", New(KindDevice, "open camera", ReasonPermissionDenied))
	assert.Equal(t, ReasonPermissionDenied, ReasonOf(err))
	assert.True(t, IsDevice(err))
	assert.Equal(t, "", ReasonOf(errors.New("plain")))
}
