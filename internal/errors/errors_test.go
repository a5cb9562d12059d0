package errors_test

import (
	stderrors "errors"
	"fmt"
	"testing"

	gwerrors "github.com/jrsteele09/wa-session-gateway/internal/errors"
	"github.com/stretchr/testify/require"
)

func TestSendError(t *testing.T) {
	cause := stderrors.New("socket closed")
	err := fmt.Errorf("dispatch: %w", &gwerrors.SendError{Destination: "15551230000", Cause: cause})

	require.True(t, gwerrors.Is(err, gwerrors.ErrSendFailed))
	require.True(t, gwerrors.Is(err, cause))
	require.Contains(t, err.Error(), "15551230000")

	var sendErr *gwerrors.SendError
	require.True(t, gwerrors.As(err, &sendErr))
	require.Equal(t, cause, sendErr.Cause)
}

func TestDisconnectedError(t *testing.T) {
	err := &gwerrors.DisconnectedError{Reason: "logged out from phone"}
	require.True(t, gwerrors.Is(err, gwerrors.ErrDisconnected))
	require.Equal(t, "session disconnected: logged out from phone", err.Error())
	require.Equal(t, "session disconnected", (&gwerrors.DisconnectedError{}).Error())
}

func TestWrapf(t *testing.T) {
	require.NoError(t, gwerrors.Wrapf(nil, "nothing"))

	err := gwerrors.Wrapf(gwerrors.ErrStorageUnavailable, "put %s", "session/t1/creds.db")
	require.True(t, gwerrors.Is(err, gwerrors.ErrStorageUnavailable))
	require.Equal(t, "put session/t1/creds.db: storage unavailable", err.Error())
}
