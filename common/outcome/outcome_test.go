package outcome

import (
	"encoding/json"
	"errors"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFailedNeverCarriesKindNone(t *testing.T) {
	o := Failed(None, "boom")
	assert.False(t, o.Success)
	assert.Equal(t, Unexpected, o.ErrorKind)
	assert.Equal(t, -1, o.ExitCode)

	o = Failedf(Timeout, "timed out after %ds", 5)
	assert.Equal(t, Timeout, o.ErrorKind)
	assert.Equal(t, "timed out after 5s", o.Message)
}

func TestSucceeded(t *testing.T) {
	o := Succeeded("done")
	assert.True(t, o.Success)
	assert.Equal(t, None, o.ErrorKind)
	assert.NoError(t, o.AsError())
	assert.Empty(t, o.Error())
}

func TestOutcomeAsError(t *testing.T) {
	cause := fs.ErrNotExist
	o := FromError(InvalidArgument, cause)
	err := o.AsError()
	require.Error(t, err)
	assert.ErrorIs(t, err, fs.ErrNotExist)

	var target StepOutcome
	require.True(t, errors.As(err, &target))
	assert.Equal(t, InvalidArgument, target.ErrorKind)

	o = Failed(ProcessFailure, "git clone failed")
	o.Stderr = "fatal: repository not found\n"
	assert.Equal(t, "git clone failed (process_failure): fatal: repository not found", o.Error())
}

func TestErrorKindJSON(t *testing.T) {
	for _, kind := range []ErrorKind{None, NotFound, Timeout, InvalidArgument, ProcessFailure, Unexpected} {
		t.Run(kind.String(), func(t *testing.T) {
			b, err := json.Marshal(kind)
			require.NoError(t, err)
			var got ErrorKind
			require.NoError(t, json.Unmarshal(b, &got))
			assert.Equal(t, kind, got)
		})
	}
}

func TestWithMessageKeepsOutput(t *testing.T) {
	o := Failed(ProcessFailure, "exit status 1")
	o.Stdout = "out"
	o.Stderr = "err"
	reworded := o.WithMessage("docker pull failed")
	assert.Equal(t, "docker pull failed", reworded.Message)
	assert.Equal(t, "out", reworded.Stdout)
	assert.Equal(t, "err", reworded.Stderr)
	assert.Equal(t, ProcessFailure, reworded.ErrorKind)
}
