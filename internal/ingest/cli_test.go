package ingest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidIdentifier(t *testing.T) {
	assert.True(t, ValidIdentifier("rig-one_2"))
	assert.False(t, ValidIdentifier("rig;rm -rf /"))
	assert.False(t, ValidIdentifier(""))
	assert.False(t, ValidIdentifier("../etc"))
}

func TestGuardedArgs(t *testing.T) {
	assert.True(t, guardedArgs("alpha", "w1"))
	assert.False(t, guardedArgs("alpha", "w1; echo pwned"))
}

func TestExecRunnerRunEcho(t *testing.T) {
	out, err := ExecRunner{}.Run(context.Background(), "echo", "hello")
	assert.NoError(t, err)
	assert.Contains(t, string(out), "hello")
}

func TestExecRunnerRunFailure(t *testing.T) {
	_, err := ExecRunner{}.Run(context.Background(), "false")
	assert.Error(t, err)
}
