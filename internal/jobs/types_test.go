package jobs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPermanent(t *testing.T) {
	base := errors.New("insufficient data")

	assert.Nil(t, Permanent(nil))
	assert.False(t, IsPermanent(base))

	p := Permanent(base)
	assert.True(t, IsPermanent(p))
	assert.ErrorIs(t, p, base)
	assert.Equal(t, base.Error(), p.Error())

	wrapped := fmt.Errorf("rebuild: %w", p)
	assert.True(t, IsPermanent(wrapped))
}

func TestRebuildJob_Job(t *testing.T) {
	var j Job = &RebuildJob{JobID: "abc", Status: JobStatusPending}
	assert.Equal(t, "abc", j.GetID())
	assert.Equal(t, JobTypeRebuild, j.GetType())
	assert.Equal(t, JobStatusPending, j.GetStatus())
}
