package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWaitForValue(t *testing.T) {
	t.Parallel()

	ch := make(chan int, 1)
	ch <- 42
	assert.Equal(t, 42, WaitForValue(t, ch, ShortTestTimeout, "value not received"))
}
