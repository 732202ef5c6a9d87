package step

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

// countdown makes progress a fixed number of times before finishing.
type countdown struct {
	left int
}

func (c *countdown) Poll() Result[int] {
	if c.left == 0 {
		return Ok(42)
	}
	c.left--
	return Result[int]{Status: Progress}
}

func TestDriveRunsToCompletion(t *testing.T) {
	res := Drive[int](&countdown{left: 5}, 10)
	assert.Equal(t, Done, res.Status)
	assert.Equal(t, 42, res.Value)
}

func TestDriveStopsAtStepBudget(t *testing.T) {
	res := Drive[int](&countdown{left: 100}, 10)
	assert.Equal(t, Progress, res.Status)
}

func TestDriveReturnsSuspendImmediately(t *testing.T) {
	calls := 0
	p := Func[int](func() Result[int] {
		calls++
		return Suspended[int]()
	})
	res := Drive[int](p, 10)
	assert.Equal(t, Suspend, res.Status)
	assert.Equal(t, 1, calls)
}

func TestDriveSurfacesFailure(t *testing.T) {
	boom := errors.New("boom")
	p := Func[int](func() Result[int] { return Err[int](boom) })
	res := Drive[int](p, 10)
	assert.Equal(t, Failed, res.Status)
	assert.ErrorIs(t, res.Err, boom)
}
