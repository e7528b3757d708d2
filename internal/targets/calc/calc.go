package calc

import (
	"errors"
	"fmt"
	"math"

	"github.com/danmuck/edgeworker/internal/worker"
)

const Name = "calc"

var (
	ErrDivideByZero = errors.New("calc: division by zero")
	ErrNegativeRoot = errors.New("calc: square root of negative number")
)

// Calc is a stateless arithmetic implementation.
type Calc struct{}

func New(*worker.Services) (any, error) {
	return &Calc{}, nil
}

func (c *Calc) Add(x, y int) int {
	return x + y
}

func (c *Calc) Divide(x, y int) (int, error) {
	if y == 0 {
		return 0, fmt.Errorf("%w: %d/%d", ErrDivideByZero, x, y)
	}
	return x / y, nil
}

func (c *Calc) Sqrt(x float64) (float64, error) {
	if x < 0 {
		return 0, fmt.Errorf("%w: %g", ErrNegativeRoot, x)
	}
	return math.Sqrt(x), nil
}
