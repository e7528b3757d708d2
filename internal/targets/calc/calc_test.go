package calc

import (
	"errors"
	"testing"

	"github.com/danmuck/edgeworker/internal/testutil/testlog"
)

func TestCalcOperations(t *testing.T) {
	testlog.Start(t)
	c := &Calc{}
	if got := c.Add(2, 3); got != 5 {
		t.Fatalf("add got=%d", got)
	}
	if got, err := c.Divide(9, 3); err != nil || got != 3 {
		t.Fatalf("divide got=%d err=%v", got, err)
	}
	if _, err := c.Divide(1, 0); !errors.Is(err, ErrDivideByZero) {
		t.Fatalf("expected ErrDivideByZero got=%v", err)
	}
	if got, err := c.Sqrt(16); err != nil || got != 4 {
		t.Fatalf("sqrt got=%v err=%v", got, err)
	}
	if _, err := c.Sqrt(-1); !errors.Is(err, ErrNegativeRoot) {
		t.Fatalf("expected ErrNegativeRoot got=%v", err)
	}
}
