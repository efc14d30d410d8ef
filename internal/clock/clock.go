package clock

import (
	"time"

	"go.uber.org/fx"
)

// Clock returns the current time. Services stamp requested_at / processed_at through it.
type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

var Module = fx.Module("clock",
	fx.Provide(func() Clock { return SystemClock{} }),
)
