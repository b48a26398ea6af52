// Package led drives an activity LED that lights while sentences arrive.
package led

import (
	"sync"
	"time"
)

const DefaultHold = 100 * time.Millisecond

// output is a single digital line.
type output interface {
	SetValue(v int) error
	Close() error
}

// Indicator turns the LED on for each Pulse and off once no pulse has
// arrived for the hold time. A nil *Indicator is a valid no-op.
type Indicator struct {
	out  output
	hold time.Duration

	mu     sync.Mutex
	on     bool
	timer  *time.Timer
	closed bool
}

// Open requests the BCM GPIO pin as an output. pin <= 0 disables the LED
// and returns a nil Indicator.
func Open(pin int, hold time.Duration) (*Indicator, error) {
	if pin <= 0 {
		return nil, nil
	}
	out, err := openLineFn(pin)
	if err != nil {
		return nil, err
	}
	return newIndicator(out, hold), nil
}

func newIndicator(out output, hold time.Duration) *Indicator {
	if hold <= 0 {
		hold = DefaultHold
	}
	return &Indicator{out: out, hold: hold}
}

func (i *Indicator) Pulse() {
	if i == nil {
		return
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed {
		return
	}
	if !i.on {
		if i.out.SetValue(1) == nil {
			i.on = true
		}
	}
	if i.timer == nil {
		i.timer = time.AfterFunc(i.hold, i.off)
		return
	}
	i.timer.Reset(i.hold)
}

func (i *Indicator) off() {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed || !i.on {
		return
	}
	if i.out.SetValue(0) == nil {
		i.on = false
	}
}

// On reports whether the LED is currently lit.
func (i *Indicator) On() bool {
	if i == nil {
		return false
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.on
}

// Close turns the LED off and releases the line.
func (i *Indicator) Close() error {
	if i == nil {
		return nil
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed {
		return nil
	}
	i.closed = true
	if i.timer != nil {
		i.timer.Stop()
	}
	_ = i.out.SetValue(0)
	i.on = false
	return i.out.Close()
}
