//go:build !linux || (!arm && !arm64)

package led

import "fmt"

func openLine(pin int) (output, error) {
	return nil, fmt.Errorf("led: gpio unsupported on this platform")
}

var openLineFn = openLine
