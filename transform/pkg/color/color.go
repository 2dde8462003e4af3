package color

import (
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ANSI color codes
const (
	reset = "\033[0m"

	// Foreground colors
	FgRed    = 31
	FgGreen  = 32
	FgYellow = 33
	FgCyan   = 36
	FgWhite  = 37

	// Attributes
	Bold = 1
	Dim  = 2
)

// NoColor disables escape sequences, e.g. when output is piped.
var NoColor = false

// Color represents a text color configuration
type Color struct {
	params []int
}

// New creates a new Color with the given attributes
func New(attrs ...int) *Color {
	return &Color{params: attrs}
}

// format returns the ANSI escape sequence for this color
func (c *Color) format() string {
	if NoColor || len(c.params) == 0 {
		return ""
	}
	codes := make([]string, len(c.params))
	for i, p := range c.params {
		codes[i] = strconv.Itoa(p)
	}
	return "\033[" + strings.Join(codes, ";") + "m"
}

func (c *Color) wrap(s string) string {
	seq := c.format()
	if seq == "" {
		return s
	}
	return seq + s + reset
}

// Fprintf prints formatted output with color to the given writer
func (c *Color) Fprintf(w io.Writer, format string, a ...any) {
	fmt.Fprint(w, c.wrap(fmt.Sprintf(format, a...)))
}

// Sprint returns a colored string
func (c *Color) Sprint(a ...any) string {
	return c.wrap(fmt.Sprint(a...))
}

// Sprintf returns a formatted colored string
func (c *Color) Sprintf(format string, a ...any) string {
	return c.wrap(fmt.Sprintf(format, a...))
}
