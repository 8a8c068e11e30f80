package main

const (
	red   = "31"
	green = "32"
	bold  = "1"
)

// paint wraps s in an ANSI color when the output is a terminal.
func (c *cli) paint(code, s string) string {
	if !c.color {
		return s
	}
	return "\x1b[" + code + "m" + s + "\x1b[0m"
}
