package console

import "github.com/fatih/color"

// Available ANSI colors
var (
	Yellow = color.New(color.FgYellow).SprintFunc()
	Red    = color.New(color.FgRed).SprintFunc()
	Green  = color.New(color.FgGreen).SprintFunc()
	Cyan   = color.New(color.FgCyan).SprintFunc()
	White  = color.New(color.FgHiWhite).SprintFunc()
	Bold   = color.New(color.Bold).SprintFunc()
)

// Status colors a report status: OK green, TIMEOUT yellow, anything else red.
func Status(s string) string {
	switch s {
	case "OK":
		return Green(s)
	case "TIMEOUT":
		return Yellow(s)
	default:
		return Red(s)
	}
}
