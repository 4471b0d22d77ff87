// Package logs exposes info, warning and error loggers shared by the server.
package logs

import (
	"io"
	"log"
	"os"
	"strings"
)

var (
	// Info is the logger for info-level messages.
	Info *log.Logger
	// Warn is the logger for warnings.
	Warn *log.Logger
	// Err is the logger for errors.
	Err *log.Logger
)

func init() {
	// Default configuration in case Init is never called (tests).
	Init(os.Stderr, "stdFlags")
}

// Init initializes the loggers with the given output and flags.
// Flags is a comma-separated list of log.Logger flag names, e.g.
// "date,time,shortfile".
func Init(out io.Writer, flags string) {
	f := parseFlags(flags)
	Info = log.New(out, "I", f)
	Warn = log.New(out, "W", f)
	Err = log.New(out, "E", f)
}

func parseFlags(flags string) int {
	var result int
	for _, f := range strings.Split(flags, ",") {
		switch strings.TrimSpace(f) {
		case "date":
			result |= log.Ldate
		case "time":
			result |= log.Ltime
		case "microseconds":
			result |= log.Lmicroseconds
		case "longfile":
			result |= log.Llongfile
		case "shortfile":
			result |= log.Lshortfile
		case "utc":
			result |= log.LUTC
		case "stdFlags", "":
			result |= log.LstdFlags
		}
	}
	return result
}
