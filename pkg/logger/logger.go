package logger

import (
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"sync"
)

type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

var (
	mu       sync.RWMutex
	minLevel = INFO
	out      = log.New(os.Stderr, "", log.LstdFlags)
)

func SetLevel(l Level) {
	mu.Lock()
	defer mu.Unlock()
	minLevel = l
}

func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DEBUG
	case "warn", "warning":
		return WARN
	case "error":
		return ERROR
	default:
		return INFO
	}
}

func (l Level) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	default:
		return "ERROR"
	}
}

// write renders "[LEVEL] [component] msg key=value ...". Field keys are
// sorted so log lines are stable across runs.
func write(l Level, component, msg string, fields map[string]interface{}) {
	mu.RLock()
	enabled := l >= minLevel
	mu.RUnlock()
	if !enabled {
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[%s] [%s] %s", l, component, msg)

	if len(fields) > 0 {
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, " %s=%v", k, fields[k])
		}
	}

	out.Println(b.String())
}

func DebugC(component, msg string) { write(DEBUG, component, msg, nil) }
func InfoC(component, msg string)  { write(INFO, component, msg, nil) }
func WarnC(component, msg string)  { write(WARN, component, msg, nil) }
func ErrorC(component, msg string) { write(ERROR, component, msg, nil) }

func DebugCF(component, msg string, fields map[string]interface{}) {
	write(DEBUG, component, msg, fields)
}

func InfoCF(component, msg string, fields map[string]interface{}) {
	write(INFO, component, msg, fields)
}

func WarnCF(component, msg string, fields map[string]interface{}) {
	write(WARN, component, msg, fields)
}

func ErrorCF(component, msg string, fields map[string]interface{}) {
	write(ERROR, component, msg, fields)
}
