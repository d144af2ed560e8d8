package telemetry

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Info writes an info-level log line with the given fields.
func Info(msg string, fields map[string]any) {
	emit("info", msg, fields)
}

// Warn writes a warn-level log line with the given fields.
func Warn(msg string, fields map[string]any) {
	emit("warn", msg, fields)
}

// Error writes an error-level log line with the given fields.
func Error(msg string, fields map[string]any) {
	emit("error", msg, fields)
}

// emit renders one JSON log line to stdout. Reserved keys (ts, level, msg)
// win over caller fields of the same name.
func emit(level, msg string, fields map[string]any) {
	entry := make(map[string]any, len(fields)+3)
	for k, v := range fields {
		entry[k] = v
	}
	entry["ts"] = time.Now().UTC().Format(time.RFC3339Nano)
	entry["level"] = level
	entry["msg"] = msg

	data, err := json.Marshal(entry)
	if err != nil {
		fmt.Fprintf(os.Stdout, `{"ts":"%s","level":"error","msg":"logger marshal failed","err":%q}`+"\n",
			time.Now().UTC().Format(time.RFC3339Nano), err.Error())
		return
	}
	fmt.Fprintln(os.Stdout, string(data))
}
