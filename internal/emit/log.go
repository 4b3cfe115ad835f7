package emit

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

// LogFormat selects LogEmitter's wire format.
type LogFormat string

const (
	LogFormatText  LogFormat = "text"
	LogFormatJSONL LogFormat = "jsonl"
)

// LogEmitter writes every event to an io.Writer, one line per event, either
// as a short human-readable summary or as a JSONL record. This plays the
// role of a structured logger for the engine: there is no separate logging
// concept in this system, the event bus doubles as the log.
type LogEmitter struct {
	mu     sync.Mutex
	w      io.Writer
	format LogFormat
}

// NewLogEmitter returns a LogEmitter writing to w in the given format.
func NewLogEmitter(w io.Writer, format LogFormat) *LogEmitter {
	return &LogEmitter{w: w, format: format}
}

func (l *LogEmitter) Emit(event Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.format == LogFormatJSONL {
		b, err := json.Marshal(logRecord(event))
		if err != nil {
			fmt.Fprintf(l.w, `{"type":"marshal-error","error":%q}`+"\n", err.Error())
			return
		}
		l.w.Write(b)
		l.w.Write([]byte("\n"))
		return
	}

	fmt.Fprintf(l.w, "[%s] %s exec=%s node=%s\n", event.Timestamp.Format("15:04:05.000"), event.Type, event.ExecutionID, event.NodeID)
}

func (l *LogEmitter) EmitBatch(events []Event) error {
	for _, e := range events {
		l.Emit(e)
	}
	return nil
}

func (l *LogEmitter) Flush() error { return nil }

// logRecord is a JSON-safe projection of Event (Err is not directly
// marshalable and Approval/StreamEvent may carry arbitrary shapes).
func logRecord(e Event) map[string]interface{} {
	rec := map[string]interface{}{
		"type":        e.Type,
		"executionId": e.ExecutionID,
		"timestamp":   e.Timestamp,
	}
	if e.WorkflowID != "" {
		rec["workflowId"] = e.WorkflowID
	}
	if e.NodeID != "" {
		rec["nodeId"] = e.NodeID
	}
	if e.NodeName != "" {
		rec["nodeName"] = e.NodeName
	}
	if e.RunCount != 0 {
		rec["runCount"] = e.RunCount
	}
	if e.StreamEvent != nil {
		rec["event"] = e.StreamEvent
	}
	if e.Result != nil {
		rec["result"] = e.Result
	}
	if e.Err != nil {
		rec["error"] = e.Err.Error()
	}
	if e.Approval != nil {
		rec["approval"] = e.Approval
	}
	if e.FinalResult != nil {
		rec["finalResult"] = e.FinalResult
	}
	if len(e.ValidationErrors) > 0 {
		msgs := make([]string, len(e.ValidationErrors))
		for i, ve := range e.ValidationErrors {
			msgs[i] = ve.Error()
		}
		rec["validationErrors"] = msgs
	}
	return rec
}
