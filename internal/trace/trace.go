// Package trace emits Chrome trace-event-format spans for archive I/O:
// block reads/writes and B+Tree checkpoints. Sinks are opt-in; by default
// every event is discarded, so tracing costs nothing unless enabled.
package trace

import (
	"encoding/json"
	"fmt"
	"io"
	"io/ioutil"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

var start = time.Now()

var (
	sinkMu sync.Mutex
	sink   io.Writer = ioutil.Discard
)

// Sink writes all following Event()s as a Chrome trace event file into w.
func Sink(w io.Writer) {
	sinkMu.Lock()
	defer sinkMu.Unlock()
	sink = w
	// Start the JSON Array Format; the trailing ] is optional, so we skip it.
	w.Write([]byte{'['})
}

// Enable is a convenience function for creating a file in
// $TMPDIR/angelos7.traces/prefix.$PID.
//
// The filename assumes the OS does not frequently re-use the same pid.
func Enable(prefix string) error {
	fn := filepath.Join(os.TempDir(), "angelos7.traces", fmt.Sprintf("%s.%d", prefix, os.Getpid()))
	if err := os.MkdirAll(filepath.Dir(fn), 0755); err != nil {
		return err
	}
	f, err := os.Create(fn)
	if err != nil {
		return err
	}
	Sink(f)
	return nil
}

type PendingEvent struct {
	Name           string      `json:"name"` // name of the event, as displayed in Trace Viewer
	Categories     string      `json:"cat"`  // event categories (comma-separated)
	Type           string      `json:"ph"`   // event type (single character)
	ClockTimestamp uint64      `json:"ts"`   // tracing clock timestamp (microsecond granularity)
	Duration       uint64      `json:"dur"`
	Pid            uint64      `json:"pid"` // process ID for the process that output this event
	Tid            uint64      `json:"tid"` // thread ID for the thread that output this event
	Args           interface{} `json:"args"`

	start time.Time
}

// Done records the event's duration and writes it to the configured sink.
func (pe *PendingEvent) Done() {
	pe.Duration = uint64(time.Since(pe.start) / time.Microsecond)
	b, err := json.Marshal(pe)
	if err != nil {
		panic(err)
	}
	sinkMu.Lock()
	defer sinkMu.Unlock()
	if _, err := sink.Write(append(b, ',')); err != nil {
		log.Printf("[trace] %v", err)
	}
}

// Event starts a new span named name on thread tid. Call Done on the result
// once the span completes.
func Event(name string, tid int) *PendingEvent {
	return &PendingEvent{
		Name:           name,
		Type:           "X",
		ClockTimestamp: uint64(time.Since(start) / time.Microsecond),
		Tid:            uint64(tid),
		start:          time.Now(),
	}
}

// Block emits a span for a block device operation (op is "load" or "save").
func Block(op string, index uint32) *PendingEvent {
	ev := Event(fmt.Sprintf("block.%s", op), 0)
	ev.Categories = "block"
	ev.Args = map[string]uint32{"index": index}
	return ev
}

// Checkpoint emits a span for a B+Tree journal checkpoint on the named tree.
func Checkpoint(tree string) *PendingEvent {
	ev := Event("btree.checkpoint", 1)
	ev.Categories = "btree"
	ev.Args = map[string]string{"tree": tree}
	return ev
}
