package runtime

import (
	"sync"

	"github.com/goccy/go-json"
)

// recorder collects everything tenant code emits through the host callback
// table during a single run. Host callbacks may be invoked from finalizers
// and interrupt paths, so every method takes the lock.
type recorder struct {
	mu             sync.Mutex
	consoleLog     []string
	consoleResults []string
	globalIntents  []RawIntent
	roomIntents    map[string][]RawIntent
	notifications  []RawNotification
}

func newRecorder() *recorder {
	return &recorder{roomIntents: map[string][]RawIntent{}}
}

func (r *recorder) Log(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.consoleLog = append(r.consoleLog, line)
}

func (r *recorder) Result(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.consoleResults = append(r.consoleResults, line)
}

func (r *recorder) Notify(message string, groupInterval int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notifications = append(r.notifications, RawNotification{
		Message:       message,
		GroupInterval: groupInterval,
	})
}

// RoomIntent records an intent against a room. argsJSON carries either a
// single argument object or an array of them; anything else is recorded as
// an empty argument list so a malformed call cannot abort the run.
func (r *recorder) RoomIntent(room, objectID, name, argsJSON string) {
	intent := RawIntent{ObjectID: objectID, Name: name, Args: parseArgs(argsJSON)}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.roomIntents[room] = append(r.roomIntents[room], intent)
}

func (r *recorder) GlobalIntent(name, argsJSON string) {
	intent := RawIntent{Name: name, Args: parseArgs(argsJSON)}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.globalIntents = append(r.globalIntents, intent)
}

// drain moves the recorded output into res. The recorder is single-use;
// drain is called once after the run has finished.
func (r *recorder) drain(res *ExecutionResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res.ConsoleLog = r.consoleLog
	res.ConsoleResults = r.consoleResults
	res.GlobalIntents = r.globalIntents
	res.RoomIntents = r.roomIntents
	res.Notifications = r.notifications
	r.consoleLog = nil
	r.consoleResults = nil
	r.globalIntents = nil
	r.roomIntents = map[string][]RawIntent{}
	r.notifications = nil
}

func parseArgs(argsJSON string) []map[string]any {
	if argsJSON == "" {
		return nil
	}
	var list []map[string]any
	if err := json.Unmarshal([]byte(argsJSON), &list); err == nil {
		return list
	}
	var single map[string]any
	if err := json.Unmarshal([]byte(argsJSON), &single); err == nil {
		return []map[string]any{single}
	}
	return nil
}
