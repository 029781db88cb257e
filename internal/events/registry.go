package events

import "fmt"

var allowedEvents = map[string]struct{}{
	// world
	"world.setup":  {},
	"world.ready":  {},
	"world.failed": {},

	// process
	"process.started": {},
	"process.state":   {},
	"process.idle":    {},
	"process.stopped": {},

	// job lifecycle
	"job.acquired":  {},
	"job.stage":     {},
	"job.completed": {},
	"job.failed":    {},
	"job.archived":  {},

	// job log
	"job.info":    {},
	"job.warning": {},
	"job.error":   {},

	// solver
	"solver.started":  {},
	"solver.finished": {},

	// sink
	"sink.connected": {},
	"sink.error":     {},

	// system
	"system.startup":  {},
	"system.shutdown": {},
	"system.error":    {},
}

func Validate(event string) error {
	if _, ok := allowedEvents[event]; !ok {
		return fmt.Errorf("unknown event: %s", event)
	}
	return nil
}
