package ee

import (
	"time"

	"github.com/tidwall/gjson"
)

// Export task states reported in operation metadata.
const (
	StatePending    = "PENDING"
	StateRunning    = "RUNNING"
	StateCancelling = "CANCELLING"
	StateSucceeded  = "SUCCEEDED"
	StateCancelled  = "CANCELLED"
	StateFailed     = "FAILED"
)

// Terminal reports whether no further state change is expected.
func Terminal(state string) bool {
	switch state {
	case StateSucceeded, StateCancelled, StateFailed:
		return true
	}
	return false
}

// Operation is a long-running export task on the remote batch system.
type Operation struct {
	Name            string
	Done            bool
	State           string
	Description     string
	CreateTime      time.Time
	UpdateTime      time.Time
	DestinationURIs []string
	Error           string
}

func parseOperation(r gjson.Result) *Operation {
	op := &Operation{
		Name:        r.Get("name").String(),
		Done:        r.Get("done").Bool(),
		State:       r.Get("metadata.state").String(),
		Description: r.Get("metadata.description").String(),
		CreateTime:  r.Get("metadata.createTime").Time(),
		UpdateTime:  r.Get("metadata.updateTime").Time(),
		Error:       r.Get("error.message").String(),
	}
	for _, uri := range r.Get("metadata.destinationUris").Array() {
		op.DestinationURIs = append(op.DestinationURIs, uri.String())
	}
	if op.State == "" {
		switch {
		case op.Done && op.Error != "":
			op.State = StateFailed
		case op.Done:
			op.State = StateSucceeded
		default:
			op.State = StatePending
		}
	}
	return op
}
