package pipeline

import (
	"encoding/json"
	"fmt"
	"time"
)

type Status uint32

const (
	StatusMissing Status = iota
	StatusStarting
	StatusRunning
	StatusComplete
	StatusCompleteWithError
	StatusShutdown
)

var statusNames = map[Status]string{
	StatusMissing:           "",
	StatusStarting:          "starting",
	StatusRunning:           "running",
	StatusComplete:          "complete",
	StatusCompleteWithError: "complete with error",
	StatusShutdown:          "shutdown by user",
}

func (s Status) String() string {
	return statusNames[s]
}

func (s Status) MarshalJSON() ([]byte, error) {
	name, ok := statusNames[s]
	if !ok {
		return nil, fmt.Errorf("unhandled Status value %v in custom MarshalJSON() conversion", uint32(s))
	}
	return json.Marshal(name)
}

func (s *Status) UnmarshalJSON(b []byte) error {
	var name string
	if err := json.Unmarshal(b, &name); err != nil {
		return err
	}
	for k, v := range statusNames {
		if v == name {
			*s = k
			return nil
		}
	}
	return fmt.Errorf("unknown status %q", name)
}

// RunStatus is the state of one run.
type RunStatus struct {
	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime"`
	Status    Status    `json:"pipeStatus"`
	Error     string    `json:"error"`
}

func (r *RunStatus) IsFinished() bool {
	return r.Status != StatusStarting && r.Status != StatusRunning
}
