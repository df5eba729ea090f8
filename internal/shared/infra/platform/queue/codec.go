package queue

import (
	"encoding/json"
	"time"
)

func (o JobOptions) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireOptions{
		Attempts:         o.Attempts,
		Backoff:          wireBackoff{Type: o.Backoff.Type, Delay: o.Backoff.Delay.Milliseconds()},
		RemoveOnComplete: o.RemoveOnComplete,
		RemoveOnFail:     o.RemoveOnFail,
	})
}

func (o *JobOptions) UnmarshalJSON(data []byte) error {
	var w wireOptions
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	o.Attempts = w.Attempts
	o.Backoff = Backoff{Type: w.Backoff.Type, Delay: time.Duration(w.Backoff.Delay) * time.Millisecond}
	o.RemoveOnComplete = w.RemoveOnComplete
	o.RemoveOnFail = w.RemoveOnFail
	return nil
}

// EncodeJob serializa un job para almacenarlo en el broker.
func EncodeJob(j *Job) ([]byte, error) {
	if j == nil {
		return nil, ErrNilJob
	}
	return json.Marshal(j)
}

// DecodeJob es la operación inversa de EncodeJob.
func DecodeJob(data []byte) (*Job, error) {
	var j Job
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, err
	}
	return &j, nil
}
