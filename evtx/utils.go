package evtx

import (
	"encoding/json"
	"fmt"
	"time"
)

func ToJSON(data interface{}) []byte {
	b, err := json.Marshal(data)
	if err != nil {
		panic(err)
	}
	return b
}

// UTCTime marshals to RFC3339 with nanoseconds in UTC.
type UTCTime time.Time

func (u UTCTime) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf("\"%s\"", time.Time(u).UTC().Format(time.RFC3339Nano))), nil
}

func (u UTCTime) String() string {
	return time.Time(u).UTC().Format(time.RFC3339Nano)
}
