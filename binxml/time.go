package binxml

import (
	"fmt"
	"time"
)

// FileTime is a count of 100 nanosecond intervals since January 1, 1601 UTC.
type FileTime uint64

// Time converts the file time to a UTC time.
func (f FileTime) Time() time.Time {
	secs := int64(f/10000000) - 11644473600
	nsecs := int64(f%10000000) * 100
	return time.Unix(secs, nsecs).UTC()
}

// String keeps the seven fractional digits of the file time precision.
func (f FileTime) String() string {
	t := f.Time()
	return fmt.Sprintf("%s.%07dZ", t.Format("2006-01-02T15:04:05"), uint64(f%10000000))
}
