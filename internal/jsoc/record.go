package jsoc

import (
	"strings"
	"time"
)

// RecordTimeLayout is the layout of the bracketed time segment once the
// _TAI suffix is removed, e.g. 2011.02.13_00:00:45.
const RecordTimeLayout = "2006.01.02_15:04:05"

// ReportTimeLayout is used for the rec-times report files.
const ReportTimeLayout = "2006-01-02 15:04:05"

// ParseTimestamp extracts the observation time from a record name such as
// hmi.v_45s[2011.02.13_00:00:45_TAI][2]{Dopplergram}. The TAI label is
// kept as is: times are compared with each other, never with UTC.
func ParseTimestamp(record string) (time.Time, error) {
	left := strings.Index(record, "[")
	if left < 0 {
		return time.Time{}, &MalformedRecordError{Record: record, Reason: "no '[' in record"}
	}
	right := strings.Index(record[left:], "]")
	if right < 0 {
		return time.Time{}, &MalformedRecordError{Record: record, Reason: "no ']' after '['"}
	}

	segment := record[left+1 : left+right]
	segment = strings.ReplaceAll(segment, "_TAI", "")

	ts, err := time.Parse(RecordTimeLayout, segment)
	if err != nil {
		return time.Time{}, &MalformedRecordError{Record: record, Reason: err.Error()}
	}
	return ts, nil
}

// ParseTimestamps parses every record name, failing on the first malformed one.
func ParseTimestamps(records []string) ([]time.Time, error) {
	out := make([]time.Time, 0, len(records))
	for _, rec := range records {
		ts, err := ParseTimestamp(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, ts)
	}
	return out, nil
}

// FindGaps lists the epochs missing from an ordered series sampled every
// step. For each adjacent pair further apart than step, every t0+k*step
// strictly before the later time is reported.
func FindGaps(timestamps []time.Time, step time.Duration) []time.Time {
	if step <= 0 {
		return nil
	}

	var missing []time.Time
	for i := 0; i+1 < len(timestamps); i++ {
		t1, t2 := timestamps[i], timestamps[i+1]
		if t2.Sub(t1) <= step {
			continue
		}
		for t := t1.Add(step); t.Before(t2); t = t.Add(step) {
			missing = append(missing, t)
		}
	}
	return missing
}

// FormatTimes renders timestamps in the report layout.
func FormatTimes(timestamps []time.Time) []string {
	out := make([]string, len(timestamps))
	for i, ts := range timestamps {
		out[i] = ts.Format(ReportTimeLayout)
	}
	return out
}
