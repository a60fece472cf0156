package jsoc

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// DopplergramSeries is the HMI 45-second Dopplergram series.
const DopplergramSeries = "hmi.v_45s"

// RequestName turns a request string into a name usable in file names:
// everything up to the first _TAI, with '[' replaced by '_' and ':' by '.'.
//
//	hmi.v_45s[2011.02.13_00:00:00_TAI/1h]{Dopplergram} -> hmi.v_45s_2011.02.13_00.00.00
func RequestName(request string) string {
	name := request
	if i := strings.Index(request, "_TAI"); i >= 0 {
		name = request[:i]
	}
	r := strings.NewReplacer("[", "_", ":", ".", "/", "_", "]", "", "{", "", "}", "")
	return r.Replace(name)
}

// SignedValue renders a number with its sign spelled out, plus_4 or
// minus_14. With round set the value is rounded half to even first.
func SignedValue(value float64, round bool) string {
	if round {
		value = math.RoundToEven(value)
	}
	sign := "plus"
	if value < 0 {
		sign = "minus"
	}
	return fmt.Sprintf("%s_%s", sign, strconv.FormatFloat(math.Abs(value), 'f', -1, 64))
}

// DatacubeName builds the directory/file stem of one datacube from its
// request, origin (lon, lat in degrees) and drift velocity.
func DatacubeName(request string, lon, lat, velocity float64) string {
	return fmt.Sprintf("%s_lon_%s_lat_%s_vel_%s",
		RequestName(request),
		SignedValue(lon, true),
		SignedValue(lat, true),
		SignedValue(velocity, true),
	)
}

// OneDayQuery returns a Dopplergram query covering the UTC day of date.
func OneDayQuery(date time.Time) string {
	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	next := day.AddDate(0, 0, 1)
	return fmt.Sprintf("%s[%s_TAI-%s_TAI]{Dopplergram}",
		DopplergramSeries,
		day.Format(RecordTimeLayout),
		next.Format(RecordTimeLayout),
	)
}

// ParseQueryDate parses the YYYYMMDD dates used to generate one-day queries.
func ParseQueryDate(s string) (time.Time, error) {
	return time.Parse("20060102", strings.TrimSpace(s))
}
