package helio

import "time"

// Header keys written by the assembler.
const (
	KeyFirstRecord = "T_REC_FI"
	KeyLastRecord  = "T_REC_LA"
	KeyRefLon      = "CRLN_REF"
	KeyRefLat      = "CRLT_REF"
	KeyScaleX      = "DAXIS1"
	KeyScaleY      = "DAXIS2"
	KeyTimeStep    = "DAXIS3"
	KeyBodyRadius  = "RSUN_MM"
)

// ObservationTimeLayout is how frame times appear in header values.
const ObservationTimeLayout = "2006-01-02T15:04:05.000"

// HeaderEntry is one key of the output metadata.
type HeaderEntry struct {
	Key     string
	Value   interface{}
	Comment string
}

// Header is an insertion-ordered set of metadata entries. Setting an
// existing key replaces its value in place.
type Header struct {
	entries []HeaderEntry
	index   map[string]int
}

// NewHeader returns an empty header.
func NewHeader() *Header {
	return &Header{index: make(map[string]int)}
}

func (h *Header) Set(key string, value interface{}, comment string) {
	if i, ok := h.index[key]; ok {
		h.entries[i] = HeaderEntry{Key: key, Value: value, Comment: comment}
		return
	}
	h.index[key] = len(h.entries)
	h.entries = append(h.entries, HeaderEntry{Key: key, Value: value, Comment: comment})
}

func (h *Header) Get(key string) (HeaderEntry, bool) {
	i, ok := h.index[key]
	if !ok {
		return HeaderEntry{}, false
	}
	return h.entries[i], true
}

// Entries returns a copy of the entries in insertion order.
func (h *Header) Entries() []HeaderEntry {
	out := make([]HeaderEntry, len(h.entries))
	copy(out, h.entries)
	return out
}

func (h *Header) Len() int { return len(h.entries) }

// FormatObservationTime renders t the way header time values are stored.
func FormatObservationTime(t time.Time) string {
	return t.UTC().Format(ObservationTimeLayout)
}

// NewCubeHeader builds the metadata of a cube assembled with p from frames
// observed at first and last.
func NewCubeHeader(p Params, first, last time.Time) *Header {
	h := NewHeader()
	h.Set(KeyFirstRecord, FormatObservationTime(first), "Observation time of the first image")
	h.Set(KeyLastRecord, FormatObservationTime(last), "Observation time of the last image")
	h.Set(KeyRefLon, p.Origin.Longitude, "Carrington lon of the reference point")
	h.Set(KeyRefLat, p.Origin.Latitude, "Carrington lat of the reference point")
	sx, sy := p.Scale.Radians()
	h.Set(KeyScaleX, sx, "Scaling factor - x axis [rad/px]")
	h.Set(KeyScaleY, sy, "Scaling factor - y axis [rad/px]")
	h.Set(KeyTimeStep, p.TimeStep, "Scaling factor - t axis (time step) [seconds]")
	h.Set(KeyBodyRadius, p.Origin.BodyRadius, "Sun's radius in megameters")
	return h
}
