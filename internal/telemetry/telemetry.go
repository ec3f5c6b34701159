// Package telemetry models raw per-channel run streams and their aligned,
// per-second form. Ingestion validates and aligns here; all downstream
// analysis consumes the aligned Stream and never touches provider payloads.
package telemetry

import "fmt"

// Channel identifies one stream series from the ingestion provider.
type Channel string

const (
	ChannelTime      Channel = "time"
	ChannelDistance  Channel = "distance"
	ChannelVelocity  Channel = "velocity_smooth"
	ChannelHeartrate Channel = "heartrate"
	ChannelCadence   Channel = "cadence"
	ChannelGrade     Channel = "grade_smooth"
	ChannelAltitude  Channel = "altitude"
	ChannelLatLng    Channel = "latlng"
	ChannelMoving    Channel = "moving"
)

// Catalog lists every channel the pipeline understands, in wire order.
// Completeness is always reported against this fixed set.
var Catalog = []Channel{
	ChannelTime,
	ChannelDistance,
	ChannelVelocity,
	ChannelHeartrate,
	ChannelCadence,
	ChannelGrade,
	ChannelAltitude,
	ChannelLatLng,
	ChannelMoving,
}

// ChannelAvailability records which catalog channels a stream delivered.
type ChannelAvailability struct {
	Present []Channel `json:"present"`
	Missing []Channel `json:"missing"`
}

// AvailabilityFor rebuilds availability from a stored present-channel list.
// Order and missing set are normalized against the catalog regardless of
// input order.
func AvailabilityFor(present []Channel) ChannelAvailability {
	set := make(map[Channel]bool, len(present))
	for _, c := range present {
		set[c] = true
	}
	avail := ChannelAvailability{Present: []Channel{}, Missing: []Channel{}}
	for _, c := range Catalog {
		if set[c] {
			avail.Present = append(avail.Present, c)
		} else {
			avail.Missing = append(avail.Missing, c)
		}
	}
	return avail
}

// Has reports whether the channel was delivered.
func (a ChannelAvailability) Has(c Channel) bool {
	for _, p := range a.Present {
		if p == c {
			return true
		}
	}
	return false
}

// Completeness renders availability as "N/9" against the fixed catalog.
func (a ChannelAvailability) Completeness() string {
	return fmt.Sprintf("%d/%d", len(a.Present), len(Catalog))
}
