package attendance

import (
	"time"

	"beaconattend/internal/geo"
)

// BeaconType selects which stage of the record a capture writes.
type BeaconType string

const (
	BeaconEntry      BeaconType = "ENTRY"
	BeaconCompletion BeaconType = "COMPLETION"
	BeaconEvent      BeaconType = "EVENT"
	BeaconCert       BeaconType = "CERT"
)

// Valid reports whether t is one of the four known beacon types.
func (t BeaconType) Valid() bool {
	switch t {
	case BeaconEntry, BeaconCompletion, BeaconEvent, BeaconCert:
		return true
	}
	return false
}

// Proximal reports whether captures of this type must be taken in the classroom.
// EVENT and CERT are self-reported off-site activity.
func (t BeaconType) Proximal() bool {
	return t == BeaconEntry || t == BeaconCompletion
}

// Status is the attendance state of one student for one class session.
type Status string

const (
	StatusAbsent           Status = "ABSENT"
	StatusPartial          Status = "PARTIAL"
	StatusPresent          Status = "PRESENT"
	StatusEventPendingCert Status = "EVENT_PENDING_CERT"
	StatusEventVerified    Status = "EVENT_VERIFIED"
)

// Next returns the status a successful capture of type t produces.
func (t BeaconType) Next() Status {
	switch t {
	case BeaconEntry:
		return StatusPartial
	case BeaconCompletion:
		return StatusPresent
	case BeaconEvent:
		return StatusEventPendingCert
	case BeaconCert:
		return StatusEventVerified
	}
	return StatusAbsent
}

// Beacon is the live signal a mentor or teacher activates for a class session.
type Beacon struct {
	Active   bool            `json:"active"`
	Type     BeaconType      `json:"type"`
	Location *geo.Coordinate `json:"location,omitempty"`
}

// Stale reports whether the beacon coordinate is older than maxAge.
func (b Beacon) Stale(now time.Time, maxAge time.Duration) bool {
	if b.Location == nil {
		return true
	}
	return b.Location.Age(now) > maxAge
}

// Student carries the identity fields copied into a newly synthesized record.
type Student struct {
	ID     string `json:"id"`
	RollNo string `json:"rollNo"`
	Name   string `json:"name"`
}

// Record is the attendance of one student for one class session. Captures
// patch it in place; fields not touched by a stage are preserved.
type Record struct {
	ClassID          string    `json:"classId"`
	StudentID        string    `json:"studentId"`
	StudentRollNo    string    `json:"studentRollNo,omitempty"`
	StudentName      string    `json:"studentName,omitempty"`
	Status           Status    `json:"status"`
	EntryPhoto       string    `json:"entryPhoto,omitempty"`
	EntryTime        string    `json:"entryTime,omitempty"`
	CompletionPhoto  string    `json:"completionPhoto,omitempty"`
	CompletionTime   string    `json:"completionTime,omitempty"`
	EventPhoto       string    `json:"eventPhoto,omitempty"`
	EventComment     string    `json:"eventComment,omitempty"`
	EventTime        string    `json:"eventTime,omitempty"`
	CertificatePhoto string    `json:"certificatePhoto,omitempty"`
	CertificateTime  string    `json:"certificateTime,omitempty"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// apply returns a copy of r advanced by a capture of type t.
func (r Record) apply(t BeaconType, photo, comment, clock string, at time.Time) Record {
	r.Status = t.Next()
	r.UpdatedAt = at
	switch t {
	case BeaconEntry:
		r.EntryPhoto, r.EntryTime = photo, clock
	case BeaconCompletion:
		r.CompletionPhoto, r.CompletionTime = photo, clock
	case BeaconEvent:
		r.EventPhoto, r.EventComment, r.EventTime = photo, comment, clock
	case BeaconCert:
		r.CertificatePhoto, r.CertificateTime = photo, clock
	}
	return r
}
