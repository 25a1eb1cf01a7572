package models

import "github.com/paulmach/orb"

// Notice is a non-fatal, per-record annotation.
type Notice struct {
	Error string `json:"error" msgpack:"error" bson:"error"`
	Info  string `json:"info" msgpack:"info" bson:"info"`
}

// Record is one normalized item: source fields plus geometry and notices.
// Notices are append-only. Geometry is nil when no point could be derived.
type Record struct {
	Fields   *Fields
	Geometry *orb.Point
	Notices  []Notice
}

// NewRecord wraps fields in a record with an empty notice list.
func NewRecord(fields *Fields) *Record {
	if fields == nil {
		fields = NewFields()
	}
	return &Record{Fields: fields, Notices: []Notice{}}
}

// AddNotice appends n unless an identical notice is already attached.
func (r *Record) AddNotice(n Notice) bool {
	for _, existing := range r.Notices {
		if existing == n {
			return false
		}
	}
	r.Notices = append(r.Notices, n)
	return true
}

// HasGeometry reports whether a point was derived.
func (r *Record) HasGeometry() bool { return r.Geometry != nil }

// Clone copies the record so later stages never modify their input.
func (r *Record) Clone() *Record {
	out := &Record{
		Fields:  r.Fields.Clone(),
		Notices: append([]Notice{}, r.Notices...),
	}
	if r.Geometry != nil {
		p := *r.Geometry
		out.Geometry = &p
	}
	return out
}
