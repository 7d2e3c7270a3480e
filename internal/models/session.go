package models

import "time"

// Session is one configurator workspace: a plate configuration owned by a
// single browser, identified by an opaque ID.
type Session struct {
	ID            string        `json:"id"`
	Configuration Configuration `json:"configuration"`
	Revision      int           `json:"revision"`
	CreatedAt     time.Time     `json:"createdAt"`
	UpdatedAt     time.Time     `json:"updatedAt"`
}

// Clone returns a copy of the session with its own plate slice.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	out.Configuration = s.Configuration.Clone()
	return &out
}
