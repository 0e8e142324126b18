package domain

// Station is a logistics location that owns inventory
type Station struct {
	ID     int64  `bson:"_id" json:"id"`
	Code   string `bson:"code" json:"code"`
	Name   string `bson:"name" json:"name"`
	Parent string `bson:"parent,omitempty" json:"parent,omitempty"`
	Schema string `bson:"schema" json:"schema"`
	Tenant string `bson:"tenant,omitempty" json:"tenant,omitempty"`
}

// Channel returns the notification channel for the station
func (s *Station) Channel() string {
	return "station/" + s.Code
}
