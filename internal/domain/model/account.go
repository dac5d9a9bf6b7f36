package model

// Profile links a competitor id to the areas used by sub-national rankings.
type Profile struct {
	PersonID     string `json:"wca_id"`
	Region       string `json:"region"`
	CityProvince string `json:"city_province"`
}

// Area returns the profile's area for level. National has no area.
func (p Profile) Area(level AreaLevel) string {
	switch level {
	case Regional:
		return p.Region
	case Local:
		return p.CityProvince
	default:
		return ""
	}
}
