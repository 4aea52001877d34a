package settings

import "time"

const (
	GeoPerimeterName = "geo_perimeter"
	maxNameLength    = 64
)

type UpdateSettingRequest struct {
	Value string `json:"value" binding:"required"`
}

type SettingResponse struct {
	Name      string    `json:"name"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}
