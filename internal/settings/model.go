package settings

import "time"

type Setting struct {
	Name      string
	Value     string
	UpdatedAt time.Time
}

func (s Setting) toDTO() SettingResponse {
	return SettingResponse{Name: s.Name, Value: s.Value, UpdatedAt: s.UpdatedAt.UTC()}
}
