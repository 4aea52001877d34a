package settings

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"go.uber.org/zap"

	"caresync-backend/internal/geofence"
)

type Service struct {
	store *Store
	now   func() time.Time
	log   *zap.Logger
}

func NewService(conn *sql.DB, log *zap.Logger) *Service {
	return &Service{store: NewStore(conn), now: time.Now, log: log.Named("settings")}
}

// GET /settings/:name
func (s *Service) Get(ctx context.Context, name string) (SettingResponse, error) {
	name, err := validName(name)
	if err != nil {
		return SettingResponse{}, err
	}
	st, err := s.store.Get(ctx, name)
	if err != nil {
		return SettingResponse{}, err
	}
	return st.toDTO(), nil
}

// PUT /settings/:name
func (s *Service) Update(ctx context.Context, name, value string) (SettingResponse, error) {
	name, err := validName(name)
	if err != nil {
		return SettingResponse{}, err
	}
	if name == GeoPerimeterName {
		p, err := parsePerimeter(value)
		if err != nil {
			return SettingResponse{}, err
		}
		// 保存形式は {"lat","lng","radius"} に揃える
		buf, err := json.Marshal(p)
		if err != nil {
			return SettingResponse{}, err
		}
		value = string(buf)
	}

	st, err := s.store.Upsert(ctx, name, value, s.now().UTC())
	if err != nil {
		return SettingResponse{}, err
	}
	s.log.Info("setting updated", zap.String("name", name))
	return st.toDTO(), nil
}

// GeoPerimeter: 未設定なら ok=false
func (s *Service) GeoPerimeter(ctx context.Context) (geofence.Perimeter, bool, error) {
	st, err := s.store.Get(ctx, GeoPerimeterName)
	if err != nil {
		if api, ok := err.(*APIError); ok && api.Code == CodeNotFound {
			return geofence.Perimeter{}, false, nil
		}
		return geofence.Perimeter{}, false, err
	}
	p, err := parsePerimeter(st.Value)
	if err != nil {
		return geofence.Perimeter{}, false, err
	}
	return p, true, nil
}

// lat/lng と latitude/longitude の両方を受け付ける
func parsePerimeter(value string) (geofence.Perimeter, error) {
	var raw struct {
		Lat       *float64 `json:"lat"`
		Lng       *float64 `json:"lng"`
		Latitude  *float64 `json:"latitude"`
		Longitude *float64 `json:"longitude"`
		Radius    *float64 `json:"radius"`
	}
	if err := json.Unmarshal([]byte(value), &raw); err != nil {
		return geofence.Perimeter{}, ErrInvalid("geo_perimeter must be JSON {lat, lng, radius}")
	}
	lat, lng := raw.Lat, raw.Lng
	if lat == nil {
		lat = raw.Latitude
	}
	if lng == nil {
		lng = raw.Longitude
	}
	if lat == nil || lng == nil || raw.Radius == nil {
		return geofence.Perimeter{}, ErrInvalid("geo_perimeter requires lat, lng and radius")
	}
	p := geofence.Perimeter{Lat: *lat, Lng: *lng, Radius: *raw.Radius}
	if err := p.Validate(); err != nil {
		return geofence.Perimeter{}, ErrInvalid("geo_perimeter: lat must be in [-90,90], lng in [-180,180], radius > 0")
	}
	return p, nil
}

func validName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrInvalid("name is required")
	}
	if len(name) > maxNameLength {
		return "", ErrInvalid("name is too long")
	}
	return name, nil
}
