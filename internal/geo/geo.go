package geo

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"strconv"

	"Resilix/internal/models"
	apperrors "Resilix/pkg/errors"
)

const (
	MaxLatitude  = 90.0
	MaxLongitude = 180.0
)

// LocationInput 原始坐标，保留 JSON 原文以区分缺失与非数字
type LocationInput struct {
	Longitude json.RawMessage `json:"longitude"`
	Latitude  json.RawMessage `json:"latitude"`
}

func NewLocationInput(longitude, latitude float64) *LocationInput {
	return &LocationInput{
		Longitude: json.RawMessage(strconv.FormatFloat(longitude, 'f', -1, 64)),
		Latitude:  json.RawMessage(strconv.FormatFloat(latitude, 'f', -1, 64)),
	}
}

// Validate 纯函数：校验坐标并返回未持久化的 Location
func Validate(raw *LocationInput) (*models.Location, error) {
	if raw == nil {
		return nil, nil
	}
	fields := map[string][]string{}
	lon, ok := parseCoordinate(raw.Longitude, MaxLongitude, "longitude", fields)
	lat, ok2 := parseCoordinate(raw.Latitude, MaxLatitude, "latitude", fields)
	if !ok || !ok2 {
		return nil, apperrors.Rejected(map[string][]string{"location": flatten(fields)})
	}
	return &models.Location{Longitude: lon, Latitude: lat}, nil
}

// Resolve 校验坐标；行记录由告警事务一并写入
func Resolve(_ context.Context, raw *LocationInput) (*models.Location, error) {
	return Validate(raw)
}

func parseCoordinate(raw json.RawMessage, limit float64, name string, fields map[string][]string) (float64, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		fields[name] = append(fields[name], "This field is required.")
		return 0, false
	}
	var v float64
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			fields[name] = append(fields[name], "A valid number is required.")
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			fields[name] = append(fields[name], "A valid number is required.")
			return 0, false
		}
		v = f
	} else if err := json.Unmarshal(raw, &v); err != nil {
		fields[name] = append(fields[name], "A valid number is required.")
		return 0, false
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		fields[name] = append(fields[name], "A valid number is required.")
		return 0, false
	}
	if math.Abs(v) > limit {
		fields[name] = append(fields[name], "Ensure this value is between -"+strconv.FormatFloat(limit, 'f', -1, 64)+" and "+strconv.FormatFloat(limit, 'f', -1, 64)+".")
		return 0, false
	}
	return v, true
}

func flatten(fields map[string][]string) []string {
	out := make([]string, 0, 2)
	for _, k := range []string{"longitude", "latitude"} {
		for _, msg := range fields[k] {
			out = append(out, k+": "+msg)
		}
	}
	return out
}
