package api

import (
	"time"

	"github.com/zsprackett/chargewatch/internal/events"
)

type User struct {
	ID       events.Identifier `json:"id"`
	Email    string            `json:"email"`
	FullName string            `json:"full_name"`
	IsAdmin  bool              `json:"is_admin"`
}

type SignInResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type,omitempty"`
	User        User   `json:"user"`
}

type Statistics struct {
	TotalStations     int `json:"total_stations"`
	TotalChargePoints int `json:"total_charge_points"`
	TotalUsers        int `json:"total_users"`
	ActiveSessions    int `json:"active_sessions"`
}

type StationStatus struct {
	StationName string `json:"station_name"`
	Available   int    `json:"available"`
	Charging    int    `json:"charging"`
	Unavailable int    `json:"unavailable"`
}

type Dashboard struct {
	Statistics    Statistics      `json:"statistics"`
	StationStatus []StationStatus `json:"station_status"`
}

type Session struct {
	ID                events.Identifier `json:"id"`
	UserID            events.Identifier `json:"user_id"`
	ChargePointID     events.Identifier `json:"charge_point_id"`
	StartTime         string            `json:"start_time"`
	EndTime           string            `json:"end_time,omitempty"`
	EnergyConsumedKWh float64           `json:"energy_consumed_kwh"`
	CurrentPowerKW    float64           `json:"current_power_kw"`
	IsActive          bool              `json:"is_active"`
}

// Started returns the parsed start time, or the zero time.
func (s Session) Started() time.Time {
	return events.ParseTimestamp(s.StartTime, time.Time{})
}

type startRequest struct {
	ChargePointID events.Identifier `json:"charge_point_id"`
}

type stopRequest struct {
	SessionID events.Identifier `json:"session_id"`
}

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
