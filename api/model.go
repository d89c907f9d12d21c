package api

import "github.com/pkg/errors"

// StatusColor drives the indicator next to a vehicle's status text.
type StatusColor string

const (
	StatusGreen StatusColor = "green"
	StatusRed   StatusColor = "red"
)

func (c StatusColor) Valid() bool {
	return c == StatusGreen || c == StatusRed
}

// ImageInfo describes an image held by the backend image store. URL is
// derived from Name and the client's base address.
type ImageInfo struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// VehicleSnapshot is a single observation of a vehicle at the gate together
// with the identity the backend resolved for it.
type VehicleSnapshot struct {
	ImageName   string      `json:"imageName"`
	StatusText  string      `json:"statusText"`
	StatusColor StatusColor `json:"statusColor"`
	Plate       string      `json:"plate"`
	StudentID   string      `json:"studentId"`
	Email       string      `json:"email"`
	Name        string      `json:"name"`
}

// Validate rejects snapshots whose status color is outside the closed set.
func (v VehicleSnapshot) Validate() error {
	if !v.StatusColor.Valid() {
		return errors.Errorf("invalid status color %q", v.StatusColor)
	}
	return nil
}

// PreviousFallback is returned by GetPreviousVehicle when the lookup fails.
func PreviousFallback() VehicleSnapshot {
	return VehicleSnapshot{
		ImageName:   "mock_previous_vehicle.jpg",
		StatusText:  "No previous vehicle",
		StatusColor: StatusGreen,
		Plate:       "N/A",
		StudentID:   "N/A",
		Email:       "N/A",
		Name:        "No Data",
	}
}

// CurrentFallback is returned by GetCurrentVehicle when the lookup fails.
func CurrentFallback() VehicleSnapshot {
	return VehicleSnapshot{
		ImageName:   "mock_current_vehicle.jpg",
		StatusText:  "No current vehicle",
		StatusColor: StatusRed,
		Plate:       "N/A",
		StudentID:   "N/A",
		Email:       "N/A",
		Name:        "No Data",
	}
}

// SerialOptions configures a serial connect request. Zero values select
// DefaultSerialPort and DefaultBaudRate.
type SerialOptions struct {
	Port     string
	BaudRate int
}

type serialConnectRequest struct {
	Port     string `json:"port"`
	BaudRate int    `json:"baudrate"`
}

func (o SerialOptions) request() serialConnectRequest {
	r := serialConnectRequest{Port: o.Port, BaudRate: o.BaudRate}
	if r.Port == "" {
		r.Port = DefaultSerialPort
	}
	if r.BaudRate == 0 {
		r.BaudRate = DefaultBaudRate
	}
	return r
}
