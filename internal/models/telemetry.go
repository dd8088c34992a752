package models

// TelemetryMarker prefixes the report line printed by compiled programs.
const TelemetryMarker = "__REPORT__"

// Telemetry is the final state report of a program run.
type Telemetry struct {
	Variables map[string]VariableReport `json:"variables"`
	Devices   map[string]DeviceReport   `json:"devices"`
}

// VariableReport carries the last value of a variable.
type VariableReport struct {
	Value any `json:"value"`
}

// DeviceReport carries the last pin state of a device.
type DeviceReport struct {
	State int `json:"state"`
}
