package models

// TargetModels enumerates the supported boards by selector index.
var TargetModels = []string{
	"RPI pico/pico W",
	"RPI zero/zero W",
	"RPI 2 zero W",
	"RPI 1 Model B/B+",
	"RPI 2 Model B",
	"RPI 3 Model B/B+",
	"RPI 4 Model B",
	"RPI 5",
}

// DefaultTargetIndex selects the Raspberry Pi 4.
const DefaultTargetIndex = 6

// IsMicrocontroller reports whether a target index selects the Pico backend.
func IsMicrocontroller(index int) bool {
	return index == 0
}

// TargetName returns the model name for index, or "" when out of range.
func TargetName(index int) string {
	if index < 0 || index >= len(TargetModels) {
		return ""
	}
	return TargetModels[index]
}

// AppSettings are the per-user settings kept in app_settings.json.
type AppSettings struct {
	RPIModel      string `json:"rpi_model"`
	RPIModelIndex int    `json:"rpi_model_index"`
	RPIHost       string `json:"rpi_host"`
	RPIUser       string `json:"rpi_user"`
	RPIPassword   string `json:"rpi_password"`
	Language      string `json:"language"`
}

// DefaultAppSettings returns the settings used before the file exists.
func DefaultAppSettings() AppSettings {
	return AppSettings{
		RPIModel:      TargetModels[DefaultTargetIndex],
		RPIModelIndex: DefaultTargetIndex,
		RPIUser:       "pi",
		Language:      "en",
	}
}

// Normalize clamps the model index and keeps the model name consistent with it.
func (s *AppSettings) Normalize() {
	if s.RPIModelIndex < 0 || s.RPIModelIndex >= len(TargetModels) {
		s.RPIModelIndex = DefaultTargetIndex
	}
	s.RPIModel = TargetModels[s.RPIModelIndex]
	if s.Language == "" {
		s.Language = "en"
	}
}
