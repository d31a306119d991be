package domain

const (
	MinCheckInterval     = 1
	MaxCheckInterval     = 7200
	DefaultCheckInterval = 5
)

type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

// UserSettings is the per-user settings record. The device related fields
// are what the connectivity monitor and the control service read; the rest
// are preferences exposed through the attribute protocol.
type UserSettings struct {
	UserID        int64  `json:"user_id"`
	DeviceAddress string `json:"device_address"`
	CheckInterval int    `json:"server_check_interval"`
	TestMode      bool   `json:"test_mode"`
	SilenceMode   bool   `json:"silence_mode"`

	DisplayName             string `json:"display_name"`
	Email                   string `json:"email"`
	PreferredLanguage       string `json:"preferred_language"`
	Timezone                string `json:"timezone"`
	Theme                   Theme  `json:"theme"`
	FontSize                string `json:"font_size"`
	PrimaryColor            string `json:"primary_color"`
	EmailNotifications      bool   `json:"email_notifications"`
	PushNotifications       bool   `json:"push_notifications"`
	TwoFactorAuthentication bool   `json:"two_factor_authentication"`
	ScheduledLights         bool   `json:"scheduled_lights"`
}

// DefaultUserSettings mirrors the defaults a freshly registered user gets.
func DefaultUserSettings(userID int64) UserSettings {
	return UserSettings{
		UserID:             userID,
		CheckInterval:      DefaultCheckInterval,
		TestMode:           true,
		PreferredLanguage:  "en",
		Timezone:           "UTC",
		Theme:              ThemeLight,
		FontSize:           "medium",
		PrimaryColor:       "#2980b9",
		EmailNotifications: true,
		PushNotifications:  true,
	}
}

// Normalize clamps values that have a bounded domain.
func (s *UserSettings) Normalize() {
	s.CheckInterval = ClampCheckInterval(s.CheckInterval)
}

func (s UserSettings) DeviceConfig() UserDeviceConfig {
	return UserDeviceConfig{
		UserID:        s.UserID,
		Address:       s.DeviceAddress,
		CheckInterval: ClampCheckInterval(s.CheckInterval),
		TestMode:      s.TestMode,
		SilenceMode:   s.SilenceMode,
		Push:          s.PushNotifications,
	}
}

// UserDeviceConfig is the device-facing slice of UserSettings.
type UserDeviceConfig struct {
	UserID        int64
	Address       string
	CheckInterval int
	TestMode      bool
	SilenceMode   bool
	Push          bool
}

func (c UserDeviceConfig) Configured() bool {
	return c.Address != "" && c.Address != "none"
}

func ClampCheckInterval(seconds int) int {
	switch {
	case seconds < MinCheckInterval:
		return MinCheckInterval
	case seconds > MaxCheckInterval:
		return MaxCheckInterval
	default:
		return seconds
	}
}
