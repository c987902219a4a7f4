package engine

// ApplicationConfig holds what the settings file does not: where the window
// starts and which file to watch for settings changes.
type ApplicationConfig struct {
	// Window starting position x axis, if applicable.
	StartPosX uint32
	// Window starting position y axis, if applicable.
	StartPosY uint32
	// Settings file reloaded while running. Empty disables reloading.
	SettingsPath string
}
