package lights

// friendlyError turns a transport failure into the message stored in
// ConnectionState.LastError.
func friendlyError(t ErrorType, err error) string {
	switch t {
	case ErrorTypeNoLights:
		return "No LIFX lights found on your network"
	case ErrorTypeTimeout:
		return "Network timeout - check if lights are powered on"
	case ErrorTypeConnectionRefused:
		return "Connection refused - check your network connection"
	case ErrorTypeNetwork:
		return "Network error - check your internet connection"
	case ErrorTypeAuth:
		return "HTTP API token was rejected"
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

// TroubleshootingSteps suggests what to check given the current state.
func (c *Coordinator) TroubleshootingSteps() []string {
	s := c.GetConnectionState()
	var steps []string

	if s.ErrorType == ErrorTypeNoLights || len(s.ActiveLights) == 0 {
		steps = append(steps,
			"Make sure your LIFX lights are powered on",
			"Check that your computer and lights are on the same network",
			"Try resetting your LIFX lights by unplugging and replugging them",
		)
	}

	if s.ErrorType == ErrorTypeTimeout || s.ErrorType == ErrorTypeConnectionRefused {
		steps = append(steps,
			"Check your network connection",
			"Try disabling any VPN or firewall temporarily",
			"Restart your router if needed",
		)
	}

	if s.ErrorType == ErrorTypeAuth {
		steps = append(steps, "Generate a new HTTP API token at https://cloud.lifx.com/settings")
	} else if !s.HTTPAvailable {
		steps = append(steps, "Add an HTTP API token from https://cloud.lifx.com/settings as a fallback")
	}

	return append(steps, "Try increasing the LAN discovery timeout in the config file")
}

// ErrorDescription returns LastError with a hint for the error type, or ""
// when there is no error.
func (c *Coordinator) ErrorDescription() string {
	s := c.GetConnectionState()
	if s.LastError == "" {
		return ""
	}

	desc := s.LastError
	switch s.ErrorType {
	case ErrorTypeNoLights:
		desc += "\n\nTip: ensure lights are on the same WiFi network as this computer"
	case ErrorTypeTimeout:
		desc += "\n\nTip: check that your lights are powered on and not in a power-saving mode"
	case ErrorTypeConnectionRefused:
		desc += "\n\nTip: try disabling your VPN or checking firewall settings"
	}
	return desc
}
