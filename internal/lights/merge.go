package lights

// resolveColor computes the full commanded color from a sparse change and a
// freshly fetched device state. Channels absent from the change keep their
// current value. When the result would leave the bulb at zero brightness
// after a hue, saturation or kelvin change the caller did not pair with a
// brightness, brightness is raised to full so the change is visible.
func resolveColor(change PartialControl, current HSBK) HSBK {
	next := current
	if change.Hue != nil {
		next.Hue = *change.Hue
	}
	if change.Saturation != nil {
		next.Saturation = *change.Saturation
	}
	if change.Brightness != nil {
		next.Brightness = *change.Brightness
	}
	if change.Kelvin != nil {
		next.Kelvin = *change.Kelvin
	}

	colorRequested := change.Hue != nil || change.Saturation != nil || change.Kelvin != nil
	if next.Brightness == 0 && change.Brightness == nil && colorRequested {
		next.Brightness = MaxBrightness
	}
	return next.normalize()
}

func (c HSBK) normalize() HSBK {
	return HSBK{
		Hue:        clamp(c.Hue, 0, MaxHue),
		Saturation: clamp(c.Saturation, 0, MaxSaturation),
		Brightness: clamp(c.Brightness, 0, MaxBrightness),
		Kelvin:     clamp(c.Kelvin, MinKelvin, MaxKelvin),
	}
}

// deviceKelvin is the kelvin to send back to a bulb. A change that leaves
// kelvin alone keeps the value the bulb reported, even outside 2500-9000.
func deviceKelvin(change PartialControl, next HSBK, reported int) int {
	if change.Kelvin != nil || reported <= 0 {
		return next.Kelvin
	}
	return reported
}
