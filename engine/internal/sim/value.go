package sim

import (
	"fmt"
	"strconv"
	"strings"
)

// namedColors maps CSS color keywords to the serialization engines report
// from getComputedStyle.
var namedColors = map[string]string{
	"black":       "rgb(0, 0, 0)",
	"white":       "rgb(255, 255, 255)",
	"red":         "rgb(255, 0, 0)",
	"green":       "rgb(0, 128, 0)",
	"blue":        "rgb(0, 0, 255)",
	"yellow":      "rgb(255, 255, 0)",
	"orange":      "rgb(255, 165, 0)",
	"purple":      "rgb(128, 0, 128)",
	"gray":        "rgb(128, 128, 128)",
	"grey":        "rgb(128, 128, 128)",
	"silver":      "rgb(192, 192, 192)",
	"maroon":      "rgb(128, 0, 0)",
	"navy":        "rgb(0, 0, 128)",
	"teal":        "rgb(0, 128, 128)",
	"olive":       "rgb(128, 128, 0)",
	"lime":        "rgb(0, 255, 0)",
	"aqua":        "rgb(0, 255, 255)",
	"cyan":        "rgb(0, 255, 255)",
	"fuchsia":     "rgb(255, 0, 255)",
	"magenta":     "rgb(255, 0, 255)",
	"transparent": "rgba(0, 0, 0, 0)",
}

// colorProperties lists the properties whose values get color
// normalization.
var colorProperties = map[string]struct{}{
	"color":               {},
	"background-color":    {},
	"border-color":        {},
	"border-top-color":    {},
	"border-right-color":  {},
	"border-bottom-color": {},
	"border-left-color":   {},
	"outline-color":       {},
	"caret-color":         {},
}

// normalizeValue rewrites an authored value the way an engine would report
// it. Only color serialization is normalized; lengths and keywords pass
// through untouched.
func normalizeValue(prop, value string) string {
	if _, ok := colorProperties[prop]; !ok {
		return value
	}
	v := strings.ToLower(strings.TrimSpace(value))
	if rgb, ok := namedColors[v]; ok {
		return rgb
	}
	if rgb, ok := hexToRGB(v); ok {
		return rgb
	}
	return value
}

// hexToRGB converts #rgb and #rrggbb notations.
func hexToRGB(v string) (string, bool) {
	if !strings.HasPrefix(v, "#") {
		return "", false
	}
	hex := v[1:]
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	if len(hex) != 6 {
		return "", false
	}
	n, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return "", false
	}
	return fmt.Sprintf("rgb(%d, %d, %d)", (n>>16)&0xff, (n>>8)&0xff, n&0xff), true
}
