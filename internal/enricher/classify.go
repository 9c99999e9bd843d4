package enricher

import "strings"

// Device classes.
const (
	DeviceMobile  = "mobile"
	DeviceTablet  = "tablet"
	DeviceDesktop = "desktop"
)

// Other is reported when no browser or OS rule matches.
const Other = "Other"

type rule struct {
	needles []string
	label   string
}

// Rules are evaluated in order and the first match wins. The browser order
// reports Chromium-based Edge as Chrome because its UA also contains
// "Chrome"; keep it that way, dashboards depend on the historic split.
var (
	deviceRules = []rule{
		{needles: []string{"Mobile", "Android", "iPhone", "iPad"}, label: DeviceMobile},
		{needles: []string{"Tablet"}, label: DeviceTablet},
	}

	browserRules = []rule{
		{needles: []string{"Chrome"}, label: "Chrome"},
		{needles: []string{"Firefox"}, label: "Firefox"},
		{needles: []string{"Safari"}, label: "Safari"},
		{needles: []string{"Edge"}, label: "Edge"},
	}

	osRules = []rule{
		{needles: []string{"Windows"}, label: "Windows"},
		{needles: []string{"Mac OS"}, label: "Mac OS"},
		{needles: []string{"Linux"}, label: "Linux"},
		{needles: []string{"Android"}, label: "Android"},
		{needles: []string{"iOS"}, label: "iOS"},
	}
)

func match(rules []rule, ua, fallback string) string {
	for _, r := range rules {
		for _, needle := range r.needles {
			if strings.Contains(ua, needle) {
				return r.label
			}
		}
	}
	return fallback
}

// ClassifyDevice returns mobile, tablet or desktop. Empty input yields "".
func ClassifyDevice(ua string) string {
	if ua == "" {
		return ""
	}
	return match(deviceRules, ua, DeviceDesktop)
}

// ClassifyBrowser returns the first matching browser family, or Other.
func ClassifyBrowser(ua string) string {
	if ua == "" {
		return ""
	}
	return match(browserRules, ua, Other)
}

// ClassifyOS returns the first matching operating system, or Other.
func ClassifyOS(ua string) string {
	if ua == "" {
		return ""
	}
	return match(osRules, ua, Other)
}
