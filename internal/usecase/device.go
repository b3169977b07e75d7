package usecase

import (
	"strings"

	"github.com/arklim/sso-broker/internal/core/domain"
)

const unknownDevice = "Unknown"

// ClassifyDevice derives a best-effort device summary from a raw user-agent
// string. Unparseable agents never fail; every field defaults to "Unknown".
func ClassifyDevice(userAgent *string) domain.DeviceSummary {
	summary := domain.DeviceSummary{
		DeviceType: unknownDevice,
		OS:         unknownDevice,
		Browser:    unknownDevice,
	}
	if userAgent == nil || strings.TrimSpace(*userAgent) == "" {
		return summary
	}

	agent := strings.ToLower(*userAgent)

	switch {
	case strings.Contains(agent, "ipad") || strings.Contains(agent, "tablet"):
		summary.DeviceType = "Tablet"
	case strings.Contains(agent, "mobile") || strings.Contains(agent, "iphone") || strings.Contains(agent, "android"):
		summary.DeviceType = "Mobile"
	default:
		summary.DeviceType = "Desktop"
	}

	switch {
	case strings.Contains(agent, "windows"):
		summary.OS = "Windows"
	case strings.Contains(agent, "iphone") || strings.Contains(agent, "ipad") || strings.Contains(agent, "ios"):
		summary.OS = "iOS"
	case strings.Contains(agent, "mac os") || strings.Contains(agent, "macintosh"):
		summary.OS = "macOS"
	case strings.Contains(agent, "android"):
		summary.OS = "Android"
	case strings.Contains(agent, "linux"):
		summary.OS = "Linux"
	}

	switch {
	case strings.Contains(agent, "edg"):
		summary.Browser = "Edge"
	case strings.Contains(agent, "opr") || strings.Contains(agent, "opera"):
		summary.Browser = "Opera"
	case strings.Contains(agent, "chrome"):
		summary.Browser = "Chrome"
	case strings.Contains(agent, "safari"):
		summary.Browser = "Safari"
	case strings.Contains(agent, "firefox"):
		summary.Browser = "Firefox"
	}

	return summary
}
