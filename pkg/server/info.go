package server

import "encoding/base64"

// ServerInfo represents server information
type ServerInfo struct {
	Version      string          `json:"version"`
	NoiseNKKey   string          `json:"noise_nk_public_key,omitempty"`
	Capabilities []string        `json:"capabilities"`
	Monitoring   *MonitoringInfo `json:"monitoring,omitempty"`
}

// GetServerInfo returns server information
func GetServerInfo(version string, noiseNKKey []byte, monitoring *MonitoringTracker) *ServerInfo {
	info := &ServerInfo{
		Version: version,
		Capabilities: []string{
			"configure_base_secret",
			"base_secret_status",
			"generate_local_password",
			"generate_cloud_password",
			"validate_cloud_password",
			"list_cloud_passwords",
			"revoke_cloud_password",
			"echo",
		},
	}

	if len(noiseNKKey) > 0 {
		info.NoiseNKKey = base64.StdEncoding.EncodeToString(noiseNKKey)
		info.Capabilities = append(info.Capabilities, "noise_nk_encryption")
	}

	if monitoring != nil {
		info.Monitoring = monitoring.GetMonitoringInfo()
	}

	return info
}

// Echo simply returns the input message (for testing connectivity)
func Echo(message string) string {
	return message
}
