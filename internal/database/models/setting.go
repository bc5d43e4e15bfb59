package models

// SystemSetting is a key-value row for fleet-wide configuration.
// The "global_proxy" key holds the proxy URL used by accounts without one.
type SystemSetting struct {
	Key   string `gorm:"primaryKey;size:50" json:"key"`
	Value string `gorm:"type:text" json:"value"`
}

// Well-known system setting keys
const (
	SettingGlobalProxy = "global_proxy"
)
