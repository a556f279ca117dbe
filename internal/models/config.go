package models

import "runtime/debug"

// BuildProperties identify the running binary.
type BuildProperties struct {
	Version   string `json:"version"`
	Revision  string `json:"revision,omitempty"`
	BuildTime string `json:"build_time,omitempty"`
	Dirty     bool   `json:"dirty"`
	GoVersion string `json:"go_version"`
}

// ReadBuildProperties reads the version control stamp embedded by the Go toolchain.
func ReadBuildProperties() BuildProperties {
	props := BuildProperties{Version: "unknown"}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return props
	}
	props.GoVersion = info.GoVersion
	if v := info.Main.Version; v != "" && v != "(devel)" {
		props.Version = v
	}
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			props.Revision = s.Value
		case "vcs.time":
			props.BuildTime = s.Value
		case "vcs.modified":
			props.Dirty = s.Value == "true"
		}
	}
	return props
}

// ConfigModel describes the running service without exposing secrets.
type ConfigModel struct {
	Name        string          `json:"name"`
	Build       BuildProperties `json:"build"`
	Timezone    string          `json:"timezone"`
	Datasources []string        `json:"datasources"`
	Targets     []string        `json:"realtime_targets"`
}
