package handlers

import (
	"net/http"
	"runtime"
)

// VersionInfo carries build metadata injected from main via ldflags.
type VersionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"git_commit"`
	BuildDate string `json:"build_date"`
}

// VersionResponse is the version endpoint body.
type VersionResponse struct {
	App     VersionInfo `json:"app"`
	Runtime RuntimeInfo `json:"runtime"`
}

// RuntimeInfo describes the serving process.
type RuntimeInfo struct {
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
	NumCPU    int    `json:"num_cpu"`
}

// Version reports build and runtime metadata.
func Version(info VersionInfo) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, VersionResponse{
			App: info,
			Runtime: RuntimeInfo{
				GoVersion: runtime.Version(),
				Platform:  runtime.GOOS + "/" + runtime.GOARCH,
				NumCPU:    runtime.NumCPU(),
			},
		})
	}
}
