package web

import (
	"net/http"
	"runtime"
	"runtime/debug"
	"time"

	"nmea-bridge/internal/nmea"
	"nmea-bridge/internal/throttle"
)

// About describes what this bridge decodes and where it sends it.
type About struct {
	Service     string        `json:"service"`
	Version     string        `json:"version"`
	Commit      string        `json:"commit,omitempty"`
	GoVersion   string        `json:"go_version"`
	NATSURL     string        `json:"nats_url"`
	TopicPrefix string        `json:"topic_prefix"`
	Sentences   []string      `json:"sentences"`
	Sensors     []string      `json:"sensors"`
	Sources     []AboutSource `json:"sources"`
}

type AboutSource struct {
	Name string `json:"name"`
	Kind string `json:"kind"`
	Addr string `json:"addr"`
}

func buildVersion() (version, commit string) {
	version = "dev"
	bi, ok := debug.ReadBuildInfo()
	if !ok || bi == nil {
		return version, ""
	}
	if v := bi.Main.Version; v != "" && v != "(devel)" {
		version = v
	}
	for _, s := range bi.Settings {
		if s.Key == "vcs.revision" {
			commit = s.Value
			if len(commit) > 12 {
				commit = commit[:12]
			}
		}
	}
	return version, commit
}

// AboutHandler serves the bridge's identity, decoded sentence types, sensor
// ids and configured inputs. version, when set, overrides the build version.
func AboutHandler(version string, status *Status) http.HandlerFunc {
	return getOnly(func(w http.ResponseWriter, r *http.Request) {
		v, commit := buildVersion()
		if version != "" {
			v = version
		}
		resp := About{
			Service:   serviceName,
			Version:   v,
			Commit:    commit,
			GoVersion: runtime.Version(),
			Sentences: nmea.SentenceTypes(),
			Sources:   []AboutSource{},
		}
		for _, f := range throttle.Catalog {
			resp.Sensors = append(resp.Sensors, f.ID)
		}
		if status != nil {
			snap := status.Snapshot(time.Time{})
			resp.NATSURL = snap.NATSURL
			resp.TopicPrefix = snap.TopicPrefix
			for _, s := range snap.Sources {
				resp.Sources = append(resp.Sources, AboutSource{Name: s.Name, Kind: s.Kind, Addr: s.Addr})
			}
		}
		writeJSON(w, resp)
	})
}
