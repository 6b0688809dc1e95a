package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/pscheid92/forumcast/internal/platform/version"
)

// RegisterBuildInfo exposes the build as a constant gauge labelled with version, commit and Go version.
func RegisterBuildInfo(reg prometheus.Registerer, info version.Info) {
	gauge := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "build_info",
		Help:      "Build information; the value is always 1.",
	}, []string{"version", "commit", "go_version"})
	gauge.WithLabelValues(info.Version, info.Commit, info.GoVersion).Set(1)
	reg.MustRegister(gauge)
}
