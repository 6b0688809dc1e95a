package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/pscheid92/forumcast/internal/platform/version"
)

func TestRegisterBuildInfo(t *testing.T) {
	reg := prometheus.NewRegistry()
	info := version.Info{Version: "v1.2.0", Commit: "abc123", GoVersion: "go1.24.0"}

	RegisterBuildInfo(reg, info)

	count, err := testutil.GatherAndCount(reg, "forumcast_build_info")
	assert.NoError(t, err)
	assert.Equal(t, 1, count)
}
