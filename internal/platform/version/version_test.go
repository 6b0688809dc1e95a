package version

import (
	"runtime"
	"runtime/debug"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGet(t *testing.T) {
	info := Get()

	assert.Equal(t, "dev", info.Version)
	assert.Equal(t, runtime.Version(), info.GoVersion)
	assert.NotEmpty(t, info.Commit)
}

func TestWithVCS(t *testing.T) {
	vcs := []debug.BuildSetting{
		{Key: "vcs", Value: "git"},
		{Key: "vcs.revision", Value: "9f8e7d6c5b4a39281706f5e4d3c2b1a098765432"},
		{Key: "vcs.time", Value: "2026-10-01T08:30:00Z"},
	}
	dirtyVCS := append(vcs[:3:3], debug.BuildSetting{Key: "vcs.modified", Value: "true"})

	tests := []struct {
		name     string
		info     Info
		settings []debug.BuildSetting
		want     Info
	}{
		{
			name:     "unstamped build takes the vcs stamp",
			info:     Info{Version: "dev", Commit: unknown, BuildTime: unknown},
			settings: vcs,
			want:     Info{Version: "dev", Commit: "9f8e7d6c5b4a39281706f5e4d3c2b1a098765432", BuildTime: "2026-10-01T08:30:00Z"},
		},
		{
			name:     "dirty tree",
			info:     Info{Version: "dev", Commit: unknown, BuildTime: unknown},
			settings: dirtyVCS,
			want:     Info{Version: "dev", Commit: "9f8e7d6c5b4a39281706f5e4d3c2b1a098765432-dirty", BuildTime: "2026-10-01T08:30:00Z"},
		},
		{
			name:     "linker stamp wins",
			info:     Info{Version: "v1.4.0", Commit: "0123456", BuildTime: "2026-09-30"},
			settings: dirtyVCS,
			want:     Info{Version: "v1.4.0", Commit: "0123456", BuildTime: "2026-09-30"},
		},
		{
			name: "no vcs information",
			info: Info{Version: "dev", Commit: unknown, BuildTime: unknown},
			want: Info{Version: "dev", Commit: unknown, BuildTime: unknown},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.info.withVCS(tt.settings))
		})
	}
}

func TestInfoString(t *testing.T) {
	tests := map[Info]string{
		{Version: "v1.4.0", Commit: "0123456789abcdef"}: "v1.4.0 (0123456)",
		{Version: "dev", Commit: unknown}:               "dev (unknown)",
		{Version: "v2", Commit: "abc"}:                  "v2 (abc)",
	}
	for info, want := range tests {
		assert.Equal(t, want, info.String())
	}
}
