package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestViewerURLLocal(t *testing.T) {
	env := Environment{Kind: EnvLocal}
	assert.Equal(t, "http://127.0.0.1:9091/client?id=0", env.ViewerURL(0))
	assert.Equal(t, "http://127.0.0.1:9091/client?id=-3", env.ViewerURL(-3))
}

func TestViewerURLCodespaces(t *testing.T) {
	env := Environment{
		Kind:             EnvCodespaces,
		CodespaceName:    "glowing-space-waffle",
		ForwardingDomain: "app.github.dev",
	}
	assert.Equal(t,
		"https://glowing-space-waffle-9091.app.github.dev/client?id=2",
		env.ViewerURL(2))
}

func TestViewerURLCoCalc(t *testing.T) {
	env := Environment{
		Kind:      EnvCoCalc,
		ProjectID: "1f3c5a7e-0b2d-4e6f-8a9c-1d3e5f7a9b0c",
	}
	assert.Equal(t,
		"https://cocalc.com/1f3c5a7e-0b2d-4e6f-8a9c-1d3e5f7a9b0c/server/9091/client?id=0",
		env.ViewerURL(0))
}

func TestDetectEnvironmentCodespaces(t *testing.T) {
	t.Setenv("CODESPACES", "true")
	t.Setenv("CODESPACE_NAME", "glowing-space-waffle")
	t.Setenv("GITHUB_CODESPACES_PORT_FORWARDING_DOMAIN", "app.github.dev")

	env := DetectEnvironment()
	assert.Equal(t, EnvCodespaces, env.Kind)
	assert.True(t, env.InsecureRequired())
}

func TestDetectEnvironmentIncompleteCodespaces(t *testing.T) {
	// Without the name and domain there is nothing to build a URL from.
	t.Setenv("CODESPACES", "true")
	t.Setenv("CODESPACE_NAME", "")
	t.Setenv("GITHUB_CODESPACES_PORT_FORWARDING_DOMAIN", "")

	env := DetectEnvironment()
	assert.NotEqual(t, EnvCodespaces, env.Kind)
}

func TestDetectEnvironmentLocal(t *testing.T) {
	t.Setenv("CODESPACES", "")

	env := DetectEnvironment()
	assert.NotEqual(t, EnvCodespaces, env.Kind)
	if env.Kind == EnvLocal {
		assert.False(t, env.InsecureRequired())
	}
}

func TestCoCalcHostnamePattern(t *testing.T) {
	m := cocalcHostname.FindStringSubmatch("project-1f3c5a7e-0b2d-4e6f-8a9c-1d3e5f7a9b0c")
	if assert.NotNil(t, m) {
		assert.Equal(t, "1f3c5a7e-0b2d-4e6f-8a9c-1d3e5f7a9b0c", m[1])
	}

	assert.Nil(t, cocalcHostname.FindStringSubmatch("my-laptop"))
	assert.Nil(t, cocalcHostname.FindStringSubmatch("project-not-a-uuid"))
}
