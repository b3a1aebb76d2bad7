package config

import (
	"fmt"
	"os"
	"regexp"
)

// EnvironmentKind distinguishes where the server is running, which changes
// how viewer URLs must be formed.
type EnvironmentKind int

const (
	// EnvLocal is an ordinary desktop: viewers connect to loopback.
	EnvLocal EnvironmentKind = iota
	// EnvCodespaces is a GitHub Codespace: viewers reach the server
	// through the forwarded-port hostname.
	EnvCodespaces
	// EnvCoCalc is a CoCalc project: viewers reach the server through
	// the CoCalc proxy path.
	EnvCoCalc
)

// String returns the string representation of the EnvironmentKind.
func (k EnvironmentKind) String() string {
	switch k {
	case EnvCodespaces:
		return "codespaces"
	case EnvCoCalc:
		return "cocalc"
	default:
		return "local"
	}
}

// Environment captures the auto-detected runtime surroundings.
type Environment struct {
	Kind EnvironmentKind

	// Codespaces fields.
	CodespaceName    string
	ForwardingDomain string

	// CoCalc fields.
	ProjectID string
}

// cocalcHostname matches CoCalc project hosts such as
// project-4denf00s-b98f-4d51-a2cd-bd69e8ea54feed.
var cocalcHostname = regexp.MustCompile(`^project-([0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12})`)

// DetectEnvironment inspects environment variables and the hostname to
// decide how viewer URLs should be built. Detection failures degrade to
// EnvLocal; they are never errors.
func DetectEnvironment() Environment {
	if os.Getenv("CODESPACES") == "true" {
		name := os.Getenv("CODESPACE_NAME")
		domain := os.Getenv("GITHUB_CODESPACES_PORT_FORWARDING_DOMAIN")
		if name != "" && domain != "" {
			return Environment{
				Kind:             EnvCodespaces,
				CodespaceName:    name,
				ForwardingDomain: domain,
			}
		}
	}

	// CoCalc offers no marker variable; its project hostname carries the
	// project id (the Python tooling shells out to uname -n for this).
	if host, err := os.Hostname(); err == nil {
		if m := cocalcHostname.FindStringSubmatch(host); m != nil {
			return Environment{Kind: EnvCoCalc, ProjectID: m[1]}
		}
	}

	return Environment{Kind: EnvLocal}
}

// InsecureRequired reports whether the environment forces 0.0.0.0 binding
// because viewers connect through a proxy rather than loopback.
func (e Environment) InsecureRequired() bool {
	return e.Kind != EnvLocal
}

// ViewerURL returns the browser URL for the given client id.
func (e Environment) ViewerURL(id int) string {
	switch e.Kind {
	case EnvCodespaces:
		return fmt.Sprintf("https://%s-%d.%s/client?id=%d", e.CodespaceName, HTTPPort, e.ForwardingDomain, id)
	case EnvCoCalc:
		return fmt.Sprintf("https://cocalc.com/%s/server/%d/client?id=%d", e.ProjectID, HTTPPort, id)
	default:
		return fmt.Sprintf("http://%s:%d/client?id=%d", Localhost, HTTPPort, id)
	}
}
