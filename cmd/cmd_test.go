package cmd

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codechat-live/codechat-server/internal/server"
	"github.com/codechat-live/codechat-server/internal/version"
)

// newTestCommand builds a command whose output is captured and whose
// context is set, as Execute would have done.
func newTestCommand(t *testing.T) (*cobra.Command, *bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	c := &cobra.Command{}
	c.SetContext(context.Background())
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	c.SetOut(out)
	c.SetErr(errOut)
	return c, out, errOut
}

func requireShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("test project builders use sh")
	}
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestRootRegistersSubcommands(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"--help"})
	defer rootCmd.SetArgs(nil)

	require.NoError(t, rootCmd.Execute())
	for _, name := range []string{"serve", "start", "stop", "build", "render", "watch", "version"} {
		assert.Contains(t, out.String(), name)
	}
}

func TestChoiceValue(t *testing.T) {
	v := newChoiceValue("info", "debug", "info", "warn", "error")
	assert.Equal(t, "info", v.String())

	require.NoError(t, v.Set("debug"))
	assert.Equal(t, "debug", v.String())

	err := v.Set("loud")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "debug, info, warn, error")
	assert.Equal(t, "debug", v.String(), "a rejected Set leaves the value alone")
}

func TestLogLevelFlagRejectsUnknown(t *testing.T) {
	flag := rootCmd.PersistentFlags().Lookup("log-level")
	require.NotNil(t, flag)

	before := flag.Value.String()
	t.Cleanup(func() { require.NoError(t, flag.Value.Set(before)) })

	assert.Error(t, flag.Value.Set("loud"))
	assert.NoError(t, flag.Value.Set("warn"))
}

func TestVersionCommand(t *testing.T) {
	c, out, _ := newTestCommand(t)

	versionShort = false
	require.NoError(t, runVersion(c, nil))
	assert.Contains(t, out.String(), "The CodeChat Server, v.")
	assert.Contains(t, out.String(), version.Get())
}

func TestVersionShort(t *testing.T) {
	c, out, _ := newTestCommand(t)

	versionShort = true
	t.Cleanup(func() { versionShort = false })
	require.NoError(t, runVersion(c, nil))
	assert.Equal(t, version.Get()+"\n", out.String())
}

func TestBuildMarkdown(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.md")
	require.NoError(t, os.WriteFile(path, []byte("*hi*\n"), 0o644))

	c, out, errOut := newTestCommand(t)
	require.NoError(t, runBuild(c, []string{path}))
	assert.Contains(t, out.String(), "<em>hi</em>")
	assert.Empty(t, errOut.String())
}

func TestBuildProjectPrintsOutputPath(t *testing.T) {
	requireShell(t)
	dir := t.TempDir()
	cfg := `
source_path: .
output_path: _build
args: ["sh", "-c", "mkdir -p _build && echo built > _build/doc.html"]
html_ext: .html
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "codechat_config.yaml"), []byte(cfg), 0o644))
	source := filepath.Join(dir, "doc.rst")
	require.NoError(t, os.WriteFile(source, []byte("Title\n=====\n"), 0o644))

	c, out, _ := newTestCommand(t)
	require.NoError(t, runBuild(c, []string{source}))
	assert.Contains(t, out.String(), filepath.Join("_build", "doc.html"))
}

func TestBuildReportsMissingFile(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "absent.md")

	c, _, errOut := newTestCommand(t)
	err := runBuild(c, []string{missing})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 1 renders failed")
	assert.Contains(t, errOut.String(), "absent.md")
}

func TestBuildReportsUnconvertibleFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.zzz")
	require.NoError(t, os.WriteFile(path, []byte("payload"), 0o644))

	c, _, errOut := newTestCommand(t)
	err := runBuild(c, []string{path})
	require.Error(t, err)
	assert.Contains(t, errOut.String(), "No converter found")
}

func TestBuildMixedResults(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.md")
	require.NoError(t, os.WriteFile(good, []byte("fine\n"), 0o644))
	missing := filepath.Join(dir, "missing.md")

	c, out, _ := newTestCommand(t)
	err := runBuild(c, []string{good, missing})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2 renders failed")
	assert.Contains(t, out.String(), "fine")
}

func TestServeArgsPropagatesFlags(t *testing.T) {
	startInsecure = true
	cfgFile = "custom.yaml"
	t.Cleanup(func() {
		startInsecure = false
		cfgFile = ""
	})

	assert.Equal(t, []string{"serve", "--insecure", "--config", "custom.yaml"}, serveArgs())
}

func TestServeArgsDefault(t *testing.T) {
	assert.Equal(t, []string{"serve"}, serveArgs())
}

func TestWaitForReady(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "server.log")
	require.NoError(t, os.WriteFile(logPath, []byte("The CodeChat Server, v.1.0\n"), 0o644))

	go func() {
		time.Sleep(150 * time.Millisecond)
		f, err := os.OpenFile(logPath, os.O_APPEND|os.O_WRONLY, 0)
		if err != nil {
			return
		}
		defer f.Close()
		f.WriteString(server.ReadyMarker)
	}()

	require.NoError(t, waitForReady(logPath, nil, 3*time.Second))
}

func TestWaitForReadyTimesOut(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "server.log")
	require.NoError(t, os.WriteFile(logPath, []byte("starting\n"), 0o644))

	err := waitForReady(logPath, nil, 300*time.Millisecond)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "did not become ready")
}

func TestWaitForReadyReportsChildExit(t *testing.T) {
	exited := make(chan error, 1)
	exited <- errors.New("exit status 1")

	err := waitForReady(filepath.Join(t.TempDir(), "missing.log"), exited, 3*time.Second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exited before becoming ready")
}

func TestStopFindsNothingForUnknownName(t *testing.T) {
	stopped, err := stopServerProcesses(context.Background(), "codechat-server-test-no-such-binary", 0)
	require.NoError(t, err)
	assert.Zero(t, stopped)
}

func TestMatchesProcessName(t *testing.T) {
	assert.True(t, matchesProcessName("codechat-server", serverProcessName))
	assert.True(t, matchesProcessName("CodeChat-Server.exe", serverProcessName))
	assert.False(t, matchesProcessName("codechat-server2", serverProcessName))
	assert.False(t, matchesProcessName("codechat", serverProcessName))
}

func TestRenderRejectsBadID(t *testing.T) {
	c, _, _ := newTestCommand(t)
	err := runRender(c, []string{"doc.md", "seven"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not an integer")
}
