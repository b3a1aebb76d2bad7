package subprocess

import (
	"bytes"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"

	"github.com/google/shlex"
	"golang.org/x/text/transform"
)

// Options controls one child-process run.
type Options struct {
	// Dir is the working directory for the child. Empty means inherit.
	Dir string
	// UseStdin feeds Stdin to the child; otherwise stdin is empty.
	UseStdin bool
	// Stdin is the text written to the child's stdin when UseStdin is set.
	Stdin string
	// Stream receives decoded stdout chunks as they arrive, starting with
	// the command banner. When nil, stdout is collected into Result.Stdout
	// instead.
	Stream func(string)
}

// Result is everything a run produces. Launch and exit failures are folded
// into ErrText; a run never yields a Go error, because render failures must
// reach viewers as diagnostics rather than abort the render cycle.
type Result struct {
	Stdout  string
	Stderr  string
	ErrText string
}

// Tokenize splits a command string with shell-like quoting. Project
// configurations may supply args as one string rather than a list.
func Tokenize(command string) ([]string, error) {
	argv, err := shlex.Split(command)
	if err != nil {
		return nil, fmt.Errorf("cannot tokenize command %q: %w", command, err)
	}
	if len(argv) == 0 {
		return nil, fmt.Errorf("empty command")
	}
	return argv, nil
}

// Banner is the line announcing a run to viewers, mirroring what a user
// would have typed at a prompt.
func Banner(dir string, argv []string) string {
	return fmt.Sprintf("%s > %s\n", dir, strings.Join(argv, " "))
}

// Run launches argv and waits for it to finish. There is no cancellation:
// once launched, the child runs to completion and its output is reported
// whole, so a half-written build tree is never mistaken for a finished one.
func Run(argv []string, opts Options) Result {
	if len(argv) == 0 {
		return Result{ErrText: ":: ERROR: CodeChat renderer - no command to run.\n"}
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = opts.Dir
	if opts.UseStdin {
		cmd.Stdin = strings.NewReader(opts.Stdin)
	}

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return Result{ErrText: launchError(argv[0], err)}
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return Result{ErrText: launchError(argv[0], err)}
	}

	if opts.Stream != nil {
		opts.Stream(Banner(opts.Dir, argv))
	}

	if err := cmd.Start(); err != nil {
		return Result{ErrText: launchError(argv[0], err)}
	}

	var stderrBuf bytes.Buffer
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		raw, _ := io.ReadAll(stderrPipe)
		stderrBuf.WriteString(Decode(raw))
	}()

	var res Result
	var stdout strings.Builder
	reader := transform.NewReader(stdoutPipe, NewDecoder())
	buf := make([]byte, 4096)
	for {
		n, rerr := reader.Read(buf)
		if n > 0 {
			if opts.Stream != nil {
				opts.Stream(string(buf[:n]))
			} else {
				stdout.Write(buf[:n])
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			res.ErrText += fmt.Sprintf(":: ERROR: CodeChat renderer - cannot decode output of %s: %v.\n", argv[0], rerr)
			break
		}
	}

	wg.Wait()
	waitErr := cmd.Wait()

	res.Stdout = stdout.String()
	res.Stderr = stderrBuf.String()
	if waitErr != nil {
		res.ErrText += fmt.Sprintf(":: ERROR: CodeChat renderer - %s failed: %v.\n", argv[0], waitErr)
	}

	return res
}

func launchError(name string, err error) string {
	return fmt.Sprintf(":: ERROR: CodeChat renderer - unable to start %s: %v.\n", name, err)
}
