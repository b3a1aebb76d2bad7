package renderer

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/codechat-live/codechat-server/internal/subprocess"
)

// runExternalTool converts one document with a command-line tool.
//
// The editor buffer may be newer than the file on disk, so a tool that
// cannot read stdin gets the buffer text through a temp file substituted
// for {input_file}. Likewise {output_file} names a temp file read back
// after the run for tools that cannot write stdout.
func runExternalTool(tool *externalTool, text, filePath string, coBuild CoBuild) (string, string) {
	argv := make([]string, len(tool.Argv))
	copy(argv, tool.Argv)

	dir := filepath.Dir(filePath)

	inputPath := filePath
	if !tool.UsesStdin {
		f, err := os.CreateTemp("", "codechat-in-*"+filepath.Ext(filePath))
		if err != nil {
			return "", fmt.Sprintf(":: ERROR: CodeChat renderer - cannot create a temporary input file: %v.", err)
		}
		inputPath = f.Name()
		defer os.Remove(inputPath)
		_, werr := f.WriteString(text)
		cerr := f.Close()
		if werr != nil || cerr != nil {
			return "", fmt.Sprintf(":: ERROR: CodeChat renderer - cannot write the temporary input file %s.", inputPath)
		}
	}

	outputPath := ""
	if !tool.UsesStdout {
		f, err := os.CreateTemp("", "codechat-out-*.html")
		if err != nil {
			return "", fmt.Sprintf(":: ERROR: CodeChat renderer - cannot create a temporary output file: %v.", err)
		}
		outputPath = f.Name()
		f.Close()
		defer os.Remove(outputPath)
	}

	replacer := strings.NewReplacer("{input_file}", inputPath, "{output_file}", outputPath)
	for i := range argv {
		argv[i] = replacer.Replace(argv[i])
	}

	opts := subprocess.Options{
		Dir:      dir,
		UseStdin: tool.UsesStdin,
		Stdin:    text,
	}
	if tool.UsesStdout {
		// Stdout carries the HTML, so only the banner goes to the build pane.
		coBuild(subprocess.Banner(dir, argv))
	} else {
		opts.Stream = coBuild
	}

	res := subprocess.Run(argv, opts)
	errText := res.Stderr + res.ErrText

	if tool.UsesStdout {
		return res.Stdout, errText
	}
	out, err := os.ReadFile(outputPath)
	if err != nil {
		errText += fmt.Sprintf(":: ERROR: CodeChat renderer - cannot read the converted output %s: %v.", outputPath, err)
		return "", errText
	}
	return string(out), errText
}
