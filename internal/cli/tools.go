package cli

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/aretw0/fsmlink/internal/compiler"
	"github.com/aretw0/fsmlink/internal/presentation/graph"
	"github.com/aretw0/fsmlink/internal/presentation/tui"
	"github.com/aretw0/fsmlink/internal/validator"
	"github.com/aretw0/fsmlink/pkg/adapters/file"
	"github.com/aretw0/fsmlink/pkg/ports"
)

// Validate checks every machine file in paths and prints lint warnings.
// It returns an error if any file fails to parse or validate.
func Validate(out io.Writer, paths []string) error {
	failed := 0
	for _, path := range paths {
		def, _, err := loadMachine(path)
		if err != nil {
			fmt.Fprintf(out, "✗ %v\n", err)
			failed++
			continue
		}
		warnings := validator.Lint(def)
		fmt.Fprintf(out, "✓ %s (%s): %d states, %d transitions\n", path, def.Name, len(def.States), len(def.Transitions))
		for _, w := range warnings {
			fmt.Fprintf(out, "  ! %s\n", w)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d machine files are invalid", failed, len(paths))
	}
	return nil
}

// DescribeOptions configures Describe.
type DescribeOptions struct {
	Path    string
	Notes   string // extra markdown shown under the title
	Mermaid bool   // print only the state diagram
	Raw     bool   // print markdown without terminal rendering
}

// Describe prints a markdown summary of a machine file.
func Describe(out io.Writer, opts DescribeOptions) error {
	def, _, err := loadMachine(opts.Path)
	if err != nil {
		return err
	}
	if opts.Mermaid {
		_, err := io.WriteString(out, graph.GenerateMermaid(def, nil))
		return err
	}

	md := tui.Describe(def, opts.Notes, validator.Lint(def))
	if opts.Raw || !tui.IsTerminal(out) {
		_, err := io.WriteString(out, md)
		return err
	}
	rendered, err := tui.NewRenderer(0)(md)
	if err != nil {
		return fmt.Errorf("render failed: %w", err)
	}
	_, err = io.WriteString(out, rendered)
	return err
}

// Fmt rewrites a machine file in canonical JSON. With write false the
// result goes to out; otherwise the file is replaced atomically when it
// changed. It reports whether the file was already canonical.
func Fmt(out io.Writer, path string, write bool) (bool, error) {
	def, data, err := loadMachine(path)
	if err != nil {
		return false, err
	}
	canonical, err := compiler.NewParser().Marshal(def)
	if err != nil {
		return false, err
	}
	same := bytes.Equal(canonical, data)
	if !write {
		_, err := out.Write(append(canonical, '\n'))
		return same, err
	}
	if same {
		return true, nil
	}
	target := path
	if ext := strings.ToLower(filepath.Ext(path)); ext != ".json" {
		target = strings.TrimSuffix(path, filepath.Ext(path)) + ".json"
	}
	if err := file.WriteAtomic(target, canonical); err != nil {
		return false, err
	}
	printSystemMessage(out, "Formatted %s", target)
	return false, nil
}

// Push validates machine files and stores them in store under their base
// name (e.g. "machines/tof5s.yaml" becomes "tof5s.json").
func Push(ctx context.Context, out io.Writer, store ports.DefinitionStore, paths []string) error {
	parser := compiler.NewParser()
	for _, path := range paths {
		def, _, err := loadMachine(path)
		if err != nil {
			return err
		}
		data, err := parser.Marshal(def)
		if err != nil {
			return err
		}
		base := filepath.Base(path)
		name := strings.TrimSuffix(base, filepath.Ext(base)) + ".json"
		if err := store.Save(ctx, name, data); err != nil {
			return fmt.Errorf("failed to push %s: %w", path, err)
		}
		printSystemMessage(out, "Pushed %s as %s", path, name)
	}
	return nil
}
