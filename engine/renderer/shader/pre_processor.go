package shader

import (
	"embed"
	"io/fs"
	"path"
	"regexp"
	"strings"

	"github.com/cockroachdb/errors"
)

//go:embed lib/*.wgsl
var libraryFS embed.FS

// includeRegex matches `//@oxy:include <name>` on its own line.
var includeRegex = regexp.MustCompile(`^\s*//\s*@oxy:include\s+([\w./-]+)\s*$`)

// PreProcessor resolves @oxy:include directives against a library of shared WGSL snippets.
// Each snippet is inserted at most once per Process call, so snippets may include each other.
type PreProcessor interface {
	// Process expands every include directive in source.
	//
	// Parameters:
	//   - source: raw WGSL source
	//
	// Returns:
	//   - string: the expanded source
	//   - error: an include names an unknown snippet or snippets include each other in a cycle
	Process(source string) (string, error)

	// Register adds or replaces a named snippet.
	//
	// Parameters:
	//   - name: the include name
	//   - source: the snippet's WGSL source
	Register(name, source string)

	// Includes returns the snippet names pulled in by the most recent Process call, in
	// insertion order.
	Includes() []string
}

type preProcessor struct {
	library  map[string]string
	included []string
}

var _ PreProcessor = &preProcessor{}

// NewPreProcessor creates a PreProcessor preloaded with the built-in snippet library. The
// snippet name is the file name without the .wgsl extension.
//
// Returns:
//   - PreProcessor: the pre-processor
func NewPreProcessor() PreProcessor {
	p := &preProcessor{library: make(map[string]string)}
	entries, _ := fs.ReadDir(libraryFS, "lib")
	for _, e := range entries {
		data, err := libraryFS.ReadFile(path.Join("lib", e.Name()))
		if err != nil {
			continue
		}
		p.library[strings.TrimSuffix(e.Name(), ".wgsl")] = string(data)
	}
	return p
}

func (p *preProcessor) Register(name, source string) {
	p.library[name] = source
}

func (p *preProcessor) Includes() []string {
	return p.included
}

func (p *preProcessor) Process(source string) (string, error) {
	p.included = p.included[:0]
	seen := make(map[string]bool)
	var sb strings.Builder
	if err := p.expand(&sb, "<root>", source, seen, nil); err != nil {
		return "", err
	}
	return sb.String(), nil
}

func (p *preProcessor) expand(sb *strings.Builder, name, source string, seen map[string]bool, stack []string) error {
	stack = append(stack, name)
	for i, line := range strings.Split(source, "\n") {
		m := includeRegex.FindStringSubmatch(line)
		if m == nil {
			sb.WriteString(line)
			sb.WriteByte('\n')
			continue
		}
		inc := m[1]
		for _, s := range stack {
			if s == inc {
				return errors.Newf("%s:%d: include cycle %s -> %s", name, i+1, strings.Join(stack, " -> "), inc)
			}
		}
		if seen[inc] {
			continue
		}
		snippet, ok := p.library[inc]
		if !ok {
			return errors.Newf("%s:%d: unknown @oxy:include %q", name, i+1, inc)
		}
		seen[inc] = true
		if err := p.expand(sb, inc, snippet, seen, stack); err != nil {
			return err
		}
		p.included = append(p.included, inc)
	}
	return nil
}
