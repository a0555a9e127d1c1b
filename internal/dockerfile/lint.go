package dockerfile

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/moby/buildkit/frontend/dockerfile/parser"

	"github.com/shinji-kodama/rayserve-image/internal/model"
)

// Finding is a single advisory message about a Dockerfile.
type Finding struct {
	// Path is the Dockerfile the finding refers to.
	Path string

	// Line is the 1-based line number, or 0 when the finding applies to the
	// whole file.
	Line int

	// Message describes the problem.
	Message string
}

// String formats the finding as "path:line: message".
func (f Finding) String() string {
	if f.Line > 0 {
		return fmt.Sprintf("%s:%d: %s", f.Path, f.Line, f.Message)
	}
	return fmt.Sprintf("%s: %s", f.Path, f.Message)
}

// Resolve returns the path of the variant's Dockerfile inside dir.
// The file is not required to exist.
func Resolve(dir string, variant model.Variant) string {
	if dir == "" {
		dir = "."
	}
	return filepath.Join(dir, variant.Dockerfile())
}

// Instruction is one logical Dockerfile instruction as read by the
// BuildKit parser.
type Instruction struct {
	// Keyword is the upper-cased instruction name (FROM, ARG, RUN, ...).
	Keyword string

	// Args is the instruction's arguments joined by single spaces. Flags
	// such as FROM --platform are not included.
	Args string

	// Line is the 1-based line the instruction starts on.
	Line int
}

// Parse reads a Dockerfile with the BuildKit frontend parser, so parser
// directives, line continuations, comments and heredocs behave exactly as
// they do in a real build.
func Parse(r io.Reader) ([]Instruction, error) {
	result, err := parser.Parse(r)
	if err != nil {
		return nil, err
	}

	instructions := make([]Instruction, 0, len(result.AST.Children))
	for _, node := range result.AST.Children {
		var args []string
		for n := node.Next; n != nil; n = n.Next {
			args = append(args, n.Value)
		}
		instructions = append(instructions, Instruction{
			Keyword: strings.ToUpper(node.Value),
			Args:    strings.Join(args, " "),
			Line:    node.StartLine,
		})
	}
	return instructions, nil
}

// DeclaredArgs returns the names declared by ARG instructions, mapped to
// the line of their first declaration. "ARG A B=1" declares both A and B.
func DeclaredArgs(instructions []Instruction) map[string]int {
	declared := make(map[string]int)
	for _, ins := range instructions {
		if ins.Keyword != "ARG" {
			continue
		}
		for _, field := range strings.Fields(ins.Args) {
			name, _, _ := strings.Cut(field, "=")
			if _, seen := declared[name]; !seen && name != "" {
				declared[name] = ins.Line
			}
		}
	}
	return declared
}

// Lint checks the Dockerfile at path against the build args the invocation
// will pass. It reports:
//   - a missing or unreadable file
//   - a passed build arg with no matching ARG declaration
//   - a base-image arg that is declared but never referenced by FROM
//
// baseImageArg names the arg that carries the base image ("" skips the
// FROM check). Findings are sorted by line.
func Lint(path string, buildArgs []string, baseImageArg string) []Finding {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return []Finding{{Path: path, Message: "Dockerfile not found"}}
		}
		return []Finding{{Path: path, Message: fmt.Sprintf("cannot read Dockerfile: %v", err)}}
	}
	defer f.Close()

	instructions, err := Parse(f)
	if err != nil {
		return []Finding{{Path: path, Message: fmt.Sprintf("cannot parse Dockerfile: %v", err)}}
	}

	var findings []Finding
	declared := DeclaredArgs(instructions)

	for _, name := range buildArgs {
		if _, ok := declared[name]; !ok {
			findings = append(findings, Finding{
				Path:    path,
				Message: fmt.Sprintf("build arg %s is passed but never declared with ARG", name),
			})
		}
	}

	if line, ok := declared[baseImageArg]; ok && baseImageArg != "" {
		if !fromReferences(instructions, baseImageArg) {
			findings = append(findings, Finding{
				Path:    path,
				Line:    line,
				Message: fmt.Sprintf("ARG %s is declared but no FROM instruction uses it", baseImageArg),
			})
		}
	}

	sort.SliceStable(findings, func(i, j int) bool {
		return findings[i].Line < findings[j].Line
	})
	return findings
}

// fromReferences reports whether any FROM instruction expands name, either
// as $NAME or ${NAME}.
func fromReferences(instructions []Instruction, name string) bool {
	for _, ins := range instructions {
		if ins.Keyword != "FROM" {
			continue
		}
		if strings.Contains(ins.Args, "${"+name+"}") ||
			strings.Contains(ins.Args, "${"+name+":") ||
			containsBareVar(ins.Args, name) {
			return true
		}
	}
	return false
}

// containsBareVar matches $NAME not followed by another identifier character.
func containsBareVar(s, name string) bool {
	needle := "$" + name
	for i := strings.Index(s, needle); i >= 0; {
		end := i + len(needle)
		if end == len(s) || !isIdentChar(s[end]) {
			return true
		}
		next := strings.Index(s[end:], needle)
		if next < 0 {
			return false
		}
		i = end + next
	}
	return false
}

func isIdentChar(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}
