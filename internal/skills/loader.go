// ABOUTME: Skill loader scanning directories of SKILL.md files
// ABOUTME: Parses YAML frontmatter, gates on required binaries, merges by precedence

package skills

import (
	"fmt"
	"log/slog"
	"os"
	osexec "os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"gopkg.in/yaml.v3"
)

// Source records which directory tier a skill came from.
type Source string

const (
	SourceExtra     Source = "extra"
	SourceBundled   Source = "bundled"
	SourceWorkspace Source = "workspace"
)

// Skill is one loaded skill directory.
type Skill struct {
	Name        string
	Description string
	Source      Source
	Dir         string
	// Content is the raw SKILL.md including frontmatter.
	Content string
	// Descriptor is the parsed tools.json, nil when the skill has none.
	Descriptor *Descriptor
}

// Body returns the markdown body with the YAML frontmatter stripped.
func (s *Skill) Body() string {
	_, body := splitFrontmatter(s.Content)
	return strings.TrimSpace(body)
}

// LoadOptions configures a skill scan.
type LoadOptions struct {
	BundledDir   string
	WorkspaceDir string
	ExtraDirs    []string
	// Enabled is the allowlist of skill names to keep. Empty keeps nothing.
	Enabled []string
	Logger  *slog.Logger
}

type frontmatter struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Metadata    struct {
		Requires struct {
			Bins []string `yaml:"bins"`
		} `yaml:"requires"`
	} `yaml:"metadata"`
}

// Load scans the configured directories and returns enabled skills sorted by
// name. Precedence is extraDirs < bundled < workspace; a later tier replaces
// an earlier skill of the same name. Skills whose required binaries are not
// on PATH are skipped.
func Load(opts LoadOptions) ([]Skill, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "skills")

	enabled := make(map[string]bool, len(opts.Enabled))
	for _, name := range opts.Enabled {
		enabled[name] = true
	}

	merged := make(map[string]Skill)
	scan := func(dir string, source Source) error {
		if dir == "" {
			return nil
		}
		found, err := loadDir(dir, source, logger)
		if err != nil {
			return err
		}
		for _, s := range found {
			merged[s.Name] = s
		}
		return nil
	}

	for _, dir := range opts.ExtraDirs {
		if err := scan(dir, SourceExtra); err != nil {
			return nil, err
		}
	}
	if err := scan(opts.BundledDir, SourceBundled); err != nil {
		return nil, err
	}
	if err := scan(opts.WorkspaceDir, SourceWorkspace); err != nil {
		return nil, err
	}

	var out []Skill
	for name, s := range merged {
		if !enabled[name] {
			logger.Debug("skill not enabled, skipping", "skill", name)
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func loadDir(dir string, source Source, logger *slog.Logger) ([]Skill, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading skills dir %s: %w", dir, err)
	}

	var out []Skill
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		skillDir := filepath.Join(dir, entry.Name())
		raw, err := os.ReadFile(filepath.Join(skillDir, "SKILL.md"))
		if err != nil {
			continue
		}
		content := string(raw)
		fmRaw, body := splitFrontmatter(content)

		var fm frontmatter
		if fmRaw != "" {
			if err := yaml.Unmarshal([]byte(fmRaw), &fm); err != nil {
				logger.Warn("bad skill frontmatter, skipping", "dir", skillDir, "error", err)
				continue
			}
		}

		name := fm.Name
		if name == "" {
			name = entry.Name()
		}
		if missing := missingBins(fm.Metadata.Requires.Bins); len(missing) > 0 {
			logger.Debug("skipping skill, required binaries missing",
				"skill", name, "missing", missing)
			continue
		}

		description := fm.Description
		if description == "" {
			description = firstParagraph(body)
		}

		descriptor, err := LoadDescriptor(skillDir)
		if err != nil {
			logger.Warn("bad tools.json, loading skill without tools",
				"skill", name, "error", err)
			descriptor = nil
		}

		out = append(out, Skill{
			Name:        name,
			Description: description,
			Source:      source,
			Dir:         skillDir,
			Content:     content,
			Descriptor:  descriptor,
		})
	}
	return out, nil
}

// missingBins returns required binaries not found on PATH.
func missingBins(bins []string) []string {
	var missing []string
	for _, bin := range bins {
		if _, err := osexec.LookPath(bin); err != nil {
			missing = append(missing, bin)
		}
	}
	return missing
}

// splitFrontmatter separates a leading "---" YAML block from the body.
// Content without frontmatter comes back with an empty first value.
func splitFrontmatter(content string) (fm, body string) {
	if !strings.HasPrefix(content, "---") {
		return "", content
	}
	rest := content[3:]
	idx := strings.Index(rest, "\n---")
	if idx < 0 {
		return "", content
	}
	fm = strings.TrimSpace(rest[:idx])
	body = rest[idx+len("\n---"):]
	if i := strings.IndexByte(body, '\n'); i >= 0 {
		body = body[i+1:]
	} else {
		body = ""
	}
	return fm, body
}

// firstParagraph extracts the text of the first markdown paragraph, used as
// a description fallback when the frontmatter has none.
func firstParagraph(body string) string {
	source := []byte(body)
	doc := goldmark.New().Parser().Parse(text.NewReader(source))

	var para ast.Node
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if _, ok := n.(*ast.Paragraph); ok && entering {
			para = n
			return ast.WalkStop, nil
		}
		return ast.WalkContinue, nil
	})
	if para == nil {
		return ""
	}

	var b strings.Builder
	_ = ast.Walk(para, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if t, ok := n.(*ast.Text); ok {
			b.Write(t.Segment.Value(source))
			if t.SoftLineBreak() {
				b.WriteByte(' ')
			}
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(b.String())
}
