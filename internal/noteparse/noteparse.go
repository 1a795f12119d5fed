// Package noteparse parses and serializes the YAML front-matter block
// (title + tags) embedded in note content.
package noteparse

import (
	"bytes"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Note is the structured form of a note file: front-matter fields plus
// the markdown body that follows the closing delimiter.
type Note struct {
	Title string
	Tags  []string
	Body  string
}

type frontmatter struct {
	Title string   `yaml:"title,omitempty"`
	Tags  []string `yaml:"tags,omitempty"`
}

const delim = "---"

// Parse extracts the front matter and body from raw note bytes. Content
// without a front-matter block (or with invalid YAML in it) is treated
// as all body; the title then falls back to the first H1 heading.
func Parse(data []byte) (*Note, error) {
	fm, body := splitFrontmatter(data)
	n := &Note{
		Title: fm.Title,
		Tags:  fm.Tags,
		Body:  body,
	}
	if n.Tags == nil {
		n.Tags = []string{}
	}
	if n.Title == "" {
		n.Title = firstHeading(body)
	}
	return n, nil
}

// Serialize renders a note back to its on-disk form. Parse(Serialize(n))
// round-trips the title, tags, and body.
func Serialize(n *Note) ([]byte, error) {
	fm := frontmatter{Title: n.Title, Tags: n.Tags}
	block, err := yaml.Marshal(&fm)
	if err != nil {
		return nil, fmt.Errorf("noteparse: marshal frontmatter: %w", err)
	}
	var buf bytes.Buffer
	buf.WriteString(delim + "\n")
	buf.Write(block)
	buf.WriteString(delim + "\n\n")
	buf.WriteString(n.Body)
	return buf.Bytes(), nil
}

// splitFrontmatter separates the YAML block between leading --- delimiters
// from the body. If no block is found the entire content is body.
func splitFrontmatter(data []byte) (frontmatter, string) {
	trimmed := bytes.TrimLeft(data, "\n\r")
	if !bytes.HasPrefix(trimmed, []byte(delim)) {
		return frontmatter{}, string(data)
	}

	rest := trimmed[len(delim):]
	idx := bytes.Index(rest, []byte("\n"+delim))
	if idx < 0 {
		// No closing delimiter: treat everything as body.
		return frontmatter{}, string(data)
	}

	yamlBlock := rest[:idx]
	afterDelim := rest[idx+1+len(delim):]
	body := strings.TrimLeft(string(afterDelim), "\n\r")

	var fm frontmatter
	if err := yaml.Unmarshal(yamlBlock, &fm); err != nil {
		// Invalid YAML: fall back to body-only.
		return frontmatter{}, string(data)
	}
	return fm, body
}

// firstHeading returns the text of the first H1 heading, or "".
func firstHeading(body string) string {
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			return strings.TrimSpace(trimmed[2:])
		}
	}
	return ""
}
