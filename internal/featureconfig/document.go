package featureconfig

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/vk/qorgraph/internal/pipelineerr"
)

// WriteDocument writes c in the line-oriented configuration document format:
// the invocation on the first line, then one line per encoder of the form
// `<scope> <attributeKey> <method> <tag...>`.
func (c *Config) WriteDocument(w io.Writer) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, c.Invocation)
	for _, e := range c.Encoders {
		fields := append([]string{string(e.Scope), e.AttributeKey, string(e.Method)}, e.Vocabulary...)
		fmt.Fprintln(bw, strings.Join(fields, " "))
	}
	return bw.Flush()
}

// SaveDocument writes c to dir/<name>.txt.
func (c *Config) SaveDocument(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create config directory %s: %w", dir, err)
	}
	path := filepath.Join(dir, c.Name+".txt")
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create config document %s: %w", path, err)
	}
	if err := c.WriteDocument(f); err != nil {
		f.Close()
		return "", fmt.Errorf("failed to write config document %s: %w", path, err)
	}
	return path, f.Close()
}

// ParseDocument reads a configuration document. The vocabularies are
// recovered from the keyText and flowType encoders; toggles are not stored in
// the document and stay zero.
func ParseDocument(name string, r io.Reader) (*Config, error) {
	const op = "parse config document"

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return nil, pipelineerr.Wrap(pipelineerr.Configuration, op, err)
		}
		return nil, pipelineerr.New(pipelineerr.Configuration, op, "document %s is empty", name)
	}
	c := &Config{Name: name, Invocation: strings.TrimSpace(sc.Text())}
	if c.Invocation == "" {
		return nil, pipelineerr.New(pipelineerr.Configuration, op, "document %s has no invocation", name)
	}

	lineNo := 1
	for sc.Scan() {
		lineNo++
		words := strings.Fields(sc.Text())
		if len(words) == 0 {
			continue
		}
		if len(words) < 3 {
			return nil, pipelineerr.New(pipelineerr.Configuration, op, "%s line %d: want `<scope> <key> <method> <tags...>`", name, lineNo)
		}
		method, ok := parseMethod(words[2])
		if !ok {
			return nil, pipelineerr.New(pipelineerr.Configuration, op, "%s line %d: unknown method %q", name, lineNo, words[2])
		}
		e := EncoderSpec{
			Scope:        Scope(words[0]),
			AttributeKey: words[1],
			Method:       method,
			Vocabulary:   words[3:],
		}
		if err := e.validate(); err != nil {
			return nil, fmt.Errorf("%s line %d: %w", name, lineNo, err)
		}
		c.Encoders = append(c.Encoders, e)

		switch {
		case e.Scope == ScopeNode && e.AttributeKey == "keyText":
			c.KeyTextTags = e.Vocabulary
		case e.Scope == ScopeEdge && e.AttributeKey == "flowType":
			c.FlowTags = e.Vocabulary
		}
	}
	if err := sc.Err(); err != nil {
		return nil, pipelineerr.Wrap(pipelineerr.Configuration, op, err)
	}
	return c, nil
}

// LoadDocument parses the document at path, naming the config after the file.
func LoadDocument(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config document %s: %w", path, err)
	}
	defer f.Close()
	return ParseDocument(strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)), f)
}
