package msgcat

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"text/template"

	"gopkg.in/yaml.v3"

	"github.com/bowerhall/gatekeeper/internal/logger"
)

//go:embed messages.en.yaml
var defaultFiles embed.FS

const (
	KeyWelcome = "verify.welcome"
	KeyPassed  = "verify.passed"
	KeyKicked  = "verify.kicked"
)

var ErrTemplateNotFound = errors.New("template not found")

// Catalog holds message templates keyed by dotted path, e.g. "verify.welcome".
type Catalog struct {
	mu   sync.RWMutex
	data map[string]string
}

// New loads the embedded defaults, then applies every *.yaml/*.yml file in
// overrideDir when it is set.
func New(overrideDir string) (*Catalog, error) {
	c := &Catalog{data: make(map[string]string)}

	raw, err := fs.ReadFile(defaultFiles, "messages.en.yaml")
	if err != nil {
		return nil, fmt.Errorf("read embedded messages: %w", err)
	}

	if err := c.applyYAML(raw); err != nil {
		return nil, fmt.Errorf("parse embedded messages: %w", err)
	}

	if strings.TrimSpace(overrideDir) != "" {
		if err := c.applyDir(overrideDir); err != nil {
			return nil, err
		}
	}

	return c, nil
}

func (c *Catalog) applyDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read messages dir: %w", err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext == ".yaml" || ext == ".yml" {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	seen := make(map[string]string)
	for _, name := range files {
		b, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return fmt.Errorf("read %s: %w", name, err)
		}

		flat, err := parseFlat(b)
		if err != nil {
			return fmt.Errorf("parse %s: %w", name, err)
		}

		for k := range flat {
			if prev, ok := seen[k]; ok {
				return fmt.Errorf("duplicate override key %q in %s and %s", k, prev, name)
			}
			seen[k] = name
		}

		c.merge(flat)
		logger.Debug("message overrides loaded", "file", name, "keys", len(flat))
	}

	return nil
}

func (c *Catalog) applyYAML(b []byte) error {
	flat, err := parseFlat(b)
	if err != nil {
		return err
	}
	c.merge(flat)
	return nil
}

func (c *Catalog) merge(flat map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, v := range flat {
		c.data[k] = v
	}
}

func parseFlat(b []byte) (map[string]string, error) {
	var m map[string]any
	if err := yaml.Unmarshal(b, &m); err != nil {
		return nil, err
	}

	flat := make(map[string]string)
	if err := flatten(m, "", flat); err != nil {
		return nil, err
	}
	return flat, nil
}

func flatten(src any, prefix string, out map[string]string) error {
	switch v := src.(type) {
	case map[string]any:
		for k, vv := range v {
			key := k
			if prefix != "" {
				key = prefix + "." + k
			}
			if err := flatten(vv, key, out); err != nil {
				return err
			}
		}
		return nil
	case string:
		if prefix == "" {
			return errors.New("string value without key")
		}
		out[prefix] = v
		return nil
	case nil:
		return nil
	default:
		return fmt.Errorf("unsupported value at %s: %T", prefix, v)
	}
}

// Render executes the template stored under key with data.
func (c *Catalog) Render(key string, data any) (string, error) {
	c.mu.RLock()
	tpl, ok := c.data[key]
	c.mu.RUnlock()

	if !ok || strings.TrimSpace(tpl) == "" {
		return "", fmt.Errorf("%w: %s", ErrTemplateNotFound, key)
	}

	t, err := template.New(key).Option("missingkey=error").Parse(tpl)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	if err := t.Execute(&b, data); err != nil {
		return "", err
	}
	return b.String(), nil
}

func (c *Catalog) Welcome(name string, a, b int) string {
	return c.renderOr(KeyWelcome, map[string]any{"Name": name, "A": a, "B": b},
		fmt.Sprintf("Welcome %s!\nPlease solve this: %d+%d", name, a, b))
}

func (c *Catalog) Passed(name string) string {
	return c.renderOr(KeyPassed, map[string]any{"Name": name},
		fmt.Sprintf("Thanks %s, you are verified.", name))
}

func (c *Catalog) Kicked(name string) string {
	return c.renderOr(KeyKicked, map[string]any{"Name": name},
		fmt.Sprintf("%s was removed.", name))
}

func (c *Catalog) renderOr(key string, data any, fallback string) string {
	text, err := c.Render(key, data)
	if err != nil {
		logger.Warn("message template failed, using fallback", "key", key, "error", err)
		return fallback
	}
	return text
}
