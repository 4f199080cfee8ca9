package widget

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// FilePrefs persists the widget preferences in a yaml file. Only the disclaimer acknowledgement is
// stored, and it never expires.
type FilePrefs struct {
	path string
}

// MemoryPrefs keeps the preferences in memory. It is useful when nothing should survive the process.
type MemoryPrefs struct {
	mu       sync.Mutex
	accepted bool
}

type prefsFile struct {
	DisclaimerAccepted bool `yaml:"elfTherapistDisclaimerAccepted"`
}

// NewFilePrefs creates a FilePrefs backed by the file at path. The file is created on first write.
func NewFilePrefs(path string) FilePrefs {
	return FilePrefs{path: path}
}

// DisclaimerAccepted reports whether the disclaimer was acknowledged. A missing or unreadable file counts
// as not acknowledged.
func (p FilePrefs) DisclaimerAccepted() bool {
	pf, err := p.read()
	if err != nil {
		return false
	}
	return pf.DisclaimerAccepted
}

// AcceptDisclaimer records the acknowledgement.
func (p FilePrefs) AcceptDisclaimer() error {
	// An unreadable file is replaced.
	pf, _ := p.read()
	pf.DisclaimerAccepted = true

	if err := os.MkdirAll(filepath.Dir(p.path), 0755); err != nil {
		return fmt.Errorf("error creating prefs directory: %w", err)
	}
	b, err := yaml.Marshal(pf)
	if err != nil {
		return fmt.Errorf("failed to marshal prefs: %w", err)
	}
	if err := os.WriteFile(p.path, b, 0600); err != nil {
		return fmt.Errorf("failed to write prefs: %w", err)
	}
	return nil
}

func (p FilePrefs) read() (prefsFile, error) {
	var pf prefsFile
	b, err := os.ReadFile(p.path)
	if err != nil {
		return pf, err
	}
	if err := yaml.Unmarshal(b, &pf); err != nil {
		return prefsFile{}, fmt.Errorf("failed to decode prefs: %w", err)
	}
	return pf, nil
}

func (p *MemoryPrefs) DisclaimerAccepted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.accepted
}

func (p *MemoryPrefs) AcceptDisclaimer() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.accepted = true
	return nil
}
