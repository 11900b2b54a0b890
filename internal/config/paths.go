package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// PathsConfig contains file system paths configuration. Relative paths
// are resolved against the working directory of the invoking binary.
type PathsConfig struct {
	DataDir          string `yaml:"data_dir" envconfig:"DATA_DIR" default:"data"`
	BorrowingsDir    string `yaml:"borrowings_dir" envconfig:"BORROWINGS_DIR" default:"data/raw/borrowings"`
	ClosedDaysFile   string `yaml:"closed_days_file" envconfig:"CLOSED_DAYS_FILE" default:"data/raw/closed_days.csv"`
	ProcessedDir     string `yaml:"processed_dir" envconfig:"PROCESSED_DIR" default:"data/processed"`
	ReportsDir       string `yaml:"reports_dir" envconfig:"REPORTS_DIR" default:"data/reports"`
	ProcessedVersion string `yaml:"processed_version" envconfig:"PROCESSED_VERSION" default:"v1"`
}

// ProcessedVersionDir returns the snapshot directory for a dataset version
func (p *PathsConfig) ProcessedVersionDir(version string) string {
	return filepath.Join(p.ProcessedDir, version)
}

// AuditWorkbookPath returns the path of the cleaning audit workbook for a version
func (p *PathsConfig) AuditWorkbookPath(version string) string {
	return filepath.Join(p.ReportsDir, fmt.Sprintf("cleaning_audit_%s.xlsx", version))
}

// EstimatePath returns the JSON path of a named estimate for a version
func (p *PathsConfig) EstimatePath(version, name string) string {
	return filepath.Join(p.ReportsDir, "estimates", fmt.Sprintf("%s_%s.json", name, version))
}

// EnsureDirectories creates all output directories if they do not exist
func (p *PathsConfig) EnsureDirectories() error {
	dirs := []string{p.DataDir, p.ProcessedDir, p.ReportsDir}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}
