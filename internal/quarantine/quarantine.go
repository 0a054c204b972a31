// Package quarantine isolates documents that failed processing and persists
// machine-readable error reports next to them.
package quarantine

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"stmtsep/internal/logging"
	"stmtsep/internal/types"
)

const (
	stampLayout = "20060102_150405"
	reportsDir  = "reports"
)

// ErrorReport is the persisted JSON record written alongside a quarantined
// document.
type ErrorReport struct {
	ID             string            `json:"id"`
	Timestamp      time.Time         `json:"timestamp"`
	OriginalPath   string            `json:"original_path"`
	QuarantinePath string            `json:"quarantine_path"`
	StageAtFailure string            `json:"stage_at_failure"`
	ReasonCategory types.Kind        `json:"reason_category"`
	Detail         string            `json:"detail"`
	RecoveryHints  []string          `json:"recovery_hints"`
	ConfigSnapshot map[string]string `json:"config_snapshot,omitempty"`
}

// Manager moves failed inputs into the quarantine directory and writes their
// reports.
type Manager struct {
	dir string
	log *zap.Logger

	now func() time.Time
}

// NewManager creates a quarantine manager rooted at dir.
func NewManager(dir string) *Manager {
	return &Manager{
		dir: dir,
		log: logging.For("quarantine"),
		now: time.Now,
	}
}

// Quarantine moves inputPath under the quarantine directory and writes a
// sibling JSON report. It returns the new location of the document.
func (m *Manager) Quarantine(inputPath, stage string, cause error, snapshot map[string]string) (string, error) {
	if err := os.MkdirAll(filepath.Join(m.dir, reportsDir), 0o755); err != nil {
		return "", fmt.Errorf("failed to create quarantine directory: %w", err)
	}

	now := m.now()
	base := filepath.Base(inputPath)
	dest := filepath.Join(m.dir, fmt.Sprintf("failed_%s_%s", now.Format(stampLayout), base))

	if err := moveFile(inputPath, dest); err != nil {
		return "", fmt.Errorf("failed to quarantine %s: %w", inputPath, err)
	}

	kind := types.KindOf(cause)
	detail := ""
	if cause != nil {
		detail = cause.Error()
	}
	report := ErrorReport{
		ID:             uuid.NewString(),
		Timestamp:      now,
		OriginalPath:   inputPath,
		QuarantinePath: dest,
		StageAtFailure: stage,
		ReasonCategory: kind,
		Detail:         detail,
		RecoveryHints:  RecoveryHints(kind),
		ConfigSnapshot: snapshot,
	}
	if err := m.writeReport(dest, report); err != nil {
		return dest, err
	}

	m.log.Warn("document quarantined",
		zap.String("input", inputPath),
		zap.String("quarantine", dest),
		zap.String("stage", stage),
		zap.String("reason", string(kind)))
	return dest, nil
}

func (m *Manager) writeReport(quarantinePath string, report ErrorReport) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal error report: %w", err)
	}

	name := filepath.Base(quarantinePath) + ".json"
	path := filepath.Join(m.dir, reportsDir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write error report: %w", err)
	}
	return nil
}

// moveFile renames src to dst, falling back to copy+fsync+delete across
// filesystem boundaries.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return err
	}
	return os.Remove(src)
}

// RecoveryHints returns operator guidance for an error category.
func RecoveryHints(kind types.Kind) []string {
	switch kind {
	case types.KindFileMissing:
		return []string{"verify the input path", "check for concurrent moves or deletions"}
	case types.KindEncrypted:
		return []string{"decrypt with an external tool", "request an unlocked copy from the source"}
	case types.KindPdfUnreadable:
		return []string{"re-export or re-scan the document", "repair the PDF with an external tool"}
	case types.KindSizeExceeded:
		return []string{"raise max_file_size_mb", "split the input before processing"}
	case types.KindPageCountExceeded:
		return []string{"raise max_total_pages", "split the input before processing"}
	case types.KindExtensionDisallowed:
		return []string{"only .pdf inputs are accepted"}
	case types.KindPathOutsideRoots:
		return []string{"move the input under an allowed root", "extend allowed_input_roots"}
	case types.KindProviderExhausted:
		return []string{"check provider credentials and quota", "lower requests_per_minute", "retry later"}
	case types.KindPdfGenerationFailed:
		return []string{"check free disk space and permissions on the output directory"}
	case types.KindValidationFailed:
		return []string{"inspect the generated files in the output directory", "re-run with --verbose for check details"}
	case types.KindSinkExhausted, types.KindSinkServerError:
		return []string{"check sink availability and credentials", "re-run once the sink is healthy"}
	default:
		return []string{"inspect the error report detail", "re-run with --verbose"}
	}
}
