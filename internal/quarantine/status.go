package quarantine

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Entry describes one quarantined document.
type Entry struct {
	Path    string       `json:"path"`
	Size    int64        `json:"size"`
	ModTime time.Time    `json:"mod_time"`
	Report  *ErrorReport `json:"report,omitempty"` // nil when the report is missing or unreadable
}

// Status enumerates the quarantined documents, oldest first, pairing each
// with its report when one exists.
func (m *Manager) Status() ([]Entry, error) {
	infos, err := os.ReadDir(m.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read quarantine directory: %w", err)
	}

	var entries []Entry
	for _, info := range infos {
		if info.IsDir() || !strings.HasPrefix(info.Name(), "failed_") {
			continue
		}
		fi, err := info.Info()
		if err != nil {
			continue
		}
		entries = append(entries, Entry{
			Path:    filepath.Join(m.dir, info.Name()),
			Size:    fi.Size(),
			ModTime: fi.ModTime(),
			Report:  m.loadReport(info.Name()),
		})
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].ModTime.Before(entries[j].ModTime) })
	return entries, nil
}

func (m *Manager) loadReport(quarantineName string) *ErrorReport {
	data, err := os.ReadFile(filepath.Join(m.dir, reportsDir, quarantineName+".json"))
	if err != nil {
		return nil
	}
	var report ErrorReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil
	}
	return &report
}

// Clean removes quarantined documents and their reports older than the given
// age. With dryRun set, nothing is deleted; the would-be victims are still
// returned.
func (m *Manager) Clean(olderThanDays int, dryRun bool) ([]string, error) {
	entries, err := m.Status()
	if err != nil {
		return nil, err
	}

	cutoff := m.now().AddDate(0, 0, -olderThanDays)
	var removed []string
	for _, e := range entries {
		if !e.ModTime.Before(cutoff) {
			continue
		}
		removed = append(removed, e.Path)
		if dryRun {
			continue
		}
		if err := os.Remove(e.Path); err != nil && !os.IsNotExist(err) {
			return removed, fmt.Errorf("failed to remove %s: %w", e.Path, err)
		}
		report := filepath.Join(m.dir, reportsDir, filepath.Base(e.Path)+".json")
		if err := os.Remove(report); err != nil && !os.IsNotExist(err) {
			return removed, fmt.Errorf("failed to remove %s: %w", report, err)
		}
	}

	m.log.Info("quarantine clean",
		zap.Int("matched", len(removed)),
		zap.Bool("dry_run", dryRun),
		zap.Int("older_than_days", olderThanDays))
	return removed, nil
}
