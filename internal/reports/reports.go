// Package reports implements C4: the opaque per-strategy report archive and
// the append-only reject-decision log layered on top of it.
package reports

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Report is one persisted strategy report file's payload:
// {trades[], report_stats{...}, diagnostics{...}, generated_at}.
type Report struct {
	Trades      []map[string]interface{} `json:"trades"`
	ReportStats map[string]interface{}   `json:"report_stats"`
	Diagnostics map[string]interface{}   `json:"diagnostics"`
	GeneratedAt time.Time                `json:"generated_at"`
}

// ReportMeta describes one report file without loading its body.
type ReportMeta struct {
	Name        string    `json:"name"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Decision is one entry in a report's append-only reject log.
type Decision struct {
	Type     string    `json:"type"`
	TradeKey string    `json:"trade_key"`
	Reason   string    `json:"reason"`
	At       time.Time `json:"at"`
}

const filenameLayout = "analysis_20060102_150405.json"

// Store manages strategy-partitioned report files and their per-file reject
// decision logs on disk.
type Store struct {
	reportsDir   string
	decisionsDir string
	log          zerolog.Logger
}

// New creates a Store rooted at reportsDir/decisionsDir, creating both if
// they don't exist.
func New(reportsDir, decisionsDir string, log zerolog.Logger) (*Store, error) {
	if err := os.MkdirAll(reportsDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating reports dir: %w", err)
	}
	if err := os.MkdirAll(decisionsDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating decisions dir: %w", err)
	}
	return &Store{
		reportsDir:   reportsDir,
		decisionsDir: decisionsDir,
		log:          log.With().Str("component", "reports").Logger(),
	}, nil
}

func (s *Store) strategyDir(strategyID string) string {
	return filepath.Join(s.reportsDir, sanitize(strategyID))
}

// PersistReport writes a new report file for strategyID, named
// analysis_YYYYMMDD_HHMMSS.json, and returns its generated name.
func (s *Store) PersistReport(ctx context.Context, strategyID string, report Report) (string, error) {
	dir := s.strategyDir(strategyID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating strategy dir %s: %w", strategyID, err)
	}

	if report.GeneratedAt.IsZero() {
		report.GeneratedAt = time.Now()
	}
	name := report.GeneratedAt.UTC().Format(filenameLayout)
	path := filepath.Join(dir, name)

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshaling report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("writing report %s: %w", name, err)
	}

	s.log.Info().Str("strategy", strategyID).Str("file", name).Msg("report persisted")
	return name, nil
}

// ListReports returns strategyID's reports newest-first.
func (s *Store) ListReports(ctx context.Context, strategyID string) ([]ReportMeta, error) {
	dir := s.strategyDir(strategyID)
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return []ReportMeta{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("listing reports for %s: %w", strategyID, err)
	}

	metas := make([]ReportMeta, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		metas = append(metas, ReportMeta{Name: e.Name(), GeneratedAt: info.ModTime()})
	}

	sort.Slice(metas, func(i, j int) bool { return metas[i].GeneratedAt.After(metas[j].GeneratedAt) })
	return metas, nil
}

// GetReport loads strategyID's report file named name.
func (s *Store) GetReport(ctx context.Context, strategyID, name string) (Report, error) {
	path := filepath.Join(s.strategyDir(strategyID), filepath.Base(name))
	data, err := os.ReadFile(path)
	if err != nil {
		return Report{}, fmt.Errorf("reading report %s/%s: %w", strategyID, name, err)
	}
	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return Report{}, fmt.Errorf("parsing report %s/%s: %w", strategyID, name, err)
	}
	return r, nil
}

func (s *Store) decisionLogPath(reportFile string) string {
	return filepath.Join(s.decisionsDir, sanitize(reportFile)+".ndjson")
}

// PersistReject appends a reject decision for (reportFile, tradeKey), unless
// one already exists: the first write
// for a given (report_file, trade_key) wins and every later duplicate is a
// silent no-op.
func (s *Store) PersistReject(ctx context.Context, reportFile, tradeKey, reason string) error {
	existing, err := s.GetDecisions(ctx, reportFile)
	if err != nil {
		return err
	}
	for _, d := range existing {
		if d.TradeKey == tradeKey {
			return nil
		}
	}

	f, err := os.OpenFile(s.decisionLogPath(reportFile), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening decision log for %s: %w", reportFile, err)
	}
	defer f.Close()

	entry := Decision{Type: "reject", TradeKey: tradeKey, Reason: reason, At: time.Now()}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshaling decision: %w", err)
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("appending decision for %s: %w", reportFile, err)
	}

	s.log.Info().Str("report_file", reportFile).Str("trade_key", tradeKey).Msg("reject decision persisted")
	return nil
}

// GetDecisions returns reportFile's ordered decision list.
func (s *Store) GetDecisions(ctx context.Context, reportFile string) ([]Decision, error) {
	path := s.decisionLogPath(reportFile)
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return []Decision{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening decision log for %s: %w", reportFile, err)
	}
	defer f.Close()

	var decisions []Decision
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var d Decision
		if err := json.Unmarshal(line, &d); err != nil {
			return nil, fmt.Errorf("parsing decision line in %s: %w", reportFile, err)
		}
		decisions = append(decisions, d)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading decision log for %s: %w", reportFile, err)
	}
	if decisions == nil {
		decisions = []Decision{}
	}
	return decisions, nil
}

// sanitize strips path separators from an identifier used to build a
// filesystem path, so a strategy ID or report file name can never escape
// its parent directory.
func sanitize(s string) string {
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	s = strings.ReplaceAll(s, "..", "_")
	return s
}
