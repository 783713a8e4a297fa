package logging

import (
	"bufio"
	"compress/gzip"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// LogEntry is one decoded line of a run log.
type LogEntry struct {
	Timestamp time.Time      `json:"timestamp"`
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	Stage     string         `json:"stage,omitempty"`
	Unit      string         `json:"unit,omitempty"`
	Attrs     map[string]any `json:"attrs,omitempty"`
}

// LogFilter selects a subset of aggregated log entries. Zero-valued
// fields do not constrain the result.
type LogFilter struct {
	// Level keeps entries at or above this severity.
	Level string
	// Stage keeps entries tagged with this pipeline stage.
	Stage string
	// Unit keeps entries tagged with this unit of work (species or locus).
	Unit string
	// StartTime and EndTime bound the entry timestamps inclusively.
	StartTime time.Time
	EndTime   time.Time
	// MessageContains keeps entries whose message includes this substring.
	MessageContains string
}

// levelOrder ranks severities so filters can express "this level and up".
var levelOrder = map[string]int{
	LevelDebug: 0,
	LevelInfo:  1,
	LevelWarn:  2,
	LevelError: 3,
}

// AggregateLogs reads phyloflow.log and its rotated backups from outputDir
// and returns the decoded entries ordered oldest first. Gzipped backups are
// decompressed transparently. Lines that fail to parse are skipped so a
// truncated line from an interrupted run does not hide the rest of the log.
func AggregateLogs(outputDir string) ([]LogEntry, error) {
	logPath := filepath.Join(outputDir, "phyloflow.log")

	paths, err := logChain(logPath)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no log file found in %s", outputDir)
	}

	var entries []LogEntry
	for _, path := range paths {
		fileEntries, err := readLogFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		entries = append(entries, fileEntries...)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp.Before(entries[j].Timestamp)
	})

	return entries, nil
}

// logChain returns the rotated backups (oldest first) followed by the live
// log, including only files that exist on disk.
func logChain(logPath string) ([]string, error) {
	matches, err := filepath.Glob(logPath + ".*")
	if err != nil {
		return nil, err
	}

	// Backups are numbered .1 (newest) to .N (oldest), possibly with a
	// .gz extension; sort descending so the oldest entries come first.
	backups := append([]string(nil), matches...)
	sort.Sort(sort.Reverse(sort.StringSlice(backups)))

	paths := backups
	if _, err := os.Stat(logPath); err == nil {
		paths = append(paths, logPath)
	}
	return paths, nil
}

// readLogFile decodes every parseable line of a single log file.
func readLogFile(path string) ([]LogEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("failed to open gzip log: %w", err)
		}
		defer gz.Close()
		r = gz
	}

	var entries []LogEntry
	scanner := bufio.NewScanner(r)
	// Allow for long lines carrying large stderr tails.
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		entry, ok := parseLogEntry(line)
		if !ok {
			continue
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return entries, nil
}

// parseLogEntry decodes one slog JSON line. The standard slog keys and the
// stage/unit attributes become struct fields; anything else lands in Attrs.
func parseLogEntry(line string) (LogEntry, bool) {
	var raw map[string]any
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return LogEntry{}, false
	}

	var entry LogEntry
	entry.Attrs = make(map[string]any)

	for key, value := range raw {
		switch key {
		case "time":
			if s, ok := value.(string); ok {
				if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
					entry.Timestamp = ts
				}
			}
		case "level":
			if s, ok := value.(string); ok {
				entry.Level = strings.ToUpper(s)
			}
		case "msg":
			if s, ok := value.(string); ok {
				entry.Message = s
			}
		case "stage":
			if s, ok := value.(string); ok {
				entry.Stage = s
			}
		case "unit":
			if s, ok := value.(string); ok {
				entry.Unit = s
			}
		default:
			entry.Attrs[key] = value
		}
	}

	if len(entry.Attrs) == 0 {
		entry.Attrs = nil
	}

	return entry, entry.Message != "" || !entry.Timestamp.IsZero()
}

// FilterLogs returns the entries that match every set field of the filter.
func FilterLogs(entries []LogEntry, filter LogFilter) []LogEntry {
	if isEmptyFilter(filter) {
		return entries
	}

	filtered := make([]LogEntry, 0, len(entries))
	for _, entry := range entries {
		if matchesFilter(entry, filter) {
			filtered = append(filtered, entry)
		}
	}
	return filtered
}

func isEmptyFilter(f LogFilter) bool {
	return f.Level == "" &&
		f.Stage == "" &&
		f.Unit == "" &&
		f.StartTime.IsZero() &&
		f.EndTime.IsZero() &&
		f.MessageContains == ""
}

func matchesFilter(entry LogEntry, filter LogFilter) bool {
	if filter.Level != "" {
		filterRank, filterOk := levelOrder[strings.ToUpper(filter.Level)]
		entryRank, entryOk := levelOrder[entry.Level]
		if filterOk && entryOk && entryRank < filterRank {
			return false
		}
	}

	if !filter.StartTime.IsZero() && entry.Timestamp.Before(filter.StartTime) {
		return false
	}
	if !filter.EndTime.IsZero() && entry.Timestamp.After(filter.EndTime) {
		return false
	}

	if filter.Stage != "" && entry.Stage != filter.Stage {
		return false
	}
	if filter.Unit != "" && entry.Unit != filter.Unit {
		return false
	}

	if filter.MessageContains != "" && !strings.Contains(entry.Message, filter.MessageContains) {
		return false
	}

	return true
}

// ExportLogEntries writes entries to w in the given format.
// Supported formats: "json", "text", "csv".
func ExportLogEntries(w io.Writer, entries []LogEntry, format string) error {
	switch strings.ToLower(format) {
	case "json":
		return exportJSON(w, entries)
	case "text":
		return exportText(w, entries)
	case "csv":
		return exportCSV(w, entries)
	default:
		return fmt.Errorf("unsupported export format: %s (supported: json, text, csv)", format)
	}
}

func exportJSON(w io.Writer, entries []LogEntry) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(entries)
}

func exportText(w io.Writer, entries []LogEntry) error {
	for _, entry := range entries {
		var parts []string

		parts = append(parts, fmt.Sprintf("[%s]", entry.Timestamp.Format("2006-01-02 15:04:05.000")))
		parts = append(parts, entry.Level, "-", entry.Message)

		var context []string
		if entry.Stage != "" {
			context = append(context, fmt.Sprintf("stage=%s", entry.Stage))
		}
		if entry.Unit != "" {
			context = append(context, fmt.Sprintf("unit=%s", entry.Unit))
		}
		if len(context) > 0 {
			parts = append(parts, fmt.Sprintf("(%s)", strings.Join(context, ", ")))
		}

		if len(entry.Attrs) > 0 {
			attrsJSON, _ := json.Marshal(entry.Attrs)
			parts = append(parts, string(attrsJSON))
		}

		if _, err := fmt.Fprintln(w, strings.Join(parts, " ")); err != nil {
			return fmt.Errorf("failed to write text entry: %w", err)
		}
	}
	return nil
}

func exportCSV(w io.Writer, entries []LogEntry) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	headers := []string{"timestamp", "level", "message", "stage", "unit", "attrs"}
	if err := writer.Write(headers); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, entry := range entries {
		attrsJSON := ""
		if len(entry.Attrs) > 0 {
			if b, err := json.Marshal(entry.Attrs); err == nil {
				attrsJSON = string(b)
			}
		}

		record := []string{
			entry.Timestamp.Format(time.RFC3339Nano),
			entry.Level,
			entry.Message,
			entry.Stage,
			entry.Unit,
			attrsJSON,
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	return writer.Error()
}
