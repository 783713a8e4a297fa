// Package logging provides structured logging for phyloflow runs.
//
// Every pipeline invocation writes JSON-formatted entries to
// {outputDir}/phyloflow.log via log/slog. The file is opened in append
// mode so a resumed or rerun pipeline keeps a single chronological
// history next to its artifacts.
//
// # Loggers
//
// NewLogger opens the plain append-only log. NewLoggerWithRotation wraps
// it in a RotatingWriter that rotates the file once it passes a size
// limit, keeping numbered (optionally gzipped) backups. Child loggers
// created with WithStage and WithUnit carry those attributes on every
// entry, which is what makes post-hoc filtering by stage or locus
// possible:
//
//	log, _ := logging.NewLogger(outputDir, "info")
//	defer log.Close()
//	stageLog := log.WithStage("align").WithUnit("45at314145")
//	stageLog.Info("unit finished", "duration", elapsed)
//
// # Aggregation
//
// AggregateLogs reads the live log plus its rotated backups and returns
// the decoded entries oldest first. FilterLogs narrows them by level,
// stage, unit, time range, or message substring, and ExportLogEntries
// renders the result as text, JSON, or CSV. The `phyloflow logs` command
// is a thin wrapper over these three functions.
package logging
