package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"qsar/internal/paths"
	"qsar/internal/slogutil"
)

var (
	logFollow bool
	logLines  int
	logKind   string
	logDate   string
)

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "View qsar logs",
	Long: `View the daily access or incident log.

Examples:
  qsar log                      # last 50 lines of today's incident log
  qsar log --kind access -n 100
  qsar log --date 2024-01-31    # older days are read even when gzipped
  qsar log -f                   # follow log output (tail -f)`,
	RunE: runLog,
}

func init() {
	logCmd.Flags().BoolVarP(&logFollow, "follow", "f", false, "Follow log output")
	logCmd.Flags().IntVarP(&logLines, "lines", "n", 50, "Number of lines to show")
	logCmd.Flags().StringVar(&logKind, "kind", "incident", "Log to show (access, incident)")
	logCmd.Flags().StringVar(&logDate, "date", "", "Day to show as YYYY-MM-DD (default today)")
	rootCmd.AddCommand(logCmd)
}

func runLog(cmd *cobra.Command, args []string) error {
	result, err := loadConfig()
	if err != nil {
		return err
	}
	dir, err := paths.LogDir(result.Config)
	if err != nil {
		return fmt.Errorf("failed to get log dir: %w", err)
	}

	var prefix string
	switch logKind {
	case "access":
		prefix = paths.AccessLogPrefix(dir)
	case "incident":
		prefix = paths.IncidentLogPrefix(dir)
	default:
		return fmt.Errorf("unknown log kind %q (want access or incident)", logKind)
	}

	day := time.Now()
	if logDate != "" {
		day, err = time.ParseInLocation("2006-01-02", logDate, time.Local)
		if err != nil {
			return fmt.Errorf("invalid --date: %w", err)
		}
	}

	out := cmd.OutOrStdout()
	logPath := resolveLogPath(paths.DailyLogPath(prefix, day))
	if logPath == "" {
		fmt.Fprintln(out, "No logs found.")
		fmt.Fprintln(out)
		fmt.Fprintf(out, "Log file location: %s\n", paths.DailyLogPath(prefix, day))
		return nil
	}

	if logFollow {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()
		return followLogFile(ctx, out, logPath)
	}
	return showLogLines(out, logPath, logLines)
}

// resolveLogPath returns path, or its gzipped sibling, whichever exists.
func resolveLogPath(path string) string {
	for _, p := range []string{path, path + ".gz"} {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

func showLogLines(w io.Writer, path string, n int) error {
	file, err := slogutil.OpenLogFile(path)
	if err != nil {
		return err
	}
	defer func() { _ = file.Close() }()

	// Keep the last N lines in a ring
	ring := make([]string, 0, n)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		if n <= 0 {
			continue
		}
		if len(ring) == n {
			ring = ring[1:]
		}
		ring = append(ring, scanner.Text())
	}
	for _, line := range ring {
		fmt.Fprintln(w, line)
	}
	return scanner.Err()
}

func followLogFile(ctx context.Context, w io.Writer, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = file.Close() }()

	if _, err := file.Seek(0, io.SeekEnd); err != nil {
		return err
	}
	fmt.Fprintf(w, "Following %s (Ctrl+C to stop)\n\n", path)

	reader := bufio.NewReader(file)
	for {
		line, err := reader.ReadString('\n')
		if line != "" {
			fmt.Fprint(w, line)
		}
		if err == nil {
			continue
		}
		if err != io.EOF {
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(100 * time.Millisecond):
		}
	}
}
