package server

import (
	"bufio"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

// LogHandlers serves the tail of the JSON log file.
type LogHandlers struct {
	path string
	log  zerolog.Logger
}

// NewLogHandlers creates log handlers reading path. An empty path disables
// the endpoints.
func NewLogHandlers(path string, log zerolog.Logger) *LogHandlers {
	return &LogHandlers{
		path: path,
		log:  log.With().Str("component", "log_handlers").Logger(),
	}
}

// LogContentResponse represents log content
type LogContentResponse struct {
	Lines  []string `json:"lines"`
	Total  int      `json:"total"`
	Status string   `json:"status"`
}

// HandleGetLogs returns the last lines of the log file, optionally filtered
// by level and search term.
func (h *LogHandlers) HandleGetLogs(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, 100, strings.ToUpper(r.URL.Query().Get("level")), r.URL.Query().Get("search"))
}

// HandleGetErrors returns only error lines.
func (h *LogHandlers) HandleGetErrors(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, 500, "ERROR", "")
}

func (h *LogHandlers) serve(w http.ResponseWriter, r *http.Request, defaultLines int, level, search string) {
	if h.path == "" {
		writeJSONResponse(w, http.StatusServiceUnavailable, map[string]string{"error": "log file not configured"})
		return
	}

	lines := defaultLines
	if raw := r.URL.Query().Get("lines"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			lines = min(parsed, 10000)
		}
	}

	tail, err := tailFile(h.path, lines)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		h.log.Error().Err(err).Msg("Failed to read log file")
		writeJSONResponse(w, http.StatusInternalServerError, map[string]string{"error": "failed to read logs"})
		return
	}

	writeJSONResponse(w, http.StatusOK, LogContentResponse{
		Lines:  filterLogs(tail, level, search),
		Total:  len(tail),
		Status: "ok",
	})
}

// tailFile returns the last n lines of path.
func tailFile(path string, n int) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	ring := make([]string, 0, n)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		if len(ring) == n {
			ring = ring[1:]
		}
		ring = append(ring, scanner.Text())
	}
	return ring, scanner.Err()
}

// filterLogs filters log lines by level and search term
func filterLogs(lines []string, level string, search string) []string {
	filtered := make([]string, 0, len(lines))
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if level != "" && !lineMatchesLevel(line, level) {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(line), strings.ToLower(search)) {
			continue
		}
		filtered = append(filtered, line)
	}
	return filtered
}

// lineMatchesLevel checks if a log line matches the specified level
func lineMatchesLevel(line string, level string) bool {
	// zerolog JSON: {"level":"error",...}
	if strings.Contains(line, `"level"`) {
		return strings.Contains(strings.ToLower(line), `"level":"`+strings.ToLower(level)+`"`)
	}

	upperLine := strings.ToUpper(line)
	upperLevel := strings.ToUpper(level)
	return strings.Contains(upperLine, upperLevel+":") ||
		strings.Contains(upperLine, "["+upperLevel+"]") ||
		strings.Contains(upperLine, " "+upperLevel+" ")
}

func writeJSONResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
