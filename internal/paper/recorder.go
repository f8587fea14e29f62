package paper

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// JSONLRecorder appends executed trades to one JSON-lines file per UTC
// day under a results directory. Files rotate at the day boundary and
// every line is flushed immediately, so a crash loses at most the line
// being written.
type JSONLRecorder struct {
	mu   sync.Mutex
	dir  string
	day  string
	file *os.File
	w    *bufio.Writer
}

// NewJSONLRecorder creates the output directory if needed.
func NewJSONLRecorder(dir string) (*JSONLRecorder, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create trades dir %s: %w", dir, err)
	}
	return &JSONLRecorder{dir: dir}, nil
}

// Record writes one trade as a JSON line to the current day's file.
func (r *JSONLRecorder) Record(t Trade) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	day := t.Ts.UTC().Format("20060102")
	if day == "" || day != r.day {
		if err := r.rotateLocked(day); err != nil {
			return err
		}
	}
	enc := json.NewEncoder(r.w)
	if err := enc.Encode(t); err != nil {
		return fmt.Errorf("encode trade %d: %w", t.ID, err)
	}
	return r.w.Flush()
}

func (r *JSONLRecorder) rotateLocked(day string) error {
	if r.file != nil {
		r.w.Flush()
		r.file.Close()
		r.file = nil
	}
	path := filepath.Join(r.dir, "trades_"+day+".jsonl")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open trade log %s: %w", path, err)
	}
	r.file = f
	r.w = bufio.NewWriter(f)
	r.day = day
	return nil
}

// Close flushes and closes the current file.
func (r *JSONLRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return nil
	}
	r.w.Flush()
	err := r.file.Close()
	r.file = nil
	return err
}

// LoadTrades reads every trade recorded under dir, ordered by day then
// by line. It feeds Replay on restart; a missing directory is an empty
// history, not an error.
func LoadTrades(dir string) ([]Trade, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "trades_*.jsonl"))
	if err != nil {
		return nil, err
	}
	var trades []Trade
	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open trade log %s: %w", path, err)
		}
		sc := bufio.NewScanner(f)
		for sc.Scan() {
			line := sc.Bytes()
			if len(line) == 0 {
				continue
			}
			var t Trade
			if err := json.Unmarshal(line, &t); err != nil {
				f.Close()
				return nil, fmt.Errorf("decode trade in %s: %w", path, err)
			}
			trades = append(trades, t)
		}
		if err := sc.Err(); err != nil {
			f.Close()
			return nil, fmt.Errorf("read trade log %s: %w", path, err)
		}
		f.Close()
	}
	return trades, nil
}
