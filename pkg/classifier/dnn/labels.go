package dnn

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// LoadLabels reads one label per line from path.
func LoadLabels(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("dnn: open labels: %w", err)
	}
	defer f.Close()
	return ParseLabels(f)
}

// ParseLabels reads one label per line. Blank lines are kept as empty
// labels so indices stay aligned with the model output; a trailing blank
// line is dropped.
func ParseLabels(r io.Reader) ([]string, error) {
	var labels []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		labels = append(labels, strings.TrimSpace(sc.Text()))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("dnn: read labels: %w", err)
	}
	for len(labels) > 0 && labels[len(labels)-1] == "" {
		labels = labels[:len(labels)-1]
	}
	return labels, nil
}
