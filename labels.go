package detectstream

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
)

// LoadLabels reads the labels used to train the Model from the given text file.
// It should contain one label per line, the line number being the class id.
func LoadLabels(file string) ([]string, error) {

	// open the file
	f, err := os.Open(file)

	if err != nil {
		return nil, errors.Wrap(err, "error opening label file")
	}

	defer f.Close()

	return ParseLabels(f)
}

// ParseLabels reads one label per line from r.  Surrounding whitespace and
// carriage returns are trimmed and trailing blank lines are ignored, however
// blank lines between labels are kept so class ids stay aligned.
func ParseLabels(r io.Reader) ([]string, error) {

	// create a scanner to read the file.
	scanner := bufio.NewScanner(r)

	var labels []string

	// read and trim each line
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		labels = append(labels, line)
	}

	// check for errors during scanning
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "error reading labels")
	}

	// drop trailing empty lines left by a final newline
	for len(labels) > 0 && labels[len(labels)-1] == "" {
		labels = labels[:len(labels)-1]
	}

	if len(labels) == 0 {
		return nil, errors.New("no labels found")
	}

	return labels, nil
}
