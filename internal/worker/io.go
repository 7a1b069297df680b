package worker

import (
	"bufio"
	"io"
	"strings"
)

// readLine reads one newline-terminated protocol line. A final line without
// a terminator is still returned; a clean EOF surfaces as io.EOF.
func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		if err == io.EOF && line != "" {
			return strings.TrimSuffix(line, "\n"), nil
		}
		return "", err
	}
	return strings.TrimSuffix(line, "\n"), nil
}

func writeLine(w io.Writer, line string) error {
	_, err := io.WriteString(w, line+"\n")
	return err
}
