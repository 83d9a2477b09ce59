package auth

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// SaveFile writes one "name=value" line per header, sorted by name.
func SaveFile(path string, h Headers) error {
	f, err := os.Create(path)
	if err != nil {
		return &PersistError{Op: OpSave, Path: path, Err: err}
	}

	w := bufio.NewWriter(f)
	for _, name := range h.Names() {
		if _, err := fmt.Fprintf(w, "%s=%s\n", name, h[name]); err != nil {
			f.Close()
			return &PersistError{Op: OpSave, Path: path, Err: err}
		}
	}

	if err := w.Flush(); err != nil {
		f.Close()
		return &PersistError{Op: OpSave, Path: path, Err: err}
	}
	if err := f.Close(); err != nil {
		return &PersistError{Op: OpSave, Path: path, Err: err}
	}
	return nil
}

// LoadFile reads a header file written by SaveFile. The first '=' on each
// line separates name from value; blank lines are ignored.
func LoadFile(path string) (Headers, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &PersistError{Op: OpLoad, Path: path, Err: err}
	}
	defer f.Close()

	headers := make(Headers)
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSuffix(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}

		name, value, ok := strings.Cut(line, "=")
		if !ok {
			return nil, &PersistError{Op: OpLoad, Path: path, Line: lineNo, Err: ErrInvalidLine}
		}
		if !validHeaderName(name) {
			return nil, &PersistError{Op: OpLoad, Path: path, Line: lineNo, Err: fmt.Errorf("invalid header name %q", name)}
		}
		headers.Set(name, value)
	}
	if err := scanner.Err(); err != nil {
		return nil, &PersistError{Op: OpLoad, Path: path, Err: err}
	}

	return headers, nil
}

// validHeaderName reports whether name is an RFC 7230 token.
func validHeaderName(name string) bool {
	if name == "" {
		return false
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		case strings.IndexByte("!#$%&'*+-.^_`|~", c) >= 0:
		default:
			return false
		}
	}
	return true
}
