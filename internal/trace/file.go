package trace

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// WriteFile stores the canonical JSON of t at path. The file is replaced
// atomically, so a reader never sees a partial trace.
func WriteFile(path string, t ExecutionTrace) error {
	data, err := t.CanonicalJSON()
	if err != nil {
		return err
	}
	if err := writeFileAtomic(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write trace %s: %w", path, err)
	}
	return nil
}

// ReadFile loads a trace written by WriteFile and validates it.
func ReadFile(path string) (ExecutionTrace, error) {
	var t ExecutionTrace
	f, err := os.Open(path)
	if err != nil {
		return t, err
	}
	defer f.Close()

	dec := json.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&t); err != nil {
		return t, fmt.Errorf("read trace %s: %w", path, err)
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return t, fmt.Errorf("read trace %s: trailing content", path)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("read trace %s: %w", path, err)
	}
	return t, nil
}

func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		_ = tmp.Close()
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := io.Copy(tmp, bytes.NewReader(data)); err != nil {
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	committed = true
	return nil
}
