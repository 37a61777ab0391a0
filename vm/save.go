package vm

import (
	"bytes"
	"encoding/gob"
)

// Save encodes m's full state as a self-describing gob stream. The format is
// opaque and versionless by design, per spec §6: callers treat it as a blob,
// never as something to hand-edit or diff.
func Save(m *Machine) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(m.GetState()); err != nil {
		return nil, &IOError{Op: "save", Err: err}
	}
	return buf.Bytes(), nil
}

// Load decodes a gob stream produced by Save into a fresh Machine. Mode is
// always forced to ModeStep regardless of what was saved, per spec §6: a
// restored session always resumes under single-step control rather than
// continuing whatever run/run-to/ret mode was in flight when it was saved.
func Load(data []byte) (*Machine, error) {
	var s Snapshot
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return nil, &IOError{Op: "load", Err: err}
	}

	m := &Machine{
		Annotations: make(map[Word]string),
		Breakpoints: make(map[Word]struct{}),
	}
	s.Mode = ModeStep
	m.SetState(s)
	return m, nil
}
