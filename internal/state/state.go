package state

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sokinpui/retrofit/internal/fs"
)

const (
	stateDirName  = ".retrofit"
	stateFileName = "state.retrofit"
	// none stands in for an empty field so every record keeps its line count.
	none = "-"
)

// Actions recorded in the journal.
const (
	ActionCreate = "create"
	ActionModify = "modify"
)

// Operation is one target file written by an apply run.
type Operation struct {
	Path        string
	Action      string
	ContentHash string // SHA256 of the file after the run
	PrevHash    string // SHA256 before the run, empty for creates
	Snapshot    string // copy of the file before the run, empty for creates
	Retro       string // retrofitted content that was written
}

// HistoryEntry represents one apply run.
type HistoryEntry struct {
	Timestamp  int64
	Reference  string
	Operations []Operation
}

// State is the whole journal.
type State struct {
	History      []HistoryEntry
	CurrentIndex int
}

// Manager handles the lifecycle of the journal file.
type Manager struct {
	statePath string
	state     *State
	StateDir  string
}

// New loads the journal kept under root, creating its directory.
func New(root string) (*Manager, error) {
	stateDir := filepath.Join(root, stateDirName)
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return nil, fmt.Errorf("state: create state directory: %w", err)
	}
	m := &Manager{
		statePath: filepath.Join(stateDir, stateFileName),
		StateDir:  stateDir,
	}
	if err := m.load(); err != nil {
		return nil, err
	}
	return m, nil
}

// The journal is plain text: the current index, then one block per run
// separated by a blank line. A block is the timestamp, the reference and six
// lines per operation.
func (m *Manager) load() error {
	m.state = &State{CurrentIndex: -1}

	data, err := os.ReadFile(m.statePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("state: read %s: %w", m.statePath, err)
	}

	content := strings.ReplaceAll(string(data), "\r\n", "\n")
	blocks := strings.Split(content, "\n\n")
	if len(blocks) == 0 || strings.TrimSpace(blocks[0]) == "" {
		return nil
	}

	index, err := strconv.Atoi(strings.TrimSpace(blocks[0]))
	if err != nil {
		return fmt.Errorf("state: invalid state file: could not parse current index: %w", err)
	}
	m.state.CurrentIndex = index

	for _, block := range blocks[1:] {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		lines := strings.Split(block, "\n")
		if len(lines) < 2 {
			return fmt.Errorf("state: invalid state file: incomplete history entry")
		}
		ts, err := strconv.ParseInt(lines[0], 10, 64)
		if err != nil {
			return fmt.Errorf("state: invalid state file: could not parse timestamp from '%s': %w", lines[0], err)
		}
		entry := HistoryEntry{Timestamp: ts, Reference: field(lines[1])}

		opLines := lines[2:]
		if len(opLines)%6 != 0 {
			return fmt.Errorf("state: invalid state file: incomplete operation record")
		}
		for i := 0; i < len(opLines); i += 6 {
			entry.Operations = append(entry.Operations, Operation{
				Action:      opLines[i],
				Path:        opLines[i+1],
				ContentHash: field(opLines[i+2]),
				PrevHash:    field(opLines[i+3]),
				Snapshot:    field(opLines[i+4]),
				Retro:       field(opLines[i+5]),
			})
		}
		m.state.History = append(m.state.History, entry)
	}

	if m.state.CurrentIndex >= len(m.state.History) || m.state.CurrentIndex < -1 {
		return fmt.Errorf("state: invalid state file: index %d out of range", m.state.CurrentIndex)
	}
	return nil
}

func field(s string) string {
	if s == none {
		return ""
	}
	return s
}

func orNone(s string) string {
	if s == "" {
		return none
	}
	return s
}

func (m *Manager) save() error {
	blocks := []string{strconv.Itoa(m.state.CurrentIndex)}

	for _, entry := range m.state.History {
		lines := []string{strconv.FormatInt(entry.Timestamp, 10), orNone(entry.Reference)}
		for _, op := range entry.Operations {
			lines = append(lines,
				op.Action,
				op.Path,
				orNone(op.ContentHash),
				orNone(op.PrevHash),
				orNone(op.Snapshot),
				orNone(op.Retro),
			)
		}
		blocks = append(blocks, strings.Join(lines, "\n"))
	}

	content := strings.Join(blocks, "\n\n") + "\n"
	if err := os.WriteFile(m.statePath, []byte(content), 0644); err != nil {
		return fmt.Errorf("state: write %s: %w", m.statePath, err)
	}
	return nil
}

// Write adds a run to the history, dropping anything that had been undone.
func (m *Manager) Write(reference string, operations []Operation) error {
	if m.state.CurrentIndex < len(m.state.History)-1 {
		m.state.History = m.state.History[:m.state.CurrentIndex+1]
	}
	m.state.History = append(m.state.History, HistoryEntry{
		Timestamp:  time.Now().UTC().Unix(),
		Reference:  reference,
		Operations: operations,
	})
	m.state.CurrentIndex++
	return m.save()
}

// GetOperationsToUndo returns the latest applied run and moves the pointer
// back.
func (m *Manager) GetOperationsToUndo() (*HistoryEntry, error) {
	if m.state.CurrentIndex < 0 {
		return nil, nil
	}
	entry := m.state.History[m.state.CurrentIndex]
	m.state.CurrentIndex--
	return &entry, m.save()
}

// GetOperationsToRedo returns the next undone run and moves the pointer
// forward.
func (m *Manager) GetOperationsToRedo() (*HistoryEntry, error) {
	next := m.state.CurrentIndex + 1
	if next >= len(m.state.History) {
		return nil, nil
	}
	m.state.CurrentIndex = next
	entry := m.state.History[next]
	return &entry, m.save()
}

// Change describes a target file an apply run is about to write.
type Change struct {
	Path     string
	Action   string
	PrevHash string
	Snapshot string
	Retro    string
}

// CreateOperations hashes the written files and returns operations sorted
// by path.
func CreateOperations(changes []Change) []Operation {
	ops := make([]Operation, 0, len(changes))
	for _, c := range changes {
		hash, err := fs.GetFileSHA256(c.Path)
		if err != nil {
			// An empty hash makes undo refuse this file.
			hash = ""
		}
		ops = append(ops, Operation{
			Path:        c.Path,
			Action:      c.Action,
			ContentHash: hash,
			PrevHash:    c.PrevHash,
			Snapshot:    c.Snapshot,
			Retro:       c.Retro,
		})
	}
	sort.Slice(ops, func(i, j int) bool {
		return ops[i].Path < ops[j].Path
	})
	return ops
}
