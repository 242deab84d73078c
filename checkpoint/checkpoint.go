// Package checkpoint persists the dataset after each completed operator so
// an interrupted run can resume from the last completed position.
package checkpoint

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kbukum/dataflow/compress"
	"github.com/kbukum/dataflow/dataset"
	"github.com/kbukum/dataflow/loader"
	"github.com/kbukum/dataflow/logger"
	"github.com/kbukum/dataflow/op"
	"github.com/kbukum/dataflow/recipe"
)

const (
	stateFile    = "state.json"
	dataFile     = "latest.jsonl"
	stateVersion = 1
)

// State describes the last saved checkpoint.
type State struct {
	Version   int                   `json:"version"`
	RunID     string                `json:"run_id"`
	Completed []recipe.OperatorSpec `json:"completed"`
	LastIndex int                   `json:"last_index"`
	Records   int                   `json:"records"`
	Codec     compress.Codec        `json:"codec"`
	UpdatedAt time.Time             `json:"updated_at"`
}

// Manager saves and restores checkpoints.
type Manager interface {
	// Available reports whether a checkpoint exists that plan can resume
	// from: its completed specs must be a prefix of plan.
	Available(plan []recipe.OperatorSpec) bool
	Load(ctx context.Context) (*dataset.Dataset, State, error)
	// RemainingPlan drops the operators the checkpoint already covers.
	RemainingPlan(state State, ops []op.Operator) []op.Operator
	// Save records ds as the result of plan[:lastIndex+1].
	Save(ctx context.Context, ds *dataset.Dataset, plan []recipe.OperatorSpec, lastIndex int) error
}

// FileManager keeps one checkpoint in a directory.
type FileManager struct {
	Dir   string
	Codec compress.Codec
	RunID string
	Log   *logger.Logger
}

// NewFileManager returns a manager writing to dir.
func NewFileManager(dir string, codec compress.Codec, runID string, log *logger.Logger) *FileManager {
	if log == nil {
		log = logger.NewNop()
	}
	if codec == "" {
		codec = compress.None
	}
	return &FileManager{Dir: dir, Codec: codec, RunID: runID, Log: log.WithComponent("checkpoint")}
}

func (m *FileManager) readState() (State, error) {
	var st State
	b, err := os.ReadFile(filepath.Join(m.Dir, stateFile))
	if err != nil {
		return st, err
	}
	if err := json.Unmarshal(b, &st); err != nil {
		return st, fmt.Errorf("checkpoint: state: %w", err)
	}
	if st.Version != stateVersion {
		return st, fmt.Errorf("checkpoint: unsupported state version %d", st.Version)
	}
	return st, nil
}

func (m *FileManager) dataPath(c compress.Codec) string {
	return filepath.Join(m.Dir, dataFile+c.Ext())
}

// Available implements Manager.
func (m *FileManager) Available(plan []recipe.OperatorSpec) bool {
	st, err := m.readState()
	if err != nil {
		return false
	}
	if _, err := os.Stat(m.dataPath(st.Codec)); err != nil {
		return false
	}
	if !IsPrefix(st.Completed, plan) {
		m.Log.Info("checkpoint does not match the current plan", logger.Fields("completed", len(st.Completed)))
		return false
	}
	return true
}

// Load implements Manager.
func (m *FileManager) Load(ctx context.Context) (*dataset.Dataset, State, error) {
	st, err := m.readState()
	if err != nil {
		return nil, st, fmt.Errorf("checkpoint: %w", err)
	}
	r, err := compress.Open(m.dataPath(st.Codec))
	if err != nil {
		return nil, st, fmt.Errorf("checkpoint: %w", err)
	}
	defer r.Close()
	if err := ctx.Err(); err != nil {
		return nil, st, err
	}
	ds, err := dataset.ReadJSONL(r)
	if err != nil {
		return nil, st, fmt.Errorf("checkpoint: %w", err)
	}
	if ds.Len() != st.Records {
		return nil, st, fmt.Errorf("checkpoint: expected %d records, found %d", st.Records, ds.Len())
	}
	m.Log.Info("checkpoint restored", logger.Fields("last_index", st.LastIndex, logger.FieldRecordsOut, ds.Len()))
	return ds, st, nil
}

// RemainingPlan implements Manager.
func (m *FileManager) RemainingPlan(st State, ops []op.Operator) []op.Operator {
	return RemainingPlan(st, ops)
}

// RemainingPlan keeps the plan positions after st.LastIndex. A fused
// filter that straddles it keeps only its pending members.
func RemainingPlan(st State, ops []op.Operator) []op.Operator {
	return loader.After(ops, st.LastIndex)
}

// Save implements Manager. The data file is written first and both files
// are replaced by rename, so a crash leaves the previous checkpoint intact.
func (m *FileManager) Save(ctx context.Context, ds *dataset.Dataset, plan []recipe.OperatorSpec, lastIndex int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if lastIndex < 0 || lastIndex >= len(plan) {
		return fmt.Errorf("checkpoint: index %d outside plan of %d", lastIndex, len(plan))
	}
	if err := os.MkdirAll(m.Dir, 0o755); err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}

	var buf bytes.Buffer
	w, err := m.Codec.NewWriter(&buf)
	if err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}
	if err := dataset.WriteJSONL(w, ds); err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}
	if err := writeAtomic(m.dataPath(m.Codec), buf.Bytes()); err != nil {
		return err
	}

	st := State{
		Version:   stateVersion,
		RunID:     m.RunID,
		Completed: plan[:lastIndex+1],
		LastIndex: lastIndex,
		Records:   ds.Len(),
		Codec:     m.Codec,
		UpdatedAt: time.Now().UTC(),
	}
	b, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}
	if err := writeAtomic(filepath.Join(m.Dir, stateFile), b); err != nil {
		return err
	}
	m.Log.Debug("checkpoint saved", logger.Fields("last_index", lastIndex, logger.FieldRecordsOut, ds.Len()))
	return nil
}

func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}
	return nil
}

// IsPrefix reports whether done is a prefix of plan. Specs are compared by
// their JSON form, which orders map keys.
func IsPrefix(done, plan []recipe.OperatorSpec) bool {
	if len(done) > len(plan) {
		return false
	}
	for i := range done {
		a, errA := json.Marshal(done[i])
		b, errB := json.Marshal(plan[i])
		if errA != nil || errB != nil || !bytes.Equal(a, b) {
			return false
		}
	}
	return true
}
