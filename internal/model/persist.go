package model

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// snapshot is the on-disk form of a fitted ensemble.
type snapshot struct {
	NModels   int                 `json:"n_models"`
	Workers   int                 `json:"workers"`
	NFeatures int                 `json:"n_features"`
	Base      estimatorSnapshot   `json:"base"`
	Reference estimatorSnapshot   `json:"reference"`
	Members   []estimatorSnapshot `json:"members"`
}

// estimatorSnapshot tags a serialized estimator with its concrete kind.
type estimatorSnapshot struct {
	Kind  string          `json:"kind"`
	State json.RawMessage `json:"state"`
}

const (
	kindLinear = "linear"
	kindForest = "forest"
)

// Save writes the fitted ensemble to path as JSON.
func (m *MultiModel) Save(path string) error {
	if m.reference == nil || len(m.members) == 0 {
		return ErrNotFitted
	}
	snap := snapshot{
		NModels:   m.nModels,
		Workers:   m.workers,
		NFeatures: m.nFeatures,
	}
	var err error
	if snap.Base, err = encodeEstimator(m.base); err != nil {
		return fmt.Errorf("save model: %w", err)
	}
	if snap.Reference, err = encodeEstimator(m.reference); err != nil {
		return fmt.Errorf("save model: %w", err)
	}
	snap.Members = make([]estimatorSnapshot, len(m.members))
	for k, e := range m.members {
		if snap.Members[k], err = encodeEstimator(e); err != nil {
			return fmt.Errorf("save model: member %d: %w", k, err)
		}
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("save model: encode: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("save model: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("save model: %w", err)
	}
	return nil
}

// Load restores a fitted ensemble from path, replacing any current state.
func (m *MultiModel) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("load model: %w", err)
	}
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("load model: decode: %w", err)
	}
	base, err := decodeEstimator(snap.Base)
	if err != nil {
		return fmt.Errorf("load model: %w", err)
	}
	reference, err := decodeEstimator(snap.Reference)
	if err != nil {
		return fmt.Errorf("load model: %w", err)
	}
	members := make([]Estimator, len(snap.Members))
	for k, es := range snap.Members {
		if members[k], err = decodeEstimator(es); err != nil {
			return fmt.Errorf("load model: member %d: %w", k, err)
		}
	}
	m.base = base
	m.nModels = snap.NModels
	m.workers = snap.Workers
	m.nFeatures = snap.NFeatures
	m.reference = reference
	m.members = members
	return nil
}

func encodeEstimator(e Estimator) (estimatorSnapshot, error) {
	var kind string
	switch e.(type) {
	case *LinearRegression:
		kind = kindLinear
	case *ForestRegressor:
		kind = kindForest
	default:
		return estimatorSnapshot{}, fmt.Errorf("unsupported estimator type %T", e)
	}
	state, err := json.Marshal(e)
	if err != nil {
		return estimatorSnapshot{}, err
	}
	return estimatorSnapshot{Kind: kind, State: state}, nil
}

func decodeEstimator(snap estimatorSnapshot) (Estimator, error) {
	switch snap.Kind {
	case kindLinear:
		e := &LinearRegression{}
		return e, json.Unmarshal(snap.State, e)
	case kindForest:
		e := &ForestRegressor{}
		return e, json.Unmarshal(snap.State, e)
	default:
		return nil, fmt.Errorf("unknown estimator kind %q", snap.Kind)
	}
}
