// Package store provides in-memory storage for plots and their sweeps.
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lemonberrylabs/i64-plotter/pkg/ast"
	"github.com/lemonberrylabs/i64-plotter/pkg/runtime"
	"github.com/lemonberrylabs/i64-plotter/pkg/types"
)

// PlotState represents the state of a stored plot.
type PlotState string

const (
	PlotActive PlotState = "ACTIVE"
)

// SweepState represents the state of a sweep.
type SweepState string

const (
	SweepActive    SweepState = "ACTIVE"
	SweepSucceeded SweepState = "SUCCEEDED"
	SweepFailed    SweepState = "FAILED"
	SweepCancelled SweepState = "CANCELLED"
)

// Plot represents a stored plot definition.
type Plot struct {
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	State       PlotState `json:"state"`
	RevisionID  string    `json:"revisionId"`
	CreateTime  time.Time `json:"createTime"`
	UpdateTime  time.Time `json:"updateTime"`
	SourceCode  string    `json:"sourceContents"`

	Definition *ast.Plot `json:"-"`
}

// ID returns the last segment of the plot name.
func (p *Plot) ID() string {
	return strings.TrimPrefix(p.Name, "plots/")
}

// Sweep represents one evaluation of a plot over its range.
type Sweep struct {
	Name           string        `json:"name"`
	State          SweepState    `json:"state"`
	Range          runtime.Range `json:"range"`
	X              string        `json:"x"`
	Y              string        `json:"y"`
	XValues        []int64       `json:"xValues,omitempty"`
	YValues        []int64       `json:"yValues,omitempty"`
	Faults         []SweepFault  `json:"faults,omitempty"`
	Error          string        `json:"error,omitempty"`
	StartTime      time.Time     `json:"startTime"`
	EndTime        time.Time     `json:"endTime,omitempty"`
	PlotRevisionID string        `json:"plotRevisionId"`
}

// SweepFault describes an arithmetic fault that stopped a sweep.
type SweepFault struct {
	Kind      string `json:"kind"`
	Axis      string `json:"axis"`
	Parameter int64  `json:"parameter"`
	Message   string `json:"message"`
}

// Store is a thread-safe in-memory storage for plots and sweeps.
type Store struct {
	mu     sync.RWMutex
	plots  map[string]*Plot
	sweeps map[string]*Sweep

	// Counter for generating revision IDs
	revCounter int64
}

// New creates a new empty store.
func New() *Store {
	return &Store{
		plots:  make(map[string]*Plot),
		sweeps: make(map[string]*Sweep),
	}
}

// PlotName returns the resource name of the plot with the given ID.
func PlotName(id string) string {
	return "plots/" + id
}

// CreatePlot stores a new plot definition under plots/{id}.
func (s *Store) CreatePlot(id, sourceCode string, def *ast.Plot) (*Plot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := PlotName(id)
	if _, exists := s.plots[name]; exists {
		return nil, types.NewAlreadyExistsError(fmt.Sprintf("plot '%s' already exists", name))
	}

	s.revCounter++
	now := time.Now()
	p := &Plot{
		Name:        name,
		Description: def.Description,
		State:       PlotActive,
		RevisionID:  fmt.Sprintf("%06d-000", s.revCounter),
		CreateTime:  now,
		UpdateTime:  now,
		SourceCode:  sourceCode,
		Definition:  def,
	}
	s.plots[name] = p
	return p.copy(), nil
}

// GetPlot retrieves a plot by its full name.
func (s *Store) GetPlot(name string) (*Plot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.plots[name]
	if !ok {
		return nil, types.NewNotFoundError(fmt.Sprintf("plot '%s' not found", name))
	}
	return p.copy(), nil
}

// ListPlots returns all plots ordered by name.
func (s *Store) ListPlots() []*Plot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*Plot, 0, len(s.plots))
	for _, p := range s.plots {
		result = append(result, p.copy())
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

// UpdatePlot replaces a plot's definition and bumps its revision.
func (s *Store) UpdatePlot(name, sourceCode string, def *ast.Plot) (*Plot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.plots[name]
	if !ok {
		return nil, types.NewNotFoundError(fmt.Sprintf("plot '%s' not found", name))
	}

	s.revCounter++
	p.SourceCode = sourceCode
	p.Definition = def
	p.Description = def.Description
	p.RevisionID = fmt.Sprintf("%06d-000", s.revCounter)
	p.UpdateTime = time.Now()

	return p.copy(), nil
}

// DeletePlot removes a plot and its sweeps.
func (s *Store) DeletePlot(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.plots[name]; !ok {
		return types.NewNotFoundError(fmt.Sprintf("plot '%s' not found", name))
	}
	delete(s.plots, name)

	prefix := name + "/sweeps/"
	for sn := range s.sweeps {
		if strings.HasPrefix(sn, prefix) {
			delete(s.sweeps, sn)
		}
	}
	return nil
}

// CreateSweep creates an active sweep record of r for the current revision
// of a plot.
func (s *Store) CreateSweep(plotName string, r runtime.Range) (*Sweep, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.plots[plotName]
	if !ok {
		return nil, types.NewNotFoundError(fmt.Sprintf("plot '%s' not found", plotName))
	}

	sw := &Sweep{
		Name:           fmt.Sprintf("%s/sweeps/%s", plotName, uuid.NewString()),
		State:          SweepActive,
		Range:          r,
		X:              p.Definition.XExpr.Text(),
		Y:              p.Definition.YExpr.Text(),
		StartTime:      time.Now(),
		PlotRevisionID: p.RevisionID,
	}
	s.sweeps[sw.Name] = sw
	return sw.copy(), nil
}

// GetSweep retrieves a sweep by name.
func (s *Store) GetSweep(name string) (*Sweep, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sw, ok := s.sweeps[name]
	if !ok {
		return nil, types.NewNotFoundError(fmt.Sprintf("sweep '%s' not found", name))
	}
	return sw.copy(), nil
}

// ListSweeps returns all sweeps of a plot ordered by start time.
func (s *Store) ListSweeps(plotName string) []*Sweep {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*Sweep
	prefix := plotName + "/sweeps/"
	for name, sw := range s.sweeps {
		if strings.HasPrefix(name, prefix) {
			result = append(result, sw.copy())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].StartTime.Equal(result[j].StartTime) {
			return result[i].Name < result[j].Name
		}
		return result[i].StartTime.Before(result[j].StartTime)
	})
	return result
}

// CompleteSweep stores the values of a finished sweep. A sweep stopped by a
// fault is FAILED and keeps the values evaluated before the fault.
func (s *Store) CompleteSweep(name string, res *runtime.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sw, ok := s.sweeps[name]
	if !ok {
		return types.NewNotFoundError(fmt.Sprintf("sweep '%s' not found", name))
	}

	sw.XValues = res.X.Slice()
	sw.YValues = res.Y.Slice()
	sw.EndTime = time.Now()
	sw.State = SweepSucceeded

	if res.Failed() {
		sw.State = SweepFailed
		sw.Faults = make([]SweepFault, len(res.Faults))
		for i, f := range res.Faults {
			sw.Faults[i] = SweepFault{
				Kind:      f.Kind.String(),
				Axis:      string(f.Axis),
				Parameter: f.Parameter,
				Message:   f.Err.Error(),
			}
		}
		sw.Error = res.Err().Error()
	}
	return nil
}

// FailSweep marks a sweep that could not run to completion. Cancellation
// leaves it CANCELLED.
func (s *Store) FailSweep(name string, err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sw, ok := s.sweeps[name]
	if !ok {
		return types.NewNotFoundError(fmt.Sprintf("sweep '%s' not found", name))
	}

	if sw.State != SweepActive {
		return fmt.Errorf("sweep '%s' is not active (state: %s)", name, sw.State)
	}

	sw.State = SweepFailed
	if errors.Is(err, runtime.ErrCancelled) || errors.Is(err, context.Canceled) {
		sw.State = SweepCancelled
	}
	sw.EndTime = time.Now()
	sw.Error = err.Error()
	return nil
}

func (p *Plot) copy() *Plot {
	cp := *p
	return &cp
}

func (sw *Sweep) copy() *Sweep {
	cp := *sw
	return &cp
}
