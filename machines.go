package services

import (
	"context"
	"sort"
	"sync"
	"time"
)

// ActionFunc is a transition side effect. It receives the machine's live
// context map and the event data that triggered the transition; mutations
// to machineCtx are visible to later actions and to GetContext.
type ActionFunc func(ctx context.Context, machineCtx map[string]any, eventData map[string]any) error

// Action is either a callable or a log-only tag when Fn is nil.
type Action struct {
	Tag string
	Fn  ActionFunc
}

// Transition is one entry of a state's transition table: the target state
// plus an optional ordered action list executed before the state commits.
type Transition struct {
	Target  string
	Actions []Action
}

// StateTransitions maps event names to transitions for a single state.
type StateTransitions map[string]Transition

// MachineConfig is the declarative definition handed to RegisterMachine.
// InitialState is not validated against States; a machine registered with
// an unknown initial state simply fails every transition attempt.
type MachineConfig struct {
	Name         string
	InitialState string
	States       map[string]StateTransitions
	Context      map[string]any
}

// Machine is the snapshot returned by GetMachine. AvailableEvents lists the
// outgoing event names of the current state, sorted.
type Machine struct {
	ID              string         `json:"id"`
	Name            string         `json:"name"`
	InitialState    string         `json:"initial_state"`
	CurrentState    string         `json:"current_state"`
	Context         map[string]any `json:"context,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	AvailableEvents []string       `json:"available_events"`
}

// TransitionRecord is one append-only history entry. History lives and dies
// with its machine.
type TransitionRecord struct {
	MachineID string         `json:"machine_id"`
	From      string         `json:"from"`
	To        string         `json:"to"`
	Event     string         `json:"event"`
	EventData map[string]any `json:"event_data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// TransitionResult reports a transition attempt. Domain failures (unknown
// machine, no table entry for the event) come back as Success=false with
// CurrentState untouched, never as a raised error.
type TransitionResult struct {
	Success       bool   `json:"success"`
	PreviousState string `json:"previous_state,omitempty"`
	CurrentState  string `json:"current_state"`
	Event         string `json:"event,omitempty"`
	Error         string `json:"error,omitempty"`
}

type machineState struct {
	id           string
	name         string
	initialState string
	currentState string
	states       map[string]StateTransitions
	context      map[string]any
	createdAt    time.Time
	history      []TransitionRecord
}

// MachineRegistryOption customizes registry construction.
type MachineRegistryOption func(*MachineRegistry)

// WithRegistryLogger overrides the registry logger.
func WithRegistryLogger(logger Logger) MachineRegistryOption {
	return func(r *MachineRegistry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithRegistryClock injects a custom clock (useful for tests).
func WithRegistryClock(clock func() time.Time) MachineRegistryOption {
	return func(r *MachineRegistry) {
		if clock != nil {
			r.now = clock
		}
	}
}

// MachineRegistry tracks flat finite state machines: declared states, a
// per-state event-to-target transition table, a mutable context map, and
// append-only transition history. Transitions are legal only when the
// current state's table has an entry for the event; there are no guards
// beyond table presence and no nested or parallel states.
type MachineRegistry struct {
	mu          sync.Mutex
	initialized bool
	machines    map[string]*machineState
	logger      Logger
	now         func() time.Time
}

// NewMachineRegistry returns an uninitialized registry. Call Initialize
// before use.
func NewMachineRegistry(opts ...MachineRegistryOption) *MachineRegistry {
	r := &MachineRegistry{
		logger: defLogger{},
		now:    time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}

	return r
}

func (r *MachineRegistry) Name() string { return "machines" }

// Initialize prepares the registry. Repeated calls are no-op successes.
func (r *MachineRegistry) Initialize() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.initialized {
		return nil
	}

	r.machines = make(map[string]*machineState)
	r.initialized = true
	return nil
}

// RegisterMachine stores a machine with currentState set to the configured
// initial state. Re-registering an id overwrites the previous machine,
// history included.
func (r *MachineRegistry) RegisterMachine(id string, cfg MachineConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.initialized {
		return ErrNotInitialized
	}

	states := make(map[string]StateTransitions, len(cfg.States))
	for name, table := range cfg.States {
		copied := make(StateTransitions, len(table))
		for event, tr := range table {
			copied[event] = tr
		}
		states[name] = copied
	}

	r.machines[id] = &machineState{
		id:           id,
		name:         cfg.Name,
		initialState: cfg.InitialState,
		currentState: cfg.InitialState,
		states:       states,
		context:      clonePayload(cfg.Context),
		createdAt:    r.now(),
	}

	if _, ok := states[cfg.InitialState]; !ok {
		r.logger.Warn("machine %q registered with initial state %q not present in its state table", id, cfg.InitialState)
	}

	return nil
}

// Transition applies an event to a machine. When the current state has a
// table entry for the event, the entry's actions run sequentially first
// (best effort: an action error is logged and the rest still run, the
// pending transition is not rolled back), then the state commits and a
// history record is appended.
func (r *MachineRegistry) Transition(ctx context.Context, machineID, event string, eventData map[string]any) (*TransitionResult, error) {
	r.mu.Lock()

	if !r.initialized {
		r.mu.Unlock()
		return nil, ErrNotInitialized
	}

	m, ok := r.machines[machineID]
	if !ok {
		r.mu.Unlock()
		return &TransitionResult{Success: false, Error: resultMachineNotFound}, nil
	}

	table := m.states[m.currentState]
	tr, ok := table[event]
	if !ok {
		current := m.currentState
		r.mu.Unlock()
		return &TransitionResult{
			Success:      false,
			CurrentState: current,
			Error:        resultInvalidTransition,
		}, nil
	}

	from := m.currentState
	machineCtx := m.context
	actions := tr.Actions
	r.mu.Unlock()

	for _, action := range actions {
		r.runAction(ctx, machineID, event, action, machineCtx, eventData)
	}

	r.mu.Lock()
	m.currentState = tr.Target
	m.history = append(m.history, TransitionRecord{
		MachineID: machineID,
		From:      from,
		To:        tr.Target,
		Event:     event,
		EventData: clonePayload(eventData),
		Timestamp: r.now(),
	})
	r.mu.Unlock()

	return &TransitionResult{
		Success:       true,
		PreviousState: from,
		CurrentState:  tr.Target,
		Event:         event,
	}, nil
}

// runAction executes one action with fault isolation. Tag-only actions are
// logged and skipped.
func (r *MachineRegistry) runAction(ctx context.Context, machineID, event string, action Action, machineCtx, eventData map[string]any) {
	if action.Fn == nil {
		r.logger.Debug("machine %q action %q (event %s)", machineID, action.Tag, event)
		return
	}

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("machine %q action %q panic: %v", machineID, action.Tag, rec)
		}
	}()

	if err := action.Fn(ctx, machineCtx, eventData); err != nil {
		r.logger.Error("machine %q action %q error: %v", machineID, action.Tag, err)
	}
}

// GetCurrentState returns the machine's current state name.
func (r *MachineRegistry) GetCurrentState(machineID string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.initialized {
		return "", ErrNotInitialized
	}

	m, ok := r.machines[machineID]
	if !ok {
		return "", ErrMachineNotFound
	}
	return m.currentState, nil
}

// GetContext returns a shallow copy of the machine's context map.
func (r *MachineRegistry) GetContext(machineID string) (map[string]any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.initialized {
		return nil, ErrNotInitialized
	}

	m, ok := r.machines[machineID]
	if !ok {
		return nil, ErrMachineNotFound
	}
	return clonePayload(m.context), nil
}

// UpdateContext shallow-merges patch into the machine's context.
func (r *MachineRegistry) UpdateContext(machineID string, patch map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.initialized {
		return ErrNotInitialized
	}

	m, ok := r.machines[machineID]
	if !ok {
		return ErrMachineNotFound
	}

	if m.context == nil {
		m.context = make(map[string]any, len(patch))
	}
	for k, v := range patch {
		m.context[k] = v
	}
	return nil
}

// GetTransitionHistory returns the most recent limit records in
// chronological order. limit <= 0 returns the full history.
func (r *MachineRegistry) GetTransitionHistory(machineID string, limit int) ([]TransitionRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.initialized {
		return nil, ErrNotInitialized
	}

	m, ok := r.machines[machineID]
	if !ok {
		return nil, ErrMachineNotFound
	}

	history := m.history
	if limit > 0 && limit < len(history) {
		history = history[len(history)-limit:]
	}

	out := make([]TransitionRecord, len(history))
	copy(out, history)
	return out, nil
}

// RemoveMachine deletes a machine and its history. Returns false for
// unknown ids.
func (r *MachineRegistry) RemoveMachine(machineID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.initialized {
		return false, ErrNotInitialized
	}

	if _, ok := r.machines[machineID]; !ok {
		return false, nil
	}

	delete(r.machines, machineID)
	return true, nil
}

// GetMachine returns a snapshot including the current state's available
// outgoing event names.
func (r *MachineRegistry) GetMachine(machineID string) (*Machine, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.initialized {
		return nil, ErrNotInitialized
	}

	m, ok := r.machines[machineID]
	if !ok {
		return nil, ErrMachineNotFound
	}

	events := make([]string, 0, len(m.states[m.currentState]))
	for event := range m.states[m.currentState] {
		events = append(events, event)
	}
	sort.Strings(events)

	return &Machine{
		ID:              m.id,
		Name:            m.name,
		InitialState:    m.initialState,
		CurrentState:    m.currentState,
		Context:         clonePayload(m.context),
		CreatedAt:       m.createdAt,
		AvailableEvents: events,
	}, nil
}

// Status reports the initialized flag plus machine and history counts.
func (r *MachineRegistry) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	records := 0
	for _, m := range r.machines {
		records += len(m.history)
	}

	return Status{
		Name:        r.Name(),
		Initialized: r.initialized,
		Counts: map[string]int{
			"machines":    len(r.machines),
			"transitions": records,
		},
	}
}
