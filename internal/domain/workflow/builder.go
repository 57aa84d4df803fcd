package workflow

import (
	"context"
	"fmt"
	"sort"
)

// GuardFunc decides whether a transition may be taken
type GuardFunc func(ctx context.Context) bool

// StateMachineBuilder collects transitions and builds machines from them
type StateMachineBuilder interface {
	// Configure returns the configuration for the given source state
	Configure(state State) StateConfiguration

	// Build creates an independent machine starting in initialState
	Build(initialState State) StateMachine
}

// StateConfiguration configures transitions out of one state
type StateConfiguration interface {
	// Permit allows trigger to move to toState
	Permit(trigger Trigger, toState State) StateConfiguration

	// PermitIf allows trigger to move to toState when guard passes
	PermitIf(trigger Trigger, toState State, guard GuardFunc) StateConfiguration
}

type transition struct {
	toState State
	guard   GuardFunc
}

type transitionTable map[State]map[Trigger][]transition

type stateConfig struct {
	transitions map[Trigger][]transition
}

type stateMachineBuilder struct {
	configurations map[State]*stateConfig
}

type stateMachine struct {
	currentState State
	table        transitionTable
}

// NewBuilder creates a new state machine builder
func NewBuilder() StateMachineBuilder {
	return &stateMachineBuilder{
		configurations: make(map[State]*stateConfig),
	}
}

// Configure panics on an unknown state; transition tables are static.
func (b *stateMachineBuilder) Configure(state State) StateConfiguration {
	if !state.IsValid() {
		panic(fmt.Sprintf("invalid state: %s", state))
	}

	config, exists := b.configurations[state]
	if !exists {
		config = &stateConfig{
			transitions: make(map[Trigger][]transition),
		}
		b.configurations[state] = config
	}

	return config
}

func (b *stateMachineBuilder) Build(initialState State) StateMachine {
	if !initialState.IsValid() {
		panic(fmt.Sprintf("invalid initial state: %s", initialState))
	}

	table := make(transitionTable, len(b.configurations))
	for state, config := range b.configurations {
		byTrigger := make(map[Trigger][]transition, len(config.transitions))
		for trigger, transitions := range config.transitions {
			byTrigger[trigger] = append([]transition(nil), transitions...)
		}
		table[state] = byTrigger
	}

	return &stateMachine{
		currentState: initialState,
		table:        table,
	}
}

func (c *stateConfig) Permit(trigger Trigger, toState State) StateConfiguration {
	return c.PermitIf(trigger, toState, nil)
}

func (c *stateConfig) PermitIf(trigger Trigger, toState State, guard GuardFunc) StateConfiguration {
	if !toState.IsValid() {
		panic(fmt.Sprintf("invalid target state: %s", toState))
	}

	c.transitions[trigger] = append(c.transitions[trigger], transition{
		toState: toState,
		guard:   guard,
	})

	return c
}

func (m *stateMachine) State() State {
	return m.currentState
}

// CanFire does not evaluate guards.
func (m *stateMachine) CanFire(trigger Trigger) bool {
	return len(m.table[m.currentState][trigger]) > 0
}

func (m *stateMachine) Fire(ctx context.Context, trigger Trigger) error {
	transitions := m.table[m.currentState][trigger]
	if len(transitions) == 0 {
		return fmt.Errorf("%w: cannot %s from %s", ErrInvalidTransition, trigger, m.currentState)
	}

	// first passing guard wins
	for _, t := range transitions {
		if t.guard == nil || t.guard(ctx) {
			m.currentState = t.toState
			return nil
		}
	}

	return fmt.Errorf("%w: %s from %s", ErrGuardFailed, trigger, m.currentState)
}

// PermittedTriggers is sorted for stable API output.
func (m *stateMachine) PermittedTriggers() []Trigger {
	byTrigger := m.table[m.currentState]
	triggers := make([]Trigger, 0, len(byTrigger))
	for trigger, transitions := range byTrigger {
		if len(transitions) > 0 {
			triggers = append(triggers, trigger)
		}
	}
	sort.Slice(triggers, func(i, j int) bool { return triggers[i] < triggers[j] })
	return triggers
}
