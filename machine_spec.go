package services

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// machineSpec is the YAML shape of a declarative machine definition:
//
//	name: Upload
//	initial_state: idle
//	context:
//	  attempts: 0
//	states:
//	  idle:
//	    START: running
//	  running:
//	    FINISH: {target: done, actions: [notify]}
//	    RESET: idle
//
// A transition is either a bare target state name or a mapping carrying a
// target plus an ordered action name list.
type machineSpec struct {
	Name         string                               `yaml:"name"`
	InitialState string                               `yaml:"initial_state"`
	Context      map[string]any                       `yaml:"context"`
	States       map[string]map[string]transitionSpec `yaml:"states"`
}

type transitionSpec struct {
	Target  string
	Actions []string
}

func (t *transitionSpec) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		return node.Decode(&t.Target)
	}

	var obj struct {
		Target  string   `yaml:"target"`
		Actions []string `yaml:"actions"`
	}
	if err := node.Decode(&obj); err != nil {
		return err
	}
	if obj.Target == "" {
		return fmt.Errorf("transition at line %d: missing target", node.Line)
	}

	t.Target = obj.Target
	t.Actions = obj.Actions
	return nil
}

// ParseMachineConfig decodes a YAML machine definition into a
// MachineConfig. Action names are resolved against the provided table;
// unresolved names become log-only tags, matching the registry's
// best-effort action model.
func ParseMachineConfig(data []byte, actions map[string]ActionFunc) (MachineConfig, error) {
	var spec machineSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return MachineConfig{}, fmt.Errorf("machine spec decode: %w", err)
	}

	cfg := MachineConfig{
		Name:         spec.Name,
		InitialState: spec.InitialState,
		Context:      spec.Context,
		States:       make(map[string]StateTransitions, len(spec.States)),
	}

	for state, table := range spec.States {
		transitions := make(StateTransitions, len(table))
		for event, ts := range table {
			tr := Transition{Target: ts.Target}
			for _, name := range ts.Actions {
				tr.Actions = append(tr.Actions, Action{Tag: name, Fn: actions[name]})
			}
			transitions[event] = tr
		}
		cfg.States[state] = transitions
	}

	return cfg, nil
}
