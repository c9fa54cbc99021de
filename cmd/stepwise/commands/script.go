package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/petrijr/stepwise"
	"github.com/petrijr/stepwise/pkg/api"
)

// Script operations.
const (
	opEdit    = "edit"
	opNext    = "next"
	opBack    = "back"
	opConfirm = "confirm"
	opWait    = "wait"
	opRestart = "restart"
	opExpect  = "expect"
)

// Script is a scripted wizard session:
//
//	flow: onboarding
//	owner: luigi
//	actions:
//	  - edit: {restaurantName: "Luigi's", language: en}
//	  - next
//	  - edit: {triggerPhrase: Hello Luigi}
//	  - wait
//	  - next
//	  - expect: {step: welcome}
type Script struct {
	Flow    string   `yaml:"flow"`
	Owner   string   `yaml:"owner"`
	Actions []Action `yaml:"actions"`
}

// Action is one scripted operation. Bare operations are written as
// scalars; edit and expect take a mapping.
type Action struct {
	Op     string
	Edits  []FieldEdit
	Expect Expectation
}

// FieldEdit sets one field. Edits are applied in document order.
type FieldEdit struct {
	Field string
	Value any
}

// Expectation fails the script when the session does not match.
type Expectation struct {
	Phase string `yaml:"phase"`
	Step  string `yaml:"step"`
}

// UnmarshalYAML accepts "next" or {edit: {...}} / {expect: {...}}.
func (a *Action) UnmarshalYAML(n *yaml.Node) error {
	switch n.Kind {
	case yaml.ScalarNode:
		switch n.Value {
		case opNext, opBack, opConfirm, opWait, opRestart:
			a.Op = n.Value
			return nil
		}
		return fmt.Errorf("line %d: unknown action %q", n.Line, n.Value)

	case yaml.MappingNode:
		if len(n.Content) != 2 {
			return fmt.Errorf("line %d: an action has exactly one key", n.Line)
		}
		key, body := n.Content[0], n.Content[1]
		switch key.Value {
		case opEdit:
			if body.Kind != yaml.MappingNode {
				return fmt.Errorf("line %d: edit takes a mapping of field: value", body.Line)
			}
			a.Op = opEdit
			for i := 0; i+1 < len(body.Content); i += 2 {
				var v any
				if err := body.Content[i+1].Decode(&v); err != nil {
					return fmt.Errorf("line %d: %w", body.Content[i+1].Line, err)
				}
				a.Edits = append(a.Edits, FieldEdit{Field: body.Content[i].Value, Value: v})
			}
			return nil
		case opExpect:
			a.Op = opExpect
			return body.Decode(&a.Expect)
		}
		return fmt.Errorf("line %d: unknown action %q", key.Line, key.Value)
	}
	return fmt.Errorf("line %d: malformed action", n.Line)
}

// LoadScript reads a script file.
func LoadScript(path string) (*Script, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseScript(f)
}

// ParseScript decodes a script.
func ParseScript(r io.Reader) (*Script, error) {
	var s Script
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("empty script")
		}
		return nil, fmt.Errorf("parse script: %w", err)
	}
	return &s, nil
}

// ErrExpectation is returned when an expect action does not match.
var ErrExpectation = errors.New("expectation failed")

// player runs a script against one session and reports each action to out.
type player struct {
	session     *stepwise.Session
	out         io.Writer
	waitTimeout time.Duration
}

func (p *player) play(ctx context.Context, actions []Action) error {
	for i, a := range actions {
		if err := p.step(ctx, a); err != nil {
			return fmt.Errorf("action %d (%s): %w", i+1, a.Op, err)
		}
	}
	return nil
}

func (p *player) step(ctx context.Context, a Action) error {
	s := p.session
	switch a.Op {
	case opEdit:
		for _, e := range a.Edits {
			if err := s.Edit(e.Field, e.Value); err != nil {
				return err
			}
			fmt.Fprintf(p.out, "edit %s\n", e.Field)
		}
		return nil

	case opNext:
		p.report(s.Next(ctx))
		return nil

	case opBack:
		p.report(s.Back())
		return nil

	case opConfirm:
		p.report(s.Confirm(ctx))
		return nil

	case opRestart:
		if err := s.Restart(); err != nil {
			return err
		}
		fmt.Fprintf(p.out, "restart %s\n", s.ID())
		return nil

	case opWait:
		wctx, cancel := context.WithTimeout(ctx, p.waitTimeout)
		defer cancel()
		return settle(wctx, s)

	case opExpect:
		snap := s.Snapshot()
		if a.Expect.Phase != "" && string(snap.Phase) != a.Expect.Phase {
			return fmt.Errorf("%w: phase %s, want %s", ErrExpectation, snap.Phase, a.Expect.Phase)
		}
		if a.Expect.Step != "" && snap.CurrentStep != a.Expect.Step {
			return fmt.Errorf("%w: step %s, want %s", ErrExpectation, snap.CurrentStep, a.Expect.Step)
		}
		return nil
	}
	return fmt.Errorf("unknown action %q", a.Op)
}

// report prints the outcome of a navigation. Refused transitions are part
// of a script's story, not failures.
func (p *player) report(snap api.SessionSnapshot, err error) {
	if err != nil {
		fmt.Fprintf(p.out, "blocked: %v\n", err)
		return
	}
	fmt.Fprintf(p.out, "step %s (%s) %.0f%%\n", snap.CurrentStep, snap.Phase, snap.Progress*100)
}

// settle waits for pending enrichment and in-flight uniqueness checks.
func settle(ctx context.Context, s *stepwise.Session) error {
	if err := s.WaitIdle(ctx); err != nil {
		return err
	}
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		checking := false
		for _, u := range s.Snapshot().Uniqueness {
			if u.Status == api.CheckChecking {
				checking = true
				break
			}
		}
		if !checking {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
