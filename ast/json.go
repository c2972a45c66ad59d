package ast

import (
	"encoding/json"
	"fmt"
)

// This file gives Program a JSON decoding, the "AST value delivered by
// an external parser" of spec.md §6 — since this compiler's scope
// starts after parsing, the CLI shell (cmd/kompilator) needs some
// concrete wire format to read a Program from, and JSON with a "type"
// discriminator on every interface-shaped node (Declaration,
// ArgumentDecl, Command, Value, Identifier) is the simplest one that
// needs no generated code.

type typeTag struct {
	Type string `json:"type"`
}

// UnmarshalJSON decodes a Program from the schema of spec.md §3.1.
func (p *Program) UnmarshalJSON(data []byte) error {
	var raw struct {
		Procedures   []json.RawMessage `json:"procedures"`
		Declarations []json.RawMessage `json:"declarations"`
		Commands     []json.RawMessage `json:"commands"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	procs := make([]*Procedure, len(raw.Procedures))
	for i, r := range raw.Procedures {
		proc := new(Procedure)
		if err := json.Unmarshal(r, proc); err != nil {
			return fmt.Errorf("ast: procedure %d: %w", i, err)
		}
		procs[i] = proc
	}
	decls, err := decodeDeclarations(raw.Declarations)
	if err != nil {
		return err
	}
	cmds, err := decodeCommands(raw.Commands)
	if err != nil {
		return err
	}
	p.Procedures, p.Declarations, p.Commands = procs, decls, cmds
	return nil
}

func (p *Procedure) UnmarshalJSON(data []byte) error {
	var raw struct {
		Name         string            `json:"name"`
		Arguments    []json.RawMessage `json:"arguments"`
		Declarations []json.RawMessage `json:"declarations"`
		Commands     []json.RawMessage `json:"commands"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	args, err := decodeArguments(raw.Arguments)
	if err != nil {
		return err
	}
	decls, err := decodeDeclarations(raw.Declarations)
	if err != nil {
		return err
	}
	cmds, err := decodeCommands(raw.Commands)
	if err != nil {
		return err
	}
	p.Name, p.Arguments, p.Declarations, p.Commands = raw.Name, args, decls, cmds
	return nil
}

func decodeDeclarations(raws []json.RawMessage) ([]Declaration, error) {
	out := make([]Declaration, len(raws))
	for i, r := range raws {
		d, err := decodeDeclaration(r)
		if err != nil {
			return nil, fmt.Errorf("ast: declaration %d: %w", i, err)
		}
		out[i] = d
	}
	return out, nil
}

func decodeDeclaration(r json.RawMessage) (Declaration, error) {
	var t typeTag
	if err := json.Unmarshal(r, &t); err != nil {
		return nil, err
	}
	switch t.Type {
	case "ScalarDecl":
		var v ScalarDecl
		return v, json.Unmarshal(r, &v)
	case "ArrayDecl":
		var v ArrayDecl
		return v, json.Unmarshal(r, &v)
	case "ConstDecl":
		var v ConstDecl
		return v, json.Unmarshal(r, &v)
	default:
		return nil, fmt.Errorf("ast: unknown declaration type %q", t.Type)
	}
}

func decodeArguments(raws []json.RawMessage) ([]ArgumentDecl, error) {
	out := make([]ArgumentDecl, len(raws))
	for i, r := range raws {
		var t typeTag
		if err := json.Unmarshal(r, &t); err != nil {
			return nil, fmt.Errorf("ast: argument %d: %w", i, err)
		}
		switch t.Type {
		case "ScalarArg":
			var v ScalarArg
			if err := json.Unmarshal(r, &v); err != nil {
				return nil, err
			}
			out[i] = v
		case "ArrayArg":
			var v ArrayArg
			if err := json.Unmarshal(r, &v); err != nil {
				return nil, err
			}
			out[i] = v
		default:
			return nil, fmt.Errorf("ast: unknown argument type %q", t.Type)
		}
	}
	return out, nil
}

func decodeCommands(raws []json.RawMessage) ([]Command, error) {
	out := make([]Command, len(raws))
	for i, r := range raws {
		c, err := decodeCommand(r)
		if err != nil {
			return nil, fmt.Errorf("ast: command %d: %w", i, err)
		}
		out[i] = c
	}
	return out, nil
}

func decodeCommand(r json.RawMessage) (Command, error) {
	var t typeTag
	if err := json.Unmarshal(r, &t); err != nil {
		return nil, err
	}
	switch t.Type {
	case "Assign":
		var raw struct {
			Dest  json.RawMessage `json:"dest"`
			Op    Operator        `json:"op"`
			Left  json.RawMessage `json:"left"`
			Right json.RawMessage `json:"right"`
		}
		if err := json.Unmarshal(r, &raw); err != nil {
			return nil, err
		}
		dest, err := decodeIdentifier(raw.Dest)
		if err != nil {
			return nil, err
		}
		left, err := decodeValue(raw.Left)
		if err != nil {
			return nil, err
		}
		right, err := decodeValue(raw.Right)
		if err != nil {
			return nil, err
		}
		return Assign{Dest: dest, Op: raw.Op, Left: left, Right: right}, nil

	case "If":
		var raw struct {
			Cond json.RawMessage   `json:"cond"`
			Then []json.RawMessage `json:"then"`
		}
		if err := json.Unmarshal(r, &raw); err != nil {
			return nil, err
		}
		cond, err := decodeCondition(raw.Cond)
		if err != nil {
			return nil, err
		}
		then, err := decodeCommands(raw.Then)
		if err != nil {
			return nil, err
		}
		return If{Cond: cond, Then: then}, nil

	case "IfElse":
		var raw struct {
			Cond json.RawMessage   `json:"cond"`
			Then []json.RawMessage `json:"then"`
			Else []json.RawMessage `json:"else"`
		}
		if err := json.Unmarshal(r, &raw); err != nil {
			return nil, err
		}
		cond, err := decodeCondition(raw.Cond)
		if err != nil {
			return nil, err
		}
		then, err := decodeCommands(raw.Then)
		if err != nil {
			return nil, err
		}
		els, err := decodeCommands(raw.Else)
		if err != nil {
			return nil, err
		}
		return IfElse{Cond: cond, Then: then, Else: els}, nil

	case "While":
		var raw struct {
			Cond json.RawMessage   `json:"cond"`
			Body []json.RawMessage `json:"body"`
		}
		if err := json.Unmarshal(r, &raw); err != nil {
			return nil, err
		}
		cond, err := decodeCondition(raw.Cond)
		if err != nil {
			return nil, err
		}
		body, err := decodeCommands(raw.Body)
		if err != nil {
			return nil, err
		}
		return While{Cond: cond, Body: body}, nil

	case "RepeatUntil":
		var raw struct {
			Body []json.RawMessage `json:"body"`
			Cond json.RawMessage   `json:"cond"`
		}
		if err := json.Unmarshal(r, &raw); err != nil {
			return nil, err
		}
		body, err := decodeCommands(raw.Body)
		if err != nil {
			return nil, err
		}
		cond, err := decodeCondition(raw.Cond)
		if err != nil {
			return nil, err
		}
		return RepeatUntil{Body: body, Cond: cond}, nil

	case "ForUp", "ForDown":
		var raw struct {
			Iter  string            `json:"iter"`
			Start json.RawMessage   `json:"start"`
			End   json.RawMessage   `json:"end"`
			Body  []json.RawMessage `json:"body"`
		}
		if err := json.Unmarshal(r, &raw); err != nil {
			return nil, err
		}
		start, err := decodeValue(raw.Start)
		if err != nil {
			return nil, err
		}
		end, err := decodeValue(raw.End)
		if err != nil {
			return nil, err
		}
		body, err := decodeCommands(raw.Body)
		if err != nil {
			return nil, err
		}
		if t.Type == "ForUp" {
			return ForUp{Iter: raw.Iter, Start: start, End: end, Body: body}, nil
		}
		return ForDown{Iter: raw.Iter, Start: start, End: end, Body: body}, nil

	case "Call":
		var v Call
		return v, json.Unmarshal(r, &v)

	case "Read":
		var raw struct {
			Dest json.RawMessage `json:"dest"`
		}
		if err := json.Unmarshal(r, &raw); err != nil {
			return nil, err
		}
		dest, err := decodeIdentifier(raw.Dest)
		if err != nil {
			return nil, err
		}
		return Read{Dest: dest}, nil

	case "Write":
		var raw struct {
			Src json.RawMessage `json:"src"`
		}
		if err := json.Unmarshal(r, &raw); err != nil {
			return nil, err
		}
		src, err := decodeValue(raw.Src)
		if err != nil {
			return nil, err
		}
		return Write{Src: src}, nil

	default:
		return nil, fmt.Errorf("ast: unknown command type %q", t.Type)
	}
}

func decodeCondition(r json.RawMessage) (Condition, error) {
	var raw struct {
		Left  json.RawMessage   `json:"left"`
		Right json.RawMessage   `json:"right"`
		Op    ConditionOperator `json:"op"`
	}
	if err := json.Unmarshal(r, &raw); err != nil {
		return Condition{}, err
	}
	left, err := decodeValue(raw.Left)
	if err != nil {
		return Condition{}, err
	}
	right, err := decodeValue(raw.Right)
	if err != nil {
		return Condition{}, err
	}
	return Condition{Left: left, Right: right, Op: raw.Op}, nil
}

func decodeValue(r json.RawMessage) (Value, error) {
	var t typeTag
	if err := json.Unmarshal(r, &t); err != nil {
		return nil, err
	}
	switch t.Type {
	case "Literal":
		var v Literal
		return v, json.Unmarshal(r, &v)
	case "Ident":
		var raw struct {
			Identifier json.RawMessage `json:"identifier"`
		}
		if err := json.Unmarshal(r, &raw); err != nil {
			return nil, err
		}
		id, err := decodeIdentifier(raw.Identifier)
		if err != nil {
			return nil, err
		}
		return Ident{Identifier: id}, nil
	default:
		return nil, fmt.Errorf("ast: unknown value type %q", t.Type)
	}
}

func decodeIdentifier(r json.RawMessage) (Identifier, error) {
	var t typeTag
	if err := json.Unmarshal(r, &t); err != nil {
		return nil, err
	}
	switch t.Type {
	case "Variable":
		var v Variable
		return v, json.Unmarshal(r, &v)
	case "ArrayLiteralIndex":
		var v ArrayLiteralIndex
		return v, json.Unmarshal(r, &v)
	case "ArrayVarIndex":
		var v ArrayVarIndex
		return v, json.Unmarshal(r, &v)
	default:
		return nil, fmt.Errorf("ast: unknown identifier type %q", t.Type)
	}
}
