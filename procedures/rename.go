package procedures

import "github.com/junsevith/kompilator/ast"

// renameCommands returns a copy of cmds with every identifier reference
// substituted through rename, the "swap-through-map" mechanic of
// swap_vars.rs. A name absent from rename is quarantined as
// `@unid@<name>` rather than left alone or treated as fatal here —
// symtab.Table.Add will reject a genuine collision, and Read/Write will
// reject a genuine undeclared reference, so this path only exists as a
// defensive guardrail.
func renameCommands(cmds []ast.Command, rename map[string]string) []ast.Command {
	out := make([]ast.Command, len(cmds))
	for i, c := range cmds {
		out[i] = renameCommand(c, rename)
	}
	return out
}

func lookup(rename map[string]string, name string) string {
	if n, ok := rename[name]; ok {
		return n
	}
	return "@unid@" + name
}

func renameCommand(c ast.Command, rename map[string]string) ast.Command {
	switch cmd := c.(type) {
	case ast.Assign:
		return ast.Assign{
			Dest:  renameIdent(cmd.Dest, rename),
			Op:    cmd.Op,
			Left:  renameValue(cmd.Left, rename),
			Right: renameValue(cmd.Right, rename),
		}
	case ast.If:
		return ast.If{Cond: renameCondition(cmd.Cond, rename), Then: renameCommands(cmd.Then, rename)}
	case ast.IfElse:
		return ast.IfElse{
			Cond: renameCondition(cmd.Cond, rename),
			Then: renameCommands(cmd.Then, rename),
			Else: renameCommands(cmd.Else, rename),
		}
	case ast.While:
		return ast.While{Cond: renameCondition(cmd.Cond, rename), Body: renameCommands(cmd.Body, rename)}
	case ast.RepeatUntil:
		return ast.RepeatUntil{Body: renameCommands(cmd.Body, rename), Cond: renameCondition(cmd.Cond, rename)}
	case ast.ForUp:
		return ast.ForUp{
			Iter:  lookup(rename, cmd.Iter),
			Start: renameValue(cmd.Start, rename),
			End:   renameValue(cmd.End, rename),
			Body:  renameCommands(cmd.Body, rename),
		}
	case ast.ForDown:
		return ast.ForDown{
			Iter:  lookup(rename, cmd.Iter),
			Start: renameValue(cmd.Start, rename),
			End:   renameValue(cmd.End, rename),
			Body:  renameCommands(cmd.Body, rename),
		}
	case ast.Call:
		args := make([]string, len(cmd.Args))
		for i, a := range cmd.Args {
			args[i] = lookup(rename, a)
		}
		return ast.Call{Name: cmd.Name, Args: args}
	case ast.Read:
		return ast.Read{Dest: renameIdent(cmd.Dest, rename)}
	case ast.Write:
		return ast.Write{Src: renameValue(cmd.Src, rename)}
	default:
		panic("procedures: unsupported command type in inline rename")
	}
}

func renameCondition(c ast.Condition, rename map[string]string) ast.Condition {
	return ast.Condition{Left: renameValue(c.Left, rename), Right: renameValue(c.Right, rename), Op: c.Op}
}

func renameValue(v ast.Value, rename map[string]string) ast.Value {
	switch val := v.(type) {
	case ast.Literal:
		return val
	case ast.Ident:
		return ast.Ident{Identifier: renameIdent(val.Identifier, rename)}
	default:
		panic("procedures: unsupported value type in inline rename")
	}
}

func renameIdent(id ast.Identifier, rename map[string]string) ast.Identifier {
	switch v := id.(type) {
	case ast.Variable:
		return ast.Variable{Name_: lookup(rename, v.Name_)}
	case ast.ArrayLiteralIndex:
		return ast.ArrayLiteralIndex{Name_: lookup(rename, v.Name_), Index: v.Index}
	case ast.ArrayVarIndex:
		return ast.ArrayVarIndex{Name_: lookup(rename, v.Name_), Index: lookup(rename, v.Index)}
	default:
		panic("procedures: unsupported identifier type in inline rename")
	}
}
