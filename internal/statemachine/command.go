package statemachine

import "bytes"

type CommandKind int

const (
	CommandUnknown CommandKind = iota
	CommandSet
	CommandDelete
	CommandClear
)

func (k CommandKind) String() string {
	switch k {
	case CommandSet:
		return "set"
	case CommandDelete:
		return "del"
	case CommandClear:
		return "clr"
	default:
		return "unknown"
	}
}

// Command is a decoded committed entry.
type Command struct {
	Kind  CommandKind
	Key   string
	Value string
}

// isSpace matches ASCII whitespace only; other bytes, multi-byte runes
// included, belong to the token.
func isSpace(r rune) bool {
	switch r {
	case ' ', '\t', '\n', '\v', '\f', '\r':
		return true
	}
	return false
}

func fields(data []byte) []string {
	raw := bytes.FieldsFunc(data, isSpace)
	out := make([]string, len(raw))
	for i, f := range raw {
		out[i] = string(f)
	}
	return out
}

// DecodeCommand tokenizes data on ASCII whitespace and dispatches on the first token.
// It never fails: anything that is not a complete set/del/clr, including an
// empty entry, decodes to CommandUnknown. Tokens past the ones a verb needs
// are ignored.
func DecodeCommand(data []byte) Command {
	parts := fields(data)
	if len(parts) == 0 {
		return Command{Kind: CommandUnknown}
	}

	switch parts[0] {
	case "set":
		if len(parts) < 3 {
			return Command{Kind: CommandUnknown}
		}
		return Command{Kind: CommandSet, Key: parts[1], Value: parts[2]}
	case "del":
		if len(parts) < 2 {
			return Command{Kind: CommandUnknown}
		}
		return Command{Kind: CommandDelete, Key: parts[1]}
	case "clr":
		return Command{Kind: CommandClear}
	default:
		return Command{Kind: CommandUnknown}
	}
}

// Encode renders c back into the command wire form. Unknown encodes as an
// empty command.
func (c Command) Encode() []byte {
	switch c.Kind {
	case CommandSet:
		return []byte("set " + c.Key + " " + c.Value)
	case CommandDelete:
		return []byte("del " + c.Key)
	case CommandClear:
		return []byte("clr")
	default:
		return nil
	}
}
