package descriptor

import "fmt"

// Command — одна init-команда узла: глагол плюс непрозрачные
// параметры, передаваемые провайдеру как есть.
type Command struct {
	// Verb — имя команды ("deploy", "start", "run", ...).
	Verb string `yaml:"verb" json:"verb"`

	// Params — параметры команды. Для сокращённой формы run
	// содержат единственный ключ "args".
	Params map[string]any `yaml:"params" json:"params"`
}

// MarshalYAML сериализует команду в словарную форму дескриптора
// {verb: params}, чтобы дерево Tree() загружалось обратно без потерь.
func (c Command) MarshalYAML() (any, error) {
	return map[string]any{c.Verb: c.Params}, nil
}

// RunCommand создаёт каноническую run-команду из argv-списка.
func RunCommand(args []string) Command {
	anyArgs := make([]any, len(args))
	for i, a := range args {
		anyArgs[i] = a
	}
	return Command{Verb: "run", Params: map[string]any{"args": anyArgs}}
}

// CanonicalizeCommands приводит список команд в любой из сокращённых
// форм к канонической. Используется и для init-команд дескриптора,
// и для входящих команд потока command.
func CanonicalizeCommands(entity string, raw any) ([]Command, error) {
	return canonicalizeInit(entity, raw)
}

// canonicalizeInit приводит список init-команд к канонической форме.
//
// Допустимые сокращённые формы:
//   - плоский argv-список строк → одна run-команда;
//   - список argv-списков → по одной run-команде на каждый;
//   - список словарей с единственным ключом:
//     {verb: argv-список} → params {"args": [...]},
//     {verb: словарь}     → params как есть.
//
// Словарь с более чем одним ключом — ошибка загрузки.
func canonicalizeInit(node string, raw any) ([]Command, error) {
	if raw == nil {
		return []Command{}, nil
	}

	list, ok := raw.([]any)
	if !ok {
		return nil, NewDescriptorError(node, "init",
			fmt.Sprintf("init must be a list, got %T", raw), ErrInvalidCommand)
	}
	if len(list) == 0 {
		return []Command{}, nil
	}

	// Плоский argv-список: все элементы — строки.
	if args, ok := stringSlice(list); ok {
		return []Command{RunCommand(args)}, nil
	}

	commands := make([]Command, 0, len(list))
	for i, item := range list {
		switch v := item.(type) {
		case []any:
			args, ok := stringSlice(v)
			if !ok {
				return nil, NewDescriptorError(node, "init",
					fmt.Sprintf("init[%d]: argv list must contain only strings", i),
					ErrInvalidCommand)
			}
			commands = append(commands, RunCommand(args))

		case map[string]any:
			cmd, err := commandFromMap(node, i, v)
			if err != nil {
				return nil, err
			}
			commands = append(commands, cmd)

		default:
			return nil, NewDescriptorError(node, "init",
				fmt.Sprintf("init[%d]: unsupported command form %T", i, item),
				ErrInvalidCommand)
		}
	}
	return commands, nil
}

// commandFromMap разбирает словарную форму {verb: argv-список | словарь}.
func commandFromMap(node string, idx int, m map[string]any) (Command, error) {
	if len(m) != 1 {
		return Command{}, NewDescriptorError(node, "init",
			fmt.Sprintf("init[%d]: command map must have exactly one key, got %d",
				idx, len(m)), ErrInvalidCommand)
	}

	for verb, params := range m {
		switch p := params.(type) {
		case []any:
			args, ok := stringSlice(p)
			if !ok {
				return Command{}, NewDescriptorError(node, "init",
					fmt.Sprintf("init[%d]: %s args must be strings", idx, verb),
					ErrInvalidCommand)
			}
			return RunCommand(args).withVerb(verb), nil

		case map[string]any:
			return Command{Verb: verb, Params: p}, nil

		default:
			return Command{}, NewDescriptorError(node, "init",
				fmt.Sprintf("init[%d]: %s params must be a list or a map", idx, verb),
				ErrInvalidCommand)
		}
	}
	// Недостижимо: len(m) == 1 гарантирует одну итерацию.
	return Command{}, ErrInvalidCommand
}

// withVerb возвращает копию команды с заменённым глаголом.
func (c Command) withVerb(verb string) Command {
	c.Verb = verb
	return c
}

// stringSlice преобразует []any в []string, если все элементы — строки.
func stringSlice(list []any) ([]string, bool) {
	out := make([]string, len(list))
	for i, item := range list {
		s, ok := item.(string)
		if !ok {
			return nil, false
		}
		out[i] = s
	}
	return out, true
}
