package runner

import "errors"

// Ошибки оркестратора жизненного цикла.
var (
	// ErrAlreadyStarted — повторный вызов Start на живом runner.
	ErrAlreadyStarted = errors.New("runner already started")

	// ErrNotStarted — операция требует запущенного runner.
	ErrNotStarted = errors.New("runner not started")

	// ErrUnresolvedPayload — узел ссылается на неразрешимый payload
	// в момент развёртывания.
	ErrUnresolvedPayload = errors.New("unresolved payload at instantiation")

	// ErrUnresolvedNetwork — узел ссылается на неразрешимую сеть
	// в момент развёртывания.
	ErrUnresolvedNetwork = errors.New("unresolved network at instantiation")

	// ErrNoFreePorts — у аллокатора закончились локальные порты.
	ErrNoFreePorts = errors.New("no free local ports")

	// ErrPortTaken — запрошенный локальный порт уже занят.
	ErrPortTaken = errors.New("local port already taken")

	// ErrUnknownNode — команда адресована необъявленному узлу.
	ErrUnknownNode = errors.New("unknown node")

	// ErrUnknownInstance — команда адресована несуществующей реплике.
	ErrUnknownInstance = errors.New("unknown instance index")
)
