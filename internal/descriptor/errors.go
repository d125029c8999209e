package descriptor

import "errors"

// Ошибки валидации дескриптора.
var (
	// ErrUnexpectedKeys — сущность содержит неизвестные ключи.
	ErrUnexpectedKeys = errors.New("unexpected keys")

	// ErrMissingField — отсутствует обязательное поле.
	ErrMissingField = errors.New("missing required field")

	// ErrInvalidField — поле имеет неверный тип или формат.
	ErrInvalidField = errors.New("invalid field value")

	// ErrUndefinedPayload — узел ссылается на несуществующий payload.
	ErrUndefinedPayload = errors.New("undefined payload")

	// ErrUndefinedNetwork — узел ссылается на несуществующую сеть.
	ErrUndefinedNetwork = errors.New("undefined network")

	// ErrInvalidCommand — команда init не соответствует ни одной
	// из допустимых сокращённых форм.
	ErrInvalidCommand = errors.New("invalid init command")

	// ErrInvalidPortMapping — строка порта не разбирается как
	// "remote" или "local:remote".
	ErrInvalidPortMapping = errors.New("invalid port mapping")

	// ErrManifestExpired — манифест payload просрочен или ещё не
	// вступил в силу.
	ErrManifestExpired = errors.New("manifest out of validity period")
)

// DescriptorError — ошибка загрузки дескриптора с контекстом.
type DescriptorError struct {
	Entity  string // сущность, где произошла ошибка (имя узла, payload и т.п.)
	Field   string // поле, вызвавшее ошибку
	Message string // описание ошибки
	Err     error  // базовая ошибка
}

// Error реализует интерфейс error.
func (e *DescriptorError) Error() string {
	if e.Entity != "" {
		return e.Entity + ": " + e.Message
	}
	return e.Message
}

// Unwrap возвращает базовую ошибку.
func (e *DescriptorError) Unwrap() error {
	return e.Err
}

// NewDescriptorError создаёт новую ошибку дескриптора.
func NewDescriptorError(entity, field, message string, err error) *DescriptorError {
	return &DescriptorError{
		Entity:  entity,
		Field:   field,
		Message: message,
		Err:     err,
	}
}
