// Package cli реализует инструмент командной строки Golemata.
//
// # Обзор
//
// Команда start поднимает сессию приложения в текущем процессе:
// загружает дескрипторы, запускает оркестратор и пишет потоки
// state/data/log в каталог запуска. Остальные команды — клиенты
// control API запущенной сессии, работают через HTTP и не трогают
// внутренности процесса.
//
// # Ключевые компоненты
//
// ## Client
//
// HTTP-клиент control API. Инкапсулирует все HTTP-запросы,
// парсинг ответов (DataResponse, ListResponse, ErrorResponse)
// и обработку ошибок.
//
//	client := cli.NewClient("http://127.0.0.1:4578")
//	state, err := client.GetState()
//
// ## Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Таблицы (text/tabwriter) — по умолчанию
//   - JSON (json.MarshalIndent) — с флагом --json
//
// Данные выводятся в stdout, сообщения (Success/Error) — в stderr.
// Это позволяет использовать pipe: golemata data --json | jq .
//
// ## Commands
//
//   - start: запуск сессии приложения
//   - verify: валидация дескрипторов без запуска
//   - state, data, sessions: наблюдение за запущенной сессией
//   - command: stop, suspend, exec на узле
//
// Каждая группа создаётся через фабричную функцию (NewStartCmd и т.д.),
// принимающую clientFn и outputFn — замыкания для ленивого создания
// Client и Output после парсинга PersistentFlags.
package cli
