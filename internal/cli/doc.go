// Package cli реализует инструмент командной строки Helmsman.
//
// CLI работает через HTTP API (/api/v3) и не импортирует внутренние
// пакеты системы.
//
// # Client
//
// HTTP-клиент: bearer token, заголовок X-Requested-By, разбор
// конвертов {"data": ...} и {"error": {...}}. Ошибки сервера
// возвращаются как *APIError с кодом ошибки.
//
//	client := cli.NewClient("http://localhost:8080", token, "alice")
//	u, err := client.CommitUpdate(id)
//
// # Output
//
// Таблицы (text/tabwriter) по умолчанию, JSON с флагом --json.
// Данные выводятся в stdout, сообщения в stderr:
// helmsman update list --json | jq .
//
// # Commands
//
//   - update: list, stage, show, add-step, commit, finalize, discard
//   - maintenance: status, activate, deactivate
//   - deployment: show, put
//   - execution: start, show
//
// Blueprint и deployment читаются из YAML или JSON файлов (yaml.v3).
// Группы создаются фабриками (NewUpdateCmd и т.д.), принимающими
// clientFn и outputFn для ленивого создания Client и Output после
// парсинга PersistentFlags.
package cli
