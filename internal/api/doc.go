// Package api содержит HTTP API сервер.
//
// Структура:
//   - handler.go             — Handler с DI (сервисы, хранилища, logger)
//   - routes.go              — регистрация маршрутов для каждой версии API
//   - middleware.go          — middleware (auth, logging, metrics, recovery)
//   - format.go              — форматирование ответов по версии API
//   - response.go            — JSON-ответы и отображение ошибок в статусы
//   - dto.go                 — Data Transfer Objects (request/response)
//   - update_handler.go      — /deployment-updates
//   - maintenance_handler.go — /maintenance
//   - deployment_handler.go  — /deployments
//   - execution_handler.go   — /executions
//
// Каждый ресурс реализован один раз; версии v2.1 и v3 отличаются
// только Formatter, который выбирается при регистрации маршрута.
package api
