// Package dispatch передаёт executions workflows в очередь управления.
//
// Dispatcher строит ExecutionContext (маршрут, плагин, токен, bypass),
// допускает execution через maintenance gate и отправляет сообщение
// в Channel ровно один раз на вызов. Повторов при ошибке отправки нет:
// политика повторов принадлежит транспорту.
//
// Для commit используется пакетный путь: Prepare → Admit → Send,
// чтобы допуск всех executions одного commit был одним атомарным решением.
package dispatch
