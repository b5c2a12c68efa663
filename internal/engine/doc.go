// Package engine содержит вычисления над топологией deployment.
//
// Включает:
//   - graph.go    — граф зависимостей узлов и топологическая сортировка
//   - validate.go — проверка целостности топологии
//   - diff.go     — вычисление упорядоченных шагов из старой и новой топологии
//   - order.go    — проверка порядка шагов относительно зависимостей
//   - apply.go    — применение шагов к топологии
//
// Engine не хранит состояние и не делает I/O: все функции чистые.
package engine
