// Package deployupdate реализует жизненный цикл deployment update.
//
//	stage → (add_step)* → commit → finalize
//
// Stage фиксирует снимок текущей топологии и упорядоченные шаги.
// Commit выполняется в эксклюзивной секции deployment (single-flight):
// применяет шаги, атомарно допускает executions через maintenance gate
// и отправляет их в очередь. До finalize deployment занят состоянием updating.
// Finalize по статусам executions делает новую топологию канонической
// или откатывает deployment к снимку.
package deployupdate
