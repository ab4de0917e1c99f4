// Ошибки-значения пакета queue. Обработчики HTTP различают их через
// errors.Is и переводят в коды ответа API.
package queue

import "errors"

// ErrDuplicateActiveEntry — у клиента уже есть активная запись в очереди
// этого салона.
var ErrDuplicateActiveEntry = errors.New("duplicate active entry")

// ErrInvalidTransition — запрошенный переход статуса не предусмотрен
// таблицей переходов. Запись при этом не изменяется.
var ErrInvalidTransition = errors.New("invalid transition")

// ErrNoServices — при вступлении в очередь не выбрана ни одна услуга.
var ErrNoServices = errors.New("no services selected")

// ErrEntryNotFound — запись очереди не найдена.
var ErrEntryNotFound = errors.New("queue entry not found")

// ErrLocationNotFound — салон не найден.
var ErrLocationNotFound = errors.New("location not found")

// ErrLocationClosed — салон закрыт, вступление в очередь невозможно.
var ErrLocationClosed = errors.New("location closed")

// ErrLocationBusy — не удалось получить блокировку очереди салона за
// отведённое время. Ошибка повторяемая, решение о ретрае за вызывающим.
var ErrLocationBusy = errors.New("location queue busy")
