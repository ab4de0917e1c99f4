package queue

import "fmt"

// Status — статус записи в очереди.
type Status string

const (
	StatusWaiting             Status = "waiting"
	StatusNotified            Status = "notified"
	StatusCheckedIn           Status = "checked_in"
	StatusPendingVerification Status = "pending_verification"
	StatusInService           Status = "in_service"
	StatusCompleted           Status = "completed"
	StatusNoShow              Status = "no_show"
	StatusCancelled           Status = "cancelled"
)

// Event — событие, переводящее запись из одного статуса в другой.
type Event string

const (
	EventNotify         Event = "notify"          // сотрудник зовёт клиента / подошла очередь
	EventCheckInAuto    Event = "checkin_auto"    // геопроверка пройдена автоматически
	EventCheckInPending Event = "checkin_pending" // геопроверка требует подтверждения
	EventConfirm        Event = "confirm"         // сотрудник подтвердил прибытие
	EventReject         Event = "reject"          // сотрудник отклонил прибытие
	EventCall           Event = "call"            // клиент приглашён на обслуживание
	EventComplete       Event = "complete"        // обслуживание завершено
	EventNoShow         Event = "no_show"         // клиент не явился
	EventCancel         Event = "cancel"          // отмена клиентом или сотрудником
)

// Таблица допустимых переходов. Всё, чего здесь нет, отклоняется
// с ErrInvalidTransition, запись остаётся без изменений.
var transitions = map[Status]map[Event]Status{
	StatusWaiting: {
		EventNotify: StatusNotified,
		EventCancel: StatusCancelled,
	},
	StatusNotified: {
		EventCheckInAuto:    StatusCheckedIn,
		EventCheckInPending: StatusPendingVerification,
		EventCancel:         StatusCancelled,
		EventNoShow:         StatusNoShow,
	},
	StatusPendingVerification: {
		EventConfirm: StatusCheckedIn,
		EventReject:  StatusCancelled,
	},
	StatusCheckedIn: {
		EventCall:   StatusInService,
		EventCancel: StatusCancelled,
		EventNoShow: StatusNoShow,
	},
	StatusInService: {
		EventComplete: StatusCompleted,
	},
}

// NextStatus возвращает статус, в который переводит событие ev из статуса
// from, либо ErrInvalidTransition.
func NextStatus(from Status, ev Event) (Status, error) {
	if to, ok := transitions[from][ev]; ok {
		return to, nil
	}
	return "", fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, ev)
}

// IsActive — считается ли статус активной частью очереди (учитывается
// в позициях).
func IsActive(s Status) bool {
	return s == StatusWaiting || s == StatusNotified
}

// IsTerminal — конечный статус, дальнейшие переходы запрещены.
func IsTerminal(s Status) bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusNoShow
}

// NonTerminalStatuses — статусы, при которых запись считается активной
// с точки зрения инварианта «одна запись на клиента в салоне».
func NonTerminalStatuses() []string {
	return []string{
		string(StatusWaiting),
		string(StatusNotified),
		string(StatusCheckedIn),
		string(StatusPendingVerification),
		string(StatusInService),
	}
}

// ActiveStatuses — статусы активной части очереди.
func ActiveStatuses() []string {
	return []string{string(StatusWaiting), string(StatusNotified)}
}
