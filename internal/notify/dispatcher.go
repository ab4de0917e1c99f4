// Пакет notify переводит переходы машины состояний и действия сотрудников
// в исходящие push-сообщения. Набор видов сообщений закрытый: каждый вид
// имеет свою структуру данных, произвольных полей нет.
package notify

import (
	"encoding/json"
	"log"

	"salon_queue/internal/models"
	"salon_queue/internal/queue"
)

// Sender — транспорт доставки (реализуется ws.Hub). Доставка best-effort:
// диспетчер не ждёт подтверждений, ошибки транспорта не поднимаются
// к вызвавшей операции.
type Sender interface {
	SendToCustomer(customerID uint, message []byte)
	SendToStaff(locationID uint, message []byte)
}

// Kind — вид push-сообщения.
type Kind string

const (
	KindQueueJoin          Kind = "queue_join"            // сотрудникам: новый клиент в очереди (звуковой сигнал)
	KindPositionUpdate     Kind = "queue_position_update" // клиенту: позиция/ожидание изменились
	KindCustomerArrived    Kind = "customer_arrived"      // сотрудникам: клиент отметился на месте
	KindVerificationNeeded Kind = "verification_needed"   // сотрудникам: прибытие требует подтверждения
	KindServiceStarting    Kind = "service_starting"      // клиенту: приглашён на обслуживание
	KindServiceCompleted   Kind = "service_completed"     // клиенту: обслуживание завершено
	KindNoShow             Kind = "no_show"               // клиенту: отмечена неявка
	KindEntryCancelled     Kind = "entry_cancelled"       // клиенту: запись отменена
	KindQueueNotify        Kind = "queue_notify"          // клиенту: сотрудник зовёт, с оценкой времени
	KindLiveViewers        Kind = "live_viewers_update"   // сотрудникам: число подключённых зрителей
)

// Message — кадр, уходящий в WebSocket. Data всегда одна из структур ниже,
// в соответствии с Type.
type Message struct {
	Type       Kind        `json:"type"`
	LocationID uint        `json:"location_id"`
	Data       interface{} `json:"data"`
}

type QueueJoinData struct {
	EntryID    uint `json:"entry_id"`
	CustomerID uint `json:"customer_id"`
	Position   int  `json:"position"`
	VoiceAlert bool `json:"voice_alert"`
}

type PositionUpdateData struct {
	EntryID              uint   `json:"entry_id"`
	Status               string `json:"status"`
	Position             *int   `json:"position"`
	EstimatedWaitMinutes int    `json:"estimated_wait_minutes"`
}

type ArrivalData struct {
	EntryID        uint     `json:"entry_id"`
	CustomerID     uint     `json:"customer_id"`
	DistanceMeters *float64 `json:"distance_meters,omitempty"`
	AutoApproved   bool     `json:"auto_approved"`
}

type StatusData struct {
	EntryID uint   `json:"entry_id"`
	Status  string `json:"status"`
}

type StaffNotifyData struct {
	EntryID          uint   `json:"entry_id"`
	EstimatedMinutes int    `json:"estimated_minutes"`
	Message          string `json:"message,omitempty"`
}

type LiveViewersData struct {
	Count int `json:"count"`
}

// Dispatcher рассылает сообщения через Sender. Реализует queue.Dispatcher.
type Dispatcher struct {
	sender Sender
}

func NewDispatcher(sender Sender) *Dispatcher {
	return &Dispatcher{sender: sender}
}

// OnTransition отправляет сообщения, соответствующие переходу статуса.
func (d *Dispatcher) OnTransition(entry *models.QueueEntry, from, to queue.Status) {
	switch to {
	case queue.StatusWaiting:
		pos := 0
		if entry.Position != nil {
			pos = *entry.Position
		}
		d.toStaff(entry.LocationID, KindQueueJoin, QueueJoinData{
			EntryID:    entry.ID,
			CustomerID: entry.CustomerID,
			Position:   pos,
			VoiceAlert: true,
		})
	case queue.StatusNotified:
		d.toCustomer(entry.CustomerID, entry.LocationID, KindPositionUpdate, PositionUpdateData{
			EntryID:              entry.ID,
			Status:               entry.Status,
			Position:             entry.Position,
			EstimatedWaitMinutes: entry.EstimatedWaitMinutes,
		})
	case queue.StatusCheckedIn:
		d.toStaff(entry.LocationID, KindCustomerArrived, ArrivalData{
			EntryID:        entry.ID,
			CustomerID:     entry.CustomerID,
			DistanceMeters: entry.CheckInDistanceM,
			AutoApproved:   entry.CheckInAutoApproved != nil && *entry.CheckInAutoApproved,
		})
		// Подтверждение сотрудником приходит клиенту как сигнал обновиться.
		if from == queue.StatusPendingVerification {
			d.toCustomer(entry.CustomerID, entry.LocationID, KindPositionUpdate, PositionUpdateData{
				EntryID: entry.ID,
				Status:  entry.Status,
			})
		}
	case queue.StatusPendingVerification:
		d.toStaff(entry.LocationID, KindVerificationNeeded, ArrivalData{
			EntryID:        entry.ID,
			CustomerID:     entry.CustomerID,
			DistanceMeters: entry.CheckInDistanceM,
		})
	case queue.StatusInService:
		d.toCustomer(entry.CustomerID, entry.LocationID, KindServiceStarting, StatusData{
			EntryID: entry.ID,
			Status:  entry.Status,
		})
	case queue.StatusCompleted:
		d.toCustomer(entry.CustomerID, entry.LocationID, KindServiceCompleted, StatusData{
			EntryID: entry.ID,
			Status:  entry.Status,
		})
	case queue.StatusNoShow:
		d.toCustomer(entry.CustomerID, entry.LocationID, KindNoShow, StatusData{
			EntryID: entry.ID,
			Status:  entry.Status,
		})
	case queue.StatusCancelled:
		d.toCustomer(entry.CustomerID, entry.LocationID, KindEntryCancelled, StatusData{
			EntryID: entry.ID,
			Status:  entry.Status,
		})
	}
}

// OnPositions уведомляет каждого участника активной части очереди о его
// новой позиции.
func (d *Dispatcher) OnPositions(locationID uint, entries []models.QueueEntry) {
	for _, e := range entries {
		d.toCustomer(e.CustomerID, locationID, KindPositionUpdate, PositionUpdateData{
			EntryID:              e.ID,
			Status:               e.Status,
			Position:             e.Position,
			EstimatedWaitMinutes: e.EstimatedWaitMinutes,
		})
	}
}

// OnStaffNotify — явное сообщение сотрудника клиенту с оценкой времени.
// Статус записи при этом не меняется.
func (d *Dispatcher) OnStaffNotify(entry *models.QueueEntry, estimatedMinutes int, text string) {
	d.toCustomer(entry.CustomerID, entry.LocationID, KindQueueNotify, StaffNotifyData{
		EntryID:          entry.ID,
		EstimatedMinutes: estimatedMinutes,
		Message:          text,
	})
}

// OnViewersChange рассылает сотрудникам салона число подключённых зрителей.
func (d *Dispatcher) OnViewersChange(locationID uint, count int) {
	d.toStaff(locationID, KindLiveViewers, LiveViewersData{Count: count})
}

func (d *Dispatcher) toCustomer(customerID, locationID uint, kind Kind, data interface{}) {
	raw, err := json.Marshal(Message{Type: kind, LocationID: locationID, Data: data})
	if err != nil {
		log.Println("Ошибка сериализации push-сообщения:", err)
		return
	}
	d.sender.SendToCustomer(customerID, raw)
}

func (d *Dispatcher) toStaff(locationID uint, kind Kind, data interface{}) {
	raw, err := json.Marshal(Message{Type: kind, LocationID: locationID, Data: data})
	if err != nil {
		log.Println("Ошибка сериализации push-сообщения:", err)
		return
	}
	d.sender.SendToStaff(locationID, raw)
}
