package notify

import (
	"encoding/json"
	"testing"

	"salon_queue/internal/models"
	"salon_queue/internal/queue"

	"github.com/stretchr/testify/assert"
)

type captured struct {
	customerID uint
	locationID uint
	message    Message
}

type fakeSender struct {
	toCustomer []captured
	toStaff    []captured
}

func (f *fakeSender) SendToCustomer(customerID uint, message []byte) {
	var m Message
	_ = json.Unmarshal(message, &m)
	f.toCustomer = append(f.toCustomer, captured{customerID: customerID, message: m})
}

func (f *fakeSender) SendToStaff(locationID uint, message []byte) {
	var m Message
	_ = json.Unmarshal(message, &m)
	f.toStaff = append(f.toStaff, captured{locationID: locationID, message: m})
}

func testEntry() *models.QueueEntry {
	e := &models.QueueEntry{LocationID: 5, CustomerID: 42, Status: string(queue.StatusWaiting)}
	e.ID = 7
	return e
}

func TestJoinGoesToStaffWithVoiceAlert(t *testing.T) {
	sender := &fakeSender{}
	d := NewDispatcher(sender)

	e := testEntry()
	p := 3
	e.Position = &p
	d.OnTransition(e, "", queue.StatusWaiting)

	assert.Len(t, sender.toStaff, 1)
	assert.Empty(t, sender.toCustomer)
	msg := sender.toStaff[0]
	assert.Equal(t, uint(5), msg.locationID)
	assert.Equal(t, KindQueueJoin, msg.message.Type)
	data := msg.message.Data.(map[string]interface{})
	assert.Equal(t, true, data["voice_alert"])
	assert.Equal(t, float64(3), data["position"])
}

func TestPendingVerificationAlertsStaff(t *testing.T) {
	sender := &fakeSender{}
	d := NewDispatcher(sender)

	e := testEntry()
	e.Status = string(queue.StatusPendingVerification)
	dist := 140.0
	e.CheckInDistanceM = &dist
	d.OnTransition(e, queue.StatusNotified, queue.StatusPendingVerification)

	assert.Len(t, sender.toStaff, 1)
	assert.Equal(t, KindVerificationNeeded, sender.toStaff[0].message.Type)
}

func TestCustomerMessagesByStatus(t *testing.T) {
	cases := []struct {
		from, to queue.Status
		kind     Kind
	}{
		{queue.StatusCheckedIn, queue.StatusInService, KindServiceStarting},
		{queue.StatusInService, queue.StatusCompleted, KindServiceCompleted},
		{queue.StatusNotified, queue.StatusNoShow, KindNoShow},
		{queue.StatusWaiting, queue.StatusCancelled, KindEntryCancelled},
	}
	for _, tc := range cases {
		sender := &fakeSender{}
		d := NewDispatcher(sender)
		e := testEntry()
		e.Status = string(tc.to)
		d.OnTransition(e, tc.from, tc.to)

		assert.Len(t, sender.toCustomer, 1, "переход в %s", tc.to)
		assert.Equal(t, uint(42), sender.toCustomer[0].customerID)
		assert.Equal(t, tc.kind, sender.toCustomer[0].message.Type)
	}
}

func TestAutoApprovedArrivalGoesToStaff(t *testing.T) {
	sender := &fakeSender{}
	d := NewDispatcher(sender)

	e := testEntry()
	e.Status = string(queue.StatusCheckedIn)
	auto := true
	e.CheckInAutoApproved = &auto
	d.OnTransition(e, queue.StatusNotified, queue.StatusCheckedIn)

	assert.Len(t, sender.toStaff, 1)
	assert.Equal(t, KindCustomerArrived, sender.toStaff[0].message.Type)
	data := sender.toStaff[0].message.Data.(map[string]interface{})
	assert.Equal(t, true, data["auto_approved"])
}

func TestOnPositionsFanout(t *testing.T) {
	sender := &fakeSender{}
	d := NewDispatcher(sender)

	p1, p2 := 1, 2
	e1 := models.QueueEntry{CustomerID: 10, Status: string(queue.StatusWaiting), Position: &p1, EstimatedWaitMinutes: 15}
	e1.ID = 1
	e2 := models.QueueEntry{CustomerID: 20, Status: string(queue.StatusWaiting), Position: &p2, EstimatedWaitMinutes: 30}
	e2.ID = 2

	d.OnPositions(5, []models.QueueEntry{e1, e2})

	assert.Len(t, sender.toCustomer, 2)
	assert.Equal(t, uint(10), sender.toCustomer[0].customerID)
	assert.Equal(t, uint(20), sender.toCustomer[1].customerID)
	for _, c := range sender.toCustomer {
		assert.Equal(t, KindPositionUpdate, c.message.Type)
	}
}

func TestStaffNotifyAndViewers(t *testing.T) {
	sender := &fakeSender{}
	d := NewDispatcher(sender)

	d.OnStaffNotify(testEntry(), 10, "Подходите через 10 минут")
	assert.Len(t, sender.toCustomer, 1)
	assert.Equal(t, KindQueueNotify, sender.toCustomer[0].message.Type)

	d.OnViewersChange(5, 4)
	assert.Len(t, sender.toStaff, 1)
	assert.Equal(t, KindLiveViewers, sender.toStaff[0].message.Type)
}
