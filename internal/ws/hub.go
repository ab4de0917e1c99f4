package ws

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// AuthFunc проверяет токен из кадра authenticate и возвращает принципала:
// его ID, признак сотрудника и салон сотрудника (для role=staff).
type AuthFunc func(token string) (principalID uint, isStaff bool, staffLocationID uint, err error)

// Hub хранит живые подключения клиентов и сотрудников, сгруппированные по
// салонам. Подключение не получает адресных сообщений, пока клиент не
// пришлёт кадр {"type":"authenticate","token":...}. Повторная аутентификация
// того же принципала вытесняет его предыдущее подключение.
//
// Push-сообщения — только сигнал перечитать состояние через REST; хаб не
// хранит сообщения для отключённых и ничего не доставляет повторно.
type Hub struct {
	auth AuthFunc

	// Вызывается при изменении числа подключённых зрителей салона.
	OnViewersChange func(locationID uint, count int)

	mu          sync.RWMutex
	byPrincipal map[uint]*Client
	staff       map[uint]map[*Client]bool // салон -> подключения сотрудников
	viewers     map[uint]map[*Client]bool // салон -> все аутентифицированные подключения

	register   chan *Client
	unregister chan *Client
	done       chan struct{}
}

// NewHub создает новый Hub.
func NewHub(auth AuthFunc) *Hub {
	return &Hub{
		auth:        auth,
		byPrincipal: make(map[uint]*Client),
		staff:       make(map[uint]map[*Client]bool),
		viewers:     make(map[uint]map[*Client]bool),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		done:        make(chan struct{}),
	}
}

// Start запускает цикл обработки каналов хаба.
func (h *Hub) Start() {
	go h.run()
}

// Stop останавливает цикл обработки. Открытые соединения закрываются
// своими pump-горутинами.
func (h *Hub) Stop() {
	close(h.done)
}

func (h *Hub) run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			// Новое подключение принципала вытесняет старое, чтобы не было
			// двойной доставки.
			if old, ok := h.byPrincipal[client.principalID]; ok && old != client {
				h.removeLocked(old)
				old.conn.Close()
			}
			h.byPrincipal[client.principalID] = client
			if client.isStaff {
				if h.staff[client.locationID] == nil {
					h.staff[client.locationID] = make(map[*Client]bool)
				}
				h.staff[client.locationID][client] = true
			}
			if h.viewers[client.locationID] == nil {
				h.viewers[client.locationID] = make(map[*Client]bool)
			}
			h.viewers[client.locationID][client] = true
			count := len(h.viewers[client.locationID])
			h.mu.Unlock()
			h.notifyViewers(client.locationID, count)
		case client := <-h.unregister:
			h.mu.Lock()
			removed := h.removeLocked(client)
			count := len(h.viewers[client.locationID])
			h.mu.Unlock()
			if removed {
				h.notifyViewers(client.locationID, count)
			}
		case <-h.done:
			return
		}
	}
}

// removeLocked убирает клиента из всех множеств. Вызывается под h.mu.
func (h *Hub) removeLocked(c *Client) bool {
	clients, ok := h.viewers[c.locationID]
	if !ok || !clients[c] {
		return false
	}
	delete(clients, c)
	if len(clients) == 0 {
		delete(h.viewers, c.locationID)
	}
	if h.byPrincipal[c.principalID] == c {
		delete(h.byPrincipal, c.principalID)
	}
	if staff, ok := h.staff[c.locationID]; ok {
		delete(staff, c)
		if len(staff) == 0 {
			delete(h.staff, c.locationID)
		}
	}
	close(c.send)
	return true
}

func (h *Hub) notifyViewers(locationID uint, count int) {
	if h.OnViewersChange != nil {
		h.OnViewersChange(locationID, count)
	}
}

// SendToCustomer отправляет сообщение подключению принципала, если оно есть.
// Отправка никогда не блокирует: при переполненном буфере сообщение
// отбрасывается, клиент узнает актуальное состояние при следующем refetch.
// Блокировка чтения держится на время отправки: removeLocked закрывает канал
// под блокировкой записи, поэтому отправка в закрытый канал невозможна.
func (h *Hub) SendToCustomer(customerID uint, message []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	client, ok := h.byPrincipal[customerID]
	if !ok {
		return
	}
	select {
	case client.send <- message:
	default:
	}
}

// SendToStaff рассылает сообщение всем подключениям сотрудников салона.
func (h *Hub) SendToStaff(locationID uint, message []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.staff[locationID] {
		select {
		case client.send <- message:
		default:
		}
	}
}

// Client представляет одно подключение через WebSocket.
type Client struct {
	hub           *Hub
	conn          *websocket.Conn
	send          chan []byte
	locationID    uint
	principalID   uint
	isStaff       bool
	authenticated bool
}

type inboundFrame struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

// readPump читает кадры клиента. Единственный осмысленный входящий кадр —
// authenticate; до него подключение получает только ack и ping.
func (c *Client) readPump() {
	defer func() {
		if c.authenticated {
			c.hub.unregister <- c
		}
		c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})
	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			break
		}
		var frame inboundFrame
		if err := json.Unmarshal(message, &frame); err != nil {
			log.Printf("Нечитаемый WS кадр: %s", message)
			continue
		}
		if frame.Type == "authenticate" && !c.authenticated {
			principalID, isStaff, staffLocationID, err := c.hub.auth(frame.Token)
			if err != nil {
				log.Println("Ошибка аутентификации WS подключения:", err)
				continue
			}
			c.principalID = principalID
			// Сотрудник чужого салона смотрит очередь как обычный зритель.
			c.isStaff = isStaff && staffLocationID == c.locationID
			c.authenticated = true
			c.hub.register <- c
		}
	}
}

// writePump отправляет сообщения клиенту из канала send.
func (c *Client) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				// Канал закрыт.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			// Отправка ping-сообщения для поддержания соединения.
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Настраиваем апгрейдер для WebSocket с разрешением всех источников.
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// QueueWebSocketHandler обновляет соединение до WebSocket.
// URL-пример: /api/locations/{id}/ws
func (h *Hub) QueueWebSocketHandler(c *gin.Context) {
	locationID, err := strconv.Atoi(c.Param("id"))
	if err != nil || locationID <= 0 {
		c.Status(http.StatusBadRequest)
		return
	}
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		http.Error(c.Writer, "Ошибка обновления до WebSocket", http.StatusInternalServerError)
		return
	}
	client := &Client{
		hub:        h,
		conn:       conn,
		send:       make(chan []byte, 256),
		locationID: uint(locationID),
	}

	// Подтверждение живости до аутентификации.
	conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ack"}`))

	go client.writePump()
	client.readPump()
}
