package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/ignatzorin/studytips-bot/internal/models"
	"github.com/ignatzorin/studytips-bot/internal/notify"
	"github.com/ignatzorin/studytips-bot/internal/pkg/apperror"
)

// memStore in-memory хранилище с той же семантикой условных обновлений, что и SQL.
type memStore struct {
	mu       sync.Mutex
	users    map[int64]models.User
	orders   map[uuid.UUID]models.Order
	disputes map[uuid.UUID]models.Dispute
	ratings  map[uuid.UUID]models.Rating
	chats    []models.ChatMessage
}

func newMemStore() *memStore {
	return &memStore{
		users:    map[int64]models.User{},
		orders:   map[uuid.UUID]models.Order{},
		disputes: map[uuid.UUID]models.Dispute{},
		ratings:  map[uuid.UUID]models.Rating{},
	}
}

func (s *memStore) repos() Repositories {
	return Repositories{
		Users:    memUsers{s},
		Orders:   memOrders{s},
		Disputes: memDisputes{s},
		Ratings:  memRatings{s},
		Chats:    memChats{s},
	}
}

func (s *memStore) order(id uuid.UUID) models.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.orders[id]
}

func (s *memStore) user(id int64) models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.users[id]
}

func (s *memStore) dispute(id uuid.UUID) models.Dispute {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disputes[id]
}

func (s *memStore) addUser(id int64, role models.Role) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[id] = models.User{ID: id, Role: role}
}

func (s *memStore) addOrder(o models.Order) models.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	if o.Type == "" {
		o.Type = models.WorkTypeCoursework
	}
	if o.Budget == 0 {
		o.Budget = 1000
	}
	o.Subject, o.Description, o.Deadline = "Матанализ", "Решить задачи", "завтра"
	s.orders[o.ID] = o
	return o
}

func applyOrderFields(o *models.Order, fields map[string]interface{}) {
	for k, v := range fields {
		switch k {
		case "executor_id":
			id := v.(int64)
			o.ExecutorID = &id
		case "budget":
			o.Budget = v.(int64)
		case "message_id":
			id := v.(int)
			o.ChannelMessageID = &id
		case "completed_at":
			t := v.(time.Time)
			o.CompletedAt = &t
		}
	}
}

func hasStatus(list []models.OrderStatus, s models.OrderStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

type memUsers struct{ s *memStore }

func (r memUsers) UpsertOnFirstContact(_ context.Context, u *models.User) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.users[u.ID]
	if !ok {
		stored = *u
		if stored.Role == "" {
			stored.Role = models.RoleCustomer
		}
	} else {
		stored.Username, stored.FirstName, stored.LastName = u.Username, u.FirstName, u.LastName
	}
	r.s.users[u.ID] = stored
	return &stored, nil
}

func (r memUsers) GetByID(_ context.Context, id int64) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, apperror.ErrUserNotFound
	}
	return &u, nil
}

func (r memUsers) SetRole(_ context.Context, id int64, role models.Role) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return false, nil
	}
	u.Role = role
	r.s.users[id] = u
	return true, nil
}

func (r memUsers) ListByRole(_ context.Context, role models.Role) ([]models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.User
	for _, u := range r.s.users {
		if u.Role == role {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type memOrders struct{ s *memStore }

func (r memOrders) Create(_ context.Context, o *models.Order) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	o.CreatedAt = time.Now()
	r.s.orders[o.ID] = *o
	return nil
}

func (r memOrders) GetByID(_ context.Context, id uuid.UUID) (*models.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.orders[id]
	if !ok {
		return nil, apperror.ErrOrderNotFound
	}
	return &o, nil
}

func (r memOrders) UpdateFields(_ context.Context, id uuid.UUID, fields map[string]interface{}) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.orders[id]
	if !ok {
		return false, nil
	}
	applyOrderFields(&o, fields)
	r.s.orders[id] = o
	return true, nil
}

func (r memOrders) TransitionStatus(_ context.Context, id uuid.UUID, from []models.OrderStatus, to models.OrderStatus, fields map[string]interface{}) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.orders[id]
	if !ok || !hasStatus(from, o.Status) {
		return false, nil
	}
	o.Status = to
	applyOrderFields(&o, fields)
	r.s.orders[id] = o
	return true, nil
}

func (r memOrders) list(match func(models.Order) bool) []models.Order {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.Order
	for _, o := range r.s.orders {
		if match(o) {
			out = append(out, o)
		}
	}
	return out
}

func (r memOrders) ListByClient(_ context.Context, clientID int64, status *models.OrderStatus) ([]models.Order, error) {
	return r.list(func(o models.Order) bool {
		return o.ClientID == clientID && (status == nil || o.Status == *status)
	}), nil
}

func (r memOrders) ListByExecutor(_ context.Context, executorID int64, status *models.OrderStatus) ([]models.Order, error) {
	return r.list(func(o models.Order) bool {
		return o.ExecutorID != nil && *o.ExecutorID == executorID && (status == nil || o.Status == *status)
	}), nil
}

func (r memOrders) ListByStatus(_ context.Context, status models.OrderStatus, limit int) ([]models.Order, error) {
	out := r.list(func(o models.Order) bool { return o.Status == status })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r memOrders) CountByClientAndStatus(_ context.Context, clientID int64, status models.OrderStatus) (int, error) {
	return len(r.list(func(o models.Order) bool { return o.ClientID == clientID && o.Status == status })), nil
}

func (r memOrders) AttachmentReferenced(_ context.Context, path string) (bool, error) {
	refs := r.list(func(o models.Order) bool { return o.FilePath != nil && *o.FilePath == path })
	return len(refs) > 0, nil
}

type memDisputes struct{ s *memStore }

func (r memDisputes) openByOrderLocked(orderID uuid.UUID) (models.Dispute, bool) {
	for _, d := range r.s.disputes {
		if d.OrderID == orderID && d.Status.IsOpen() {
			return d, true
		}
	}
	return models.Dispute{}, false
}

func (r memDisputes) Create(_ context.Context, d *models.Dispute, orderFrom []models.OrderStatus) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.orders[d.OrderID]
	if !ok || !hasStatus(orderFrom, o.Status) {
		return false, nil
	}
	if _, open := r.openByOrderLocked(d.OrderID); open {
		return false, apperror.ErrDisputeAlreadyOpen
	}
	o.Status = models.OrderStatusDispute
	r.s.orders[o.ID] = o
	d.CreatedAt = time.Now()
	r.s.disputes[d.ID] = *d
	return true, nil
}

func (r memDisputes) GetByID(_ context.Context, id uuid.UUID) (*models.Dispute, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	d, ok := r.s.disputes[id]
	if !ok {
		return nil, apperror.ErrDisputeNotFound
	}
	return &d, nil
}

func (r memDisputes) GetOpenByOrder(_ context.Context, orderID uuid.UUID) (*models.Dispute, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	d, ok := r.openByOrderLocked(orderID)
	if !ok {
		return nil, apperror.ErrDisputeNotFound
	}
	return &d, nil
}

func (r memDisputes) Take(_ context.Context, id uuid.UUID, adminID int64) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	d, ok := r.s.disputes[id]
	if !ok || d.Status != models.DisputeStatusOpened {
		return false, nil
	}
	d.Status = models.DisputeStatusInProgress
	d.AdminID = &adminID
	r.s.disputes[id] = d
	return true, nil
}

func (r memDisputes) Resolve(_ context.Context, id uuid.UUID, adminID int64, resolution string, to models.DisputeStatus, orderTo models.OrderStatus) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	d, ok := r.s.disputes[id]
	if !ok || !d.Status.IsOpen() {
		return false, nil
	}
	o, ok := r.s.orders[d.OrderID]
	if !ok || o.Status != models.OrderStatusDispute {
		return false, nil
	}
	now := time.Now()
	d.Status, d.AdminID, d.Resolution, d.ResolvedAt = to, &adminID, &resolution, &now
	o.Status = orderTo
	r.s.disputes[id] = d
	r.s.orders[o.ID] = o
	return true, nil
}

func (r memDisputes) CloseOpenByOrder(_ context.Context, orderID uuid.UUID, to models.DisputeStatus, resolution string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	d, ok := r.openByOrderLocked(orderID)
	if !ok {
		return false, nil
	}
	d.Status, d.Resolution = to, &resolution
	r.s.disputes[d.ID] = d
	return true, nil
}

type memRatings struct{ s *memStore }

func (r memRatings) Create(_ context.Context, rating *models.Rating) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.ratings[rating.OrderID]; ok {
		return apperror.ErrAlreadyRated
	}
	rating.ID = int64(len(r.s.ratings) + 1)
	r.s.ratings[rating.OrderID] = *rating

	var sum, n int
	for _, v := range r.s.ratings {
		if v.ExecutorID == rating.ExecutorID {
			sum += v.Score
			n++
		}
	}
	u := r.s.users[rating.ExecutorID]
	u.Rating = float64(sum) / float64(n)
	u.CompletedOrders++
	r.s.users[rating.ExecutorID] = u
	return nil
}

func (r memRatings) SetComment(_ context.Context, orderID uuid.UUID, customerID int64, comment string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	v, ok := r.s.ratings[orderID]
	if !ok || v.CustomerID != customerID {
		return false, nil
	}
	v.Comment = &comment
	r.s.ratings[orderID] = v
	return true, nil
}

func (r memRatings) ListByExecutor(_ context.Context, executorID int64, limit int) ([]models.Rating, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.Rating
	for _, v := range r.s.ratings {
		if v.ExecutorID == executorID {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type memChats struct{ s *memStore }

func (r memChats) Append(_ context.Context, msg *models.ChatMessage) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	msg.ID = int64(len(r.s.chats) + 1)
	r.s.chats = append(r.s.chats, *msg)
	return nil
}

func (r memChats) ListByOrder(_ context.Context, orderID uuid.UUID, limit int) ([]models.ChatMessage, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.ChatMessage
	for _, m := range r.s.chats {
		if m.OrderID == orderID {
			out = append(out, m)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) SendDirectMessage(ctx context.Context, userID int64, text string, kb *models.Keyboard) error {
	args := m.Called(ctx, userID, text, kb)
	return args.Error(0)
}

func (m *mockNotifier) PostOrUpdateChannelMessage(ctx context.Context, channelID int64, ref *int, text string, kb *models.Keyboard) (int, error) {
	args := m.Called(ctx, channelID, ref, text, kb)
	return args.Int(0), args.Error(1)
}

// sentTo число личных сообщений, отправленных пользователю.
func (m *mockNotifier) sentTo(userID int64) int {
	n := 0
	for _, c := range m.Calls {
		if c.Method == "SendDirectMessage" && c.Arguments.Get(1).(int64) == userID {
			n++
		}
	}
	return n
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []notify.Event
}

func (p *recordingPublisher) Publish(ev notify.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

func (p *recordingPublisher) types() []notify.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]notify.EventType, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Type)
	}
	return out
}
