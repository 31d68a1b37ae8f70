package booking

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/tabletopreserve/tabletop/services/booking-service/internal/model"
)

type fakeRepo struct {
	txMu sync.Mutex
	mu   sync.Mutex

	calls        int
	nextID       int
	reservations map[string]model.TableReservation
	events       map[string]model.EventBooking
	idempotency  map[string]string

	failCreate error
	failUpdate error
}

func newFakeRepo(reservations ...model.TableReservation) *fakeRepo {
	r := &fakeRepo{
		reservations: map[string]model.TableReservation{},
		events:       map[string]model.EventBooking{},
		idempotency:  map[string]string{},
	}
	for _, res := range reservations {
		r.reservations[res.ID] = res
	}
	return r
}

func (r *fakeRepo) touch() {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()
}

func (r *fakeRepo) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

// WithTx serializes transactions and restores the previous state when fn fails.
func (r *fakeRepo) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	r.touch()
	r.txMu.Lock()
	defer r.txMu.Unlock()

	r.mu.Lock()
	resSnap := make(map[string]model.TableReservation, len(r.reservations))
	for k, v := range r.reservations {
		resSnap[k] = v
	}
	evSnap := make(map[string]model.EventBooking, len(r.events))
	for k, v := range r.events {
		evSnap[k] = v
	}
	r.mu.Unlock()

	if err := fn(ctx); err != nil {
		r.mu.Lock()
		r.reservations, r.events = resSnap, evSnap
		r.mu.Unlock()
		return err
	}
	return nil
}

func (r *fakeRepo) LockTable(ctx context.Context, tableID string) error {
	r.touch()
	return nil
}

func (r *fakeRepo) FindOverlapping(ctx context.Context, tableID string, window model.Interval, statuses []model.Status) ([]model.TableReservation, error) {
	r.touch()
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []model.TableReservation
	for _, res := range r.reservations {
		if res.TableID != tableID || !res.Interval().Overlaps(window) {
			continue
		}
		for _, s := range statuses {
			if res.Status == s {
				out = append(out, res)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (r *fakeRepo) FindReservationByIdempotencyKey(ctx context.Context, createdBy, key string) (*model.TableReservation, error) {
	r.touch()
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.idempotency[createdBy+"|"+key]
	if !ok {
		return nil, nil
	}
	res := r.reservations[id]
	return &res, nil
}

func (r *fakeRepo) CreateReservation(ctx context.Context, res model.TableReservation, idempotencyKey string) (string, error) {
	r.touch()
	if r.failCreate != nil {
		return "", r.failCreate
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	res.ID = fmt.Sprintf("res-%d", r.nextID)
	r.reservations[res.ID] = res
	if idempotencyKey != "" {
		r.idempotency[res.CreatedBy+"|"+idempotencyKey] = res.ID
	}
	return res.ID, nil
}

func (r *fakeRepo) GetReservation(ctx context.Context, id string) (model.TableReservation, error) {
	r.touch()
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.reservations[id]
	if !ok {
		return model.TableReservation{}, model.ErrNotFound
	}
	return res, nil
}

func (r *fakeRepo) UpdateReservation(ctx context.Context, id string, patch model.StatusPatch) (model.TableReservation, error) {
	r.touch()
	if r.failUpdate != nil {
		return model.TableReservation{}, r.failUpdate
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.reservations[id]
	if !ok {
		return model.TableReservation{}, model.ErrNotFound
	}
	if res.Status != patch.From {
		return model.TableReservation{}, &model.InvalidStateError{Kind: model.KindTable, ID: id, From: res.Status, To: patch.To}
	}
	res.Status = patch.To
	patch.Apply(&res.Audit)
	r.reservations[id] = res
	return res, nil
}

func (r *fakeRepo) ListReservationsByUser(ctx context.Context, userID string, q model.UserQuery) ([]model.TableReservation, error) {
	r.touch()
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.TableReservation
	for _, res := range r.reservations {
		if res.UserID != userID {
			continue
		}
		past := res.Start.Before(q.Now)
		if past == (q.When == model.WhenPast) {
			out = append(out, res)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if q.When == model.WhenPast {
			return out[i].Start.After(out[j].Start)
		}
		return out[i].Start.Before(out[j].Start)
	})
	return out, nil
}

func (r *fakeRepo) CreateEventBooking(ctx context.Context, b model.EventBooking) (string, error) {
	r.touch()
	if r.failCreate != nil {
		return "", r.failCreate
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	b.ID = fmt.Sprintf("evb-%d", r.nextID)
	r.events[b.ID] = b
	return b.ID, nil
}

func (r *fakeRepo) GetEventBooking(ctx context.Context, id string) (model.EventBooking, error) {
	r.touch()
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.events[id]
	if !ok {
		return model.EventBooking{}, model.ErrNotFound
	}
	return b, nil
}

func (r *fakeRepo) UpdateEventBooking(ctx context.Context, id string, patch model.StatusPatch) (model.EventBooking, error) {
	r.touch()
	if r.failUpdate != nil {
		return model.EventBooking{}, r.failUpdate
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.events[id]
	if !ok {
		return model.EventBooking{}, model.ErrNotFound
	}
	if b.Status != patch.From {
		return model.EventBooking{}, &model.InvalidStateError{Kind: model.KindEvent, ID: id, From: b.Status, To: patch.To}
	}
	b.Status = patch.To
	patch.Apply(&b.Audit)
	r.events[id] = b
	return b, nil
}

func (r *fakeRepo) ListEventBookingsByUser(ctx context.Context, userID string, q model.UserQuery) ([]model.EventBooking, error) {
	r.touch()
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.EventBooking
	for _, b := range r.events {
		if b.UserID == userID && b.EventDate.Before(q.Now) == (q.When == model.WhenPast) {
			out = append(out, b)
		}
	}
	return out, nil
}

type fakeNotifier struct {
	mu      sync.Mutex
	changes []model.StatusChange
	err     error
}

func (n *fakeNotifier) NotifyStatusChange(ctx context.Context, change model.StatusChange) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.changes = append(n.changes, change)
	return n.err
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.changes)
}

var errDBDown = errors.New("connection refused")
