package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/peplixcoin/cmeoi-sub001/models"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// CreateOrderInput carries the fields accepted when an order is placed
type CreateOrderInput struct {
	OrderID      string
	Username     string
	OrderTime    time.Time
	Items        []models.OrderItem
	TableNumber  int
	Address      string
	MobileNumber string
}

// ListQuery narrows a snapshot. Zero values mean "no constraint".
type ListQuery struct {
	Status     models.OrderStatus
	Unassigned bool
	AgentID    string
	Username   string
}

// OrderService is the only writer of order state. Every successful change is
// published to the notifier after the write has committed.
type OrderService struct {
	db       *gorm.DB
	notifier *Notifier
	log      logrus.FieldLogger
	now      func() time.Time

	// one lock per kind keeps write+publish atomic so observers see
	// publishes in commit order
	locks map[models.Kind]*sync.Mutex
}

// NewOrderService creates an order service backed by db that publishes to notifier
func NewOrderService(db *gorm.DB, notifier *Notifier, log logrus.FieldLogger) *OrderService {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &OrderService{
		db:       db,
		notifier: notifier,
		log:      log,
		now:      time.Now,
		locks: map[models.Kind]*sync.Mutex{
			models.KindDine:   {},
			models.KindOnline: {},
		},
	}
}

// SetClock overrides the time source (primarily for testing)
func (s *OrderService) SetClock(now func() time.Time) {
	s.now = now
}

// Create stores a new pending order and publishes it
func (s *OrderService) Create(ctx context.Context, kind models.Kind, in CreateOrderInput) (models.Document, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: unknown order type %q", ErrValidation, kind)
	}
	if strings.TrimSpace(in.Username) == "" {
		return nil, fmt.Errorf("%w: username is required", ErrValidation)
	}
	if reservedUsernames[in.Username] {
		return nil, fmt.Errorf("%w: username %q is reserved", ErrValidation, in.Username)
	}
	if err := validateItems(in.Items); err != nil {
		return nil, err
	}

	items := append([]models.OrderItem(nil), in.Items...)
	total := models.ComputeTotals(items)

	now := s.now()
	if in.OrderID == "" {
		in.OrderID = fmt.Sprintf("ORD-%d", now.UnixMilli())
	}
	if in.OrderTime.IsZero() {
		in.OrderTime = now
	}

	header := models.OrderHeader{
		OrderID:       in.OrderID,
		Username:      in.Username,
		OrderTime:     in.OrderTime,
		Items:         datatypes.JSONSlice[models.OrderItem](items),
		TotalAmt:      total,
		OrderStatus:   models.StatusPending,
		PaymentStatus: models.PaymentPending,
	}

	var doc models.Document
	switch kind {
	case models.KindDine:
		if in.TableNumber <= 0 {
			return nil, fmt.Errorf("%w: table_number must be positive", ErrValidation)
		}
		doc = &models.Order{OrderHeader: header, TableNumber: in.TableNumber}
	case models.KindOnline:
		if strings.TrimSpace(in.Address) == "" || strings.TrimSpace(in.MobileNumber) == "" {
			return nil, fmt.Errorf("%w: address and mobile_number are required", ErrValidation)
		}
		doc = &models.OnlineOrder{OrderHeader: header, Address: in.Address, MobileNumber: in.MobileNumber}
	}

	lock := s.locks[kind]
	lock.Lock()
	defer lock.Unlock()

	var count int64
	if err := s.db.WithContext(ctx).Model(models.NewDocument(kind)).
		Where("order_id = ?", in.OrderID).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("failed to check order %s: %w", in.OrderID, err)
	}
	if count > 0 {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateOrder, in.OrderID)
	}

	if err := s.db.WithContext(ctx).Create(doc).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateOrder, in.OrderID)
		}
		return nil, fmt.Errorf("failed to create order %s: %w", in.OrderID, err)
	}

	stored := s.reloadCommitted(ctx, kind, in.OrderID, doc)

	s.log.WithFields(logrus.Fields{"kind": kind, "order_id": in.OrderID}).Info("order created")
	s.notifier.Publish(kind, stored)
	return stored, nil
}

// Get returns the current document for orderID
func (s *OrderService) Get(ctx context.Context, kind models.Kind, orderID string) (models.Document, error) {
	return s.load(ctx, kind, orderID)
}

// List returns a snapshot of orders matching q, newest first
func (s *OrderService) List(ctx context.Context, kind models.Kind, q ListQuery) ([]models.Document, error) {
	tx := s.db.WithContext(ctx).Order("order_time DESC")
	if q.Status != "" {
		tx = tx.Where("order_status = ?", q.Status)
	}
	if q.Username != "" {
		tx = tx.Where("username = ?", q.Username)
	}

	switch kind {
	case models.KindDine:
		if q.Unassigned || q.AgentID != "" {
			return nil, ErrWrongKind
		}
		var rows []models.Order
		if err := tx.Find(&rows).Error; err != nil {
			return nil, fmt.Errorf("failed to list dine orders: %w", err)
		}
		docs := make([]models.Document, len(rows))
		for i := range rows {
			docs[i] = &rows[i]
		}
		return docs, nil
	case models.KindOnline:
		if q.Unassigned {
			tx = tx.Where("deliveryman_id IS NULL")
		}
		if q.AgentID != "" {
			tx = tx.Where("deliveryman_id = ?", q.AgentID)
		}
		var rows []models.OnlineOrder
		if err := tx.Find(&rows).Error; err != nil {
			return nil, fmt.Errorf("failed to list online orders: %w", err)
		}
		docs := make([]models.Document, len(rows))
		for i := range rows {
			docs[i] = &rows[i]
		}
		return docs, nil
	default:
		return nil, fmt.Errorf("%w: unknown order type %q", ErrValidation, kind)
	}
}

// UpdateStatus applies a requested order status. Only forward transitions are
// accepted: "approved" approves, "completed" completes; anything else is rejected.
func (s *OrderService) UpdateStatus(ctx context.Context, kind models.Kind, orderID string, status models.OrderStatus) (models.Document, error) {
	switch status {
	case models.StatusApproved:
		return s.Approve(ctx, kind, orderID)
	case models.StatusCompleted:
		return s.Complete(ctx, kind, orderID)
	default:
		return nil, fmt.Errorf("%w: cannot set status to %q", ErrInvalidTransition, status)
	}
}

// Approve moves a pending order to approved
func (s *OrderService) Approve(ctx context.Context, kind models.Kind, orderID string) (models.Document, error) {
	return s.mutate(ctx, kind, orderID, func(doc models.Document) (map[string]interface{}, error) {
		if current := doc.Header().OrderStatus; current != models.StatusPending {
			return nil, fmt.Errorf("%w: cannot approve %s order", ErrInvalidTransition, current)
		}
		return map[string]interface{}{"order_status": models.StatusApproved}, nil
	})
}

// Complete moves an approved order to completed and stamps its completion time
func (s *OrderService) Complete(ctx context.Context, kind models.Kind, orderID string) (models.Document, error) {
	return s.mutate(ctx, kind, orderID, func(doc models.Document) (map[string]interface{}, error) {
		if current := doc.Header().OrderStatus; current != models.StatusApproved {
			return nil, fmt.Errorf("%w: cannot complete %s order", ErrInvalidTransition, current)
		}
		return map[string]interface{}{
			"order_status":    models.StatusCompleted,
			"completion_time": s.now(),
		}, nil
	})
}

// SetPaymentStatus records a payment state; it never touches the order status
func (s *OrderService) SetPaymentStatus(ctx context.Context, kind models.Kind, orderID string, status models.PaymentStatus) (models.Document, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown payment status %q", ErrValidation, status)
	}
	return s.mutate(ctx, kind, orderID, func(models.Document) (map[string]interface{}, error) {
		return map[string]interface{}{"payment_status": status}, nil
	})
}

// AssignDeliveryAgent assigns an online order to an admin with the DeliveryMan role
func (s *OrderService) AssignDeliveryAgent(ctx context.Context, orderID, agentID string) (models.Document, error) {
	if strings.TrimSpace(agentID) == "" {
		return nil, fmt.Errorf("%w: deliverymanId is required", ErrValidation)
	}

	var agent models.Admin
	if err := s.db.WithContext(ctx).First(&agent, "id = ?", agentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrAgentNotFound, agentID)
		}
		return nil, fmt.Errorf("failed to load delivery agent %s: %w", agentID, err)
	}
	if agent.Role != models.RoleDeliveryMan {
		return nil, fmt.Errorf("%w: %s has role %s", ErrInvalidRole, agentID, agent.Role)
	}

	return s.mutate(ctx, models.KindOnline, orderID, func(doc models.Document) (map[string]interface{}, error) {
		if doc.Header().OrderStatus == models.StatusCompleted {
			return nil, fmt.Errorf("%w: cannot assign a completed order", ErrInvalidTransition)
		}
		return map[string]interface{}{"deliveryman_id": agent.ID}, nil
	})
}

// EditItems replaces the items of a pending order and recomputes its total
func (s *OrderService) EditItems(ctx context.Context, kind models.Kind, orderID string, items []models.OrderItem) (models.Document, error) {
	if err := validateItems(items); err != nil {
		return nil, err
	}
	items = append([]models.OrderItem(nil), items...)
	total := models.ComputeTotals(items)

	return s.mutate(ctx, kind, orderID, func(doc models.Document) (map[string]interface{}, error) {
		if current := doc.Header().OrderStatus; current != models.StatusPending {
			return nil, fmt.Errorf("%w: cannot edit items of %s order", ErrInvalidTransition, current)
		}
		return map[string]interface{}{
			"items":     datatypes.JSONSlice[models.OrderItem](items),
			"total_amt": total,
		}, nil
	})
}

// mutate loads the order, asks change for the column updates, applies them
// conditionally on the status that was read, reloads the document and
// publishes it. Nothing is published when the write fails; once it commits
// the change is always published.
func (s *OrderService) mutate(ctx context.Context, kind models.Kind, orderID string, change func(models.Document) (map[string]interface{}, error)) (models.Document, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: unknown order type %q", ErrValidation, kind)
	}

	lock := s.locks[kind]
	lock.Lock()
	defer lock.Unlock()

	doc, err := s.load(ctx, kind, orderID)
	if err != nil {
		return nil, err
	}

	updates, err := change(doc)
	if err != nil {
		return nil, err
	}

	expected := doc.Header().OrderStatus
	res := s.db.WithContext(ctx).Model(doc).Where("order_status = ?", expected).Updates(updates)
	if res.Error != nil {
		return nil, fmt.Errorf("failed to update order %s: %w", orderID, res.Error)
	}
	if res.RowsAffected == 0 {
		// another process moved the order between read and write
		return nil, fmt.Errorf("%w: order %s changed concurrently", ErrInvalidTransition, orderID)
	}

	updated := s.reloadCommitted(ctx, kind, orderID, doc)

	s.log.WithFields(logrus.Fields{
		"kind":           kind,
		"order_id":       orderID,
		"order_status":   updated.Header().OrderStatus,
		"payment_status": updated.Header().PaymentStatus,
	}).Info("order updated")

	s.notifier.Publish(kind, updated)
	return updated, nil
}

// reloadCommitted reads back a document whose write has committed. The read
// ignores cancellation of ctx since the change must be published either way;
// if it still fails, written (the model gorm applied the write to) is used.
func (s *OrderService) reloadCommitted(ctx context.Context, kind models.Kind, orderID string, written models.Document) models.Document {
	stored, err := s.load(context.WithoutCancel(ctx), kind, orderID)
	if err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"kind":     kind,
			"order_id": orderID,
		}).Warn("reload after write failed, publishing the written copy")
		return written
	}
	return stored
}

func (s *OrderService) load(ctx context.Context, kind models.Kind, orderID string) (models.Document, error) {
	doc := models.NewDocument(kind)
	if err := s.db.WithContext(ctx).First(doc, "order_id = ?", orderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, orderID)
		}
		return nil, fmt.Errorf("failed to load order %s: %w", orderID, err)
	}
	return doc, nil
}

// reservedUsernames are the static path segments next to the
// /orders/:id and /orders/online/:id routes; the router would never hand
// such a username to the per-user handlers.
var reservedUsernames = map[string]bool{
	"approved": true,
	"delivery": true,
	"online":   true,
	"stream":   true,
}

func validateItems(items []models.OrderItem) error {
	if len(items) == 0 {
		return fmt.Errorf("%w: at least one item is required", ErrValidation)
	}
	for i, item := range items {
		if item.ItemID == "" && item.ItemName == "" {
			return fmt.Errorf("%w: item %d needs an item_id or item_name", ErrValidation, i)
		}
		if item.Qty <= 0 {
			return fmt.Errorf("%w: item %d quantity must be positive", ErrValidation, i)
		}
		if item.ItemPrice < 0 {
			return fmt.Errorf("%w: item %d price must not be negative", ErrValidation, i)
		}
	}
	return nil
}

// isUniqueViolation works with both PostgreSQL and SQLite error texts
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate") || strings.Contains(msg, "unique")
}
