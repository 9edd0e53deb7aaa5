package order

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"ms-storefront/internal/auth"
	"ms-storefront/internal/logger"
	"ms-storefront/internal/models"
	"ms-storefront/internal/order/db"
	"ms-storefront/internal/pricing"
	"ms-storefront/internal/timeline"

	"github.com/google/uuid"
)

var (
	ErrOrderInvalidInput = errors.New("invalid input")
	ErrOrderNotFound     = errors.New("Order not found")
	ErrOrderItemNotFound = errors.New("Order item not found")
)

type DBLayer interface {
	InTx(ctx context.Context, fn func(ctx context.Context, q *db.Queries) error) error
	GetOrderWithItems(ctx context.Context, id string) (*models.Order, error)
	ListOrdersByUser(ctx context.Context, userID string) ([]models.Order, error)
}

type EventPublisher interface {
	PublishEvent(ctx context.Context, topic string, ev models.DomainEvent) error
}

// Topics names where order events go. An empty topic disables that event.
type Topics struct {
	Status string
	Totals string
}

type Deps struct {
	DB        DBLayer
	Publisher EventPublisher
	Topics    Topics
	Logger    *logger.Logger
	Clock     func() time.Time
	NewID     func() string
}

type OrderService struct {
	db        DBLayer
	publisher EventPublisher
	topics    Topics
	log       *logger.Logger
	clock     func() time.Time
	newID     func() string
}

func NewOrderService(deps Deps) *OrderService {
	s := &OrderService{
		db:        deps.DB,
		publisher: deps.Publisher,
		topics:    deps.Topics,
		log:       deps.Logger,
		clock:     deps.Clock,
		newID:     deps.NewID,
	}
	if s.clock == nil {
		s.clock = func() time.Time { return time.Now().UTC() }
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	return s
}

// ---------------- CHECKOUT & READS ----------------

// CreateOrder places a PENDING order for userID from a checkout request.
func (s *OrderService) CreateOrder(ctx context.Context, userID string, req models.CheckoutRequest) (*models.Order, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: user is required", ErrOrderInvalidInput)
	}
	if len(req.Items) == 0 {
		return nil, fmt.Errorf("%w: order has no items", ErrOrderInvalidInput)
	}
	if req.ShippingFee < 0 {
		return nil, fmt.Errorf("%w: shipping fee cannot be negative", ErrOrderInvalidInput)
	}

	now := s.clock()
	order := &models.Order{
		ID:              s.newID(),
		UserID:          userID,
		ShippingFee:     req.ShippingFee,
		Status:          models.OrderPending,
		ShippingAddress: req.ShippingAddress,
		Version:         1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	order.ApplyTimestamps(timeline.Orders.Initial(models.OrderPending, now))

	items := make([]models.OrderLineItem, 0, len(req.Items))
	for i, in := range req.Items {
		switch {
		case strings.TrimSpace(in.ProductID) == "":
			return nil, fmt.Errorf("%w: item %d has no product", ErrOrderInvalidInput, i)
		case in.Quantity < 1:
			return nil, fmt.Errorf("%w: item %d quantity must be at least 1", ErrOrderInvalidInput, i)
		case in.Price < 0:
			return nil, fmt.Errorf("%w: item %d price cannot be negative", ErrOrderInvalidInput, i)
		}
		items = append(items, models.OrderLineItem{
			ID:          s.newID(),
			OrderID:     order.ID,
			ProductID:   in.ProductID,
			ProductName: in.ProductName,
			Quantity:    in.Quantity,
			Price:       in.Price,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
	}
	totals := applyTotals(order, items)

	err := s.db.InTx(ctx, func(ctx context.Context, q *db.Queries) error {
		return q.InsertOrder(ctx, order, items)
	})
	if err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	s.log.LogOrder("CREATE", order.ID, fmt.Sprintf("user=%s items=%d total=%d", userID, len(items), order.Total))
	s.publish(ctx, s.topics.Status, s.event(ctx, models.EventOrderStatusChanged, order.ID, func(ev *models.DomainEvent) {
		ev.Status = string(order.Status)
		ev.Totals = totalsPayload(order, totals)
	}))
	return order, nil
}

func (s *OrderService) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	order, err := s.db.GetOrderWithItems(ctx, id)
	if err != nil {
		return nil, notFound(err, ErrOrderNotFound, id)
	}
	return order, nil
}

func (s *OrderService) ListOrdersByUser(ctx context.Context, userID string) ([]models.Order, error) {
	return s.db.ListOrdersByUser(ctx, userID)
}

// ---------------- ADMIN MUTATIONS ----------------

// UpdateOrderStatus moves an order to rawStatus and records the timestamp
// bookkeeping for the move. Re-applying the current status changes nothing.
func (s *OrderService) UpdateOrderStatus(ctx context.Context, orderID, rawStatus string) (*models.Order, error) {
	next, err := timeline.Orders.Parse(rawStatus)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOrderInvalidInput, err)
	}

	var (
		order *models.Order
		prev  models.OrderStatus
	)
	err = s.db.InTx(ctx, func(ctx context.Context, q *db.Queries) error {
		o, err := q.GetOrder(ctx, orderID)
		if err != nil {
			return notFound(err, ErrOrderNotFound, orderID)
		}
		order, prev = o, o.Status
		if prev == next {
			return nil
		}

		now := s.clock()
		patch := timeline.Orders.Transition(prev, o.Timestamps(), next, now)
		o.ApplyTimestamps(patch)
		o.Status = next
		return q.UpdateOrder(ctx, o, now, append([]string{"status"}, patch.Columns()...)...)
	})
	if err != nil {
		return nil, err
	}
	if prev == next {
		return order, nil
	}

	s.log.LogOrder("STATUS", orderID, fmt.Sprintf("%s -> %s", prev, next))
	s.publish(ctx, s.topics.Status, s.event(ctx, models.EventOrderStatusChanged, orderID, func(ev *models.DomainEvent) {
		ev.PreviousStatus = string(prev)
		ev.Status = string(next)
	}))
	return order, nil
}

// UpdateOrderItemDiscount sets one line item's discount and recomputes the order.
func (s *OrderService) UpdateOrderItemDiscount(ctx context.Context, itemID string, discount int64) (*models.Order, error) {
	if discount < 0 {
		return nil, fmt.Errorf("%w: %w: discount cannot be negative", ErrOrderInvalidInput, pricing.ErrInvalidDiscount)
	}
	return s.mutateItem(ctx, itemID, "DISCOUNT", func(item *models.OrderLineItem) error {
		if err := pricing.ValidateItemDiscount(lineOf(*item), discount); err != nil {
			return err
		}
		item.Discount = discount
		return nil
	})
}

// UpdateOrderItemQuantity sets one line item's quantity, clamping its discount
// to the new item total, and recomputes the order.
func (s *OrderService) UpdateOrderItemQuantity(ctx context.Context, itemID string, quantity int64) (*models.Order, error) {
	if quantity < 1 {
		return nil, fmt.Errorf("%w: %w: quantity must be at least 1", ErrOrderInvalidInput, pricing.ErrInvalidQuantity)
	}
	return s.mutateItem(ctx, itemID, "QUANTITY", func(item *models.OrderLineItem) error {
		line, err := pricing.ApplyQuantity(lineOf(*item), quantity)
		if err != nil {
			return err
		}
		item.Quantity, item.Discount = line.Quantity, line.Discount
		return nil
	})
}

func (s *OrderService) mutateItem(ctx context.Context, itemID, action string, change func(item *models.OrderLineItem) error) (*models.Order, error) {
	var (
		order  *models.Order
		totals pricing.Totals
	)
	err := s.db.InTx(ctx, func(ctx context.Context, q *db.Queries) error {
		item, err := q.GetItem(ctx, itemID)
		if err != nil {
			return notFound(err, ErrOrderItemNotFound, itemID)
		}
		o, err := q.GetOrder(ctx, item.OrderID)
		if err != nil {
			return notFound(err, ErrOrderNotFound, item.OrderID)
		}
		if err := change(item); err != nil {
			return fmt.Errorf("%w: %w", ErrOrderInvalidInput, err)
		}

		now := s.clock()
		if err := q.UpdateItem(ctx, item, now); err != nil {
			return err
		}
		items, err := q.ListItems(ctx, o.ID)
		if err != nil {
			return err
		}
		totals = applyTotals(o, items)
		if err := q.UpdateOrder(ctx, o, now, "subtotal", "discount", "total"); err != nil {
			return err
		}
		order = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.LogOrder(action, order.ID, fmt.Sprintf("item=%s subtotal=%d total=%d", itemID, order.Subtotal, order.Total))
	s.publishTotals(ctx, order, totals)
	return order, nil
}

// UpdateOrderDiscount sets the order's total discount as an absolute target
// and spreads it over the line items in proportion to their totals.
func (s *OrderService) UpdateOrderDiscount(ctx context.Context, orderID string, totalDiscount int64) (*models.Order, error) {
	if totalDiscount < 0 {
		return nil, fmt.Errorf("%w: %w: discount cannot be negative", ErrOrderInvalidInput, pricing.ErrInvalidDiscount)
	}

	var (
		order   *models.Order
		totals  pricing.Totals
		changed bool
	)
	err := s.db.InTx(ctx, func(ctx context.Context, q *db.Queries) error {
		o, err := q.GetOrder(ctx, orderID)
		if err != nil {
			return notFound(err, ErrOrderNotFound, orderID)
		}
		items, err := q.ListItems(ctx, orderID)
		if err != nil {
			return err
		}
		order, changed = o, false
		o.Items = items

		lines, ok, err := pricing.DistributeDiscount(linesOf(items), totalDiscount)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrOrderInvalidInput, err)
		}
		if !ok {
			return nil
		}
		changed = true

		now := s.clock()
		byID := make(map[string]int64, len(lines))
		for _, l := range lines {
			byID[l.ID] = l.Discount
		}
		for i := range items {
			if d := byID[items[i].ID]; d != items[i].Discount {
				items[i].Discount = d
				if err := q.UpdateItem(ctx, &items[i], now); err != nil {
					return err
				}
			}
		}
		totals = applyTotals(o, items)
		return q.UpdateOrder(ctx, o, now, "subtotal", "discount", "total")
	})
	if err != nil {
		return nil, err
	}
	if !changed {
		return order, nil
	}

	s.log.LogOrder("DISCOUNT", orderID, fmt.Sprintf("target=%d subtotal=%d total=%d", totalDiscount, order.Subtotal, order.Total))
	s.publishTotals(ctx, order, totals)
	return order, nil
}

// ---------------- HELPERS ----------------

func (s *OrderService) publishTotals(ctx context.Context, order *models.Order, totals pricing.Totals) {
	s.publish(ctx, s.topics.Totals, s.event(ctx, models.EventOrderTotalsChanged, order.ID, func(ev *models.DomainEvent) {
		ev.Status = string(order.Status)
		ev.Totals = totalsPayload(order, totals)
	}))
}

func (s *OrderService) event(ctx context.Context, typ, entityID string, fill func(ev *models.DomainEvent)) models.DomainEvent {
	ev := models.DomainEvent{
		Type:       typ,
		EntityID:   entityID,
		Actor:      auth.UserID(ctx),
		OccurredAt: s.clock(),
	}
	fill(&ev)
	return ev
}

// publish runs after commit; a failed publish never undoes the change.
func (s *OrderService) publish(ctx context.Context, topic string, ev models.DomainEvent) {
	if s.publisher == nil || topic == "" {
		return
	}
	if err := s.publisher.PublishEvent(ctx, topic, ev); err != nil {
		s.log.Error("KAFKA", fmt.Sprintf("Failed to publish %s for %s: %v", ev.Type, ev.EntityID, err))
	}
}

func applyTotals(order *models.Order, items []models.OrderLineItem) pricing.Totals {
	t := pricing.Compute(linesOf(items), order.ShippingFee)
	order.Subtotal = t.Subtotal
	order.Discount = t.Discount
	order.Total = t.Total
	order.Items = items
	return t
}

func totalsPayload(order *models.Order, t pricing.Totals) *models.OrderTotals {
	return &models.OrderTotals{
		Subtotal:      t.Subtotal,
		ShippingFee:   order.ShippingFee,
		ItemDiscounts: t.LineDiscounts,
		Discount:      t.Discount,
		Total:         t.Total,
	}
}

func lineOf(item models.OrderLineItem) pricing.Line {
	return pricing.Line{ID: item.ID, Price: item.Price, Quantity: item.Quantity, Discount: item.Discount}
}

func linesOf(items []models.OrderLineItem) []pricing.Line {
	lines := make([]pricing.Line, len(items))
	for i, item := range items {
		lines[i] = lineOf(item)
	}
	return lines
}

func notFound(err, sentinel error, id string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", sentinel, id)
	}
	return err
}
