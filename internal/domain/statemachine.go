package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// OrderStatusKind enumerates the closed set of order states.
type OrderStatusKind string

const (
	// StatusPending marks a freshly checked-out, unpaid order.
	StatusPending OrderStatusKind = "pending"
	// StatusPaid marks an order settled via the ledger or awaiting COD collection.
	StatusPaid OrderStatusKind = "paid"
	// StatusShipped marks an order handed to the carrier.
	StatusShipped OrderStatusKind = "shipped"
	// StatusDelivered marks a completed delivery. Terminal.
	StatusDelivered OrderStatusKind = "delivered"
	// StatusCancelled marks an order cancelled before payment. Terminal.
	StatusCancelled OrderStatusKind = "cancelled"
	// StatusRefunded marks a paid order refunded to the buyer. Terminal.
	StatusRefunded OrderStatusKind = "refunded"
)

// OrderStatus is the tagged status value carried on an order. Exactly the
// fields belonging to Kind are set; transitions are the only mutator.
type OrderStatus struct {
	Kind         OrderStatusKind
	PaidAt       *time.Time
	ShippedAt    *time.Time
	Tracking     string
	DeliveredAt  *time.Time
	CancelReason string
	RefundedAt   *time.Time
	RefundReason string
}

// Pending returns the initial order status.
func Pending() OrderStatus {
	return OrderStatus{Kind: StatusPending}
}

// Terminal reports whether the status admits no further transitions.
func (s OrderStatus) Terminal() bool {
	switch s.Kind {
	case StatusDelivered, StatusCancelled, StatusRefunded:
		return true
	}
	return false
}

// EventKind names the order lifecycle events.
type EventKind string

const (
	// EventConfirmPayment moves pending to paid.
	EventConfirmPayment EventKind = "confirm_payment"
	// EventShip moves paid (or pending COD) to shipped.
	EventShip EventKind = "ship"
	// EventDeliver moves shipped to delivered.
	EventDeliver EventKind = "deliver"
	// EventCancel moves pending to cancelled.
	EventCancel EventKind = "cancel"
	// EventRefund moves paid to refunded.
	EventRefund EventKind = "refund"
)

// OrderLifecycleEvent is the closed set of events accepted by Transition.
type OrderLifecycleEvent interface {
	Kind() EventKind
}

// ConfirmPayment records settlement of a pending order.
type ConfirmPayment struct {
	At time.Time
}

// Ship records carrier handoff with a tracking number.
type Ship struct {
	At       time.Time
	Tracking string
}

// Deliver records completed delivery.
type Deliver struct {
	At time.Time
}

// Cancel aborts a pending order with a reason.
type Cancel struct {
	Reason string
}

// Refund returns a paid order's total to the buyer with a reason.
type Refund struct {
	At     time.Time
	Reason string
}

// Kind implements OrderLifecycleEvent.
func (ConfirmPayment) Kind() EventKind { return EventConfirmPayment }

// Kind implements OrderLifecycleEvent.
func (Ship) Kind() EventKind { return EventShip }

// Kind implements OrderLifecycleEvent.
func (Deliver) Kind() EventKind { return EventDeliver }

// Kind implements OrderLifecycleEvent.
func (Cancel) Kind() EventKind { return EventCancel }

// Kind implements OrderLifecycleEvent.
func (Refund) Kind() EventKind { return EventRefund }

var (
	// ErrIllegalTransition rejects an event not defined for the current status.
	ErrIllegalTransition = errors.New("order status: illegal transition")
	// ErrInvalidEventPayload rejects an event whose payload fails validation
	// before the transition table is consulted.
	ErrInvalidEventPayload = errors.New("order status: invalid event payload")
)

// ValidateEventPayload checks the event payload in a pass distinct from the
// transition itself, so callers can tell a bad payload from an illegal move.
func ValidateEventPayload(event OrderLifecycleEvent) error {
	switch e := event.(type) {
	case Ship:
		if strings.TrimSpace(e.Tracking) == "" {
			return fmt.Errorf("%w: ship requires a tracking number", ErrInvalidEventPayload)
		}
	case Cancel:
		if strings.TrimSpace(e.Reason) == "" {
			return fmt.Errorf("%w: cancel requires a reason", ErrInvalidEventPayload)
		}
	case Refund:
		if strings.TrimSpace(e.Reason) == "" {
			return fmt.Errorf("%w: refund requires a reason", ErrInvalidEventPayload)
		}
	}
	return nil
}

// Transition is the pure (status, event) -> status function. It consults
// nothing beyond its arguments; the cash-on-delivery ship exception is a
// caller concern layered on top of this table.
func Transition(current OrderStatus, event OrderLifecycleEvent) (OrderStatus, error) {
	switch e := event.(type) {
	case ConfirmPayment:
		if current.Kind != StatusPending {
			return OrderStatus{}, illegal(current.Kind, event)
		}
		at := e.At
		return OrderStatus{Kind: StatusPaid, PaidAt: &at}, nil
	case Ship:
		if current.Kind != StatusPaid {
			return OrderStatus{}, illegal(current.Kind, event)
		}
		at := e.At
		return OrderStatus{Kind: StatusShipped, ShippedAt: &at, Tracking: strings.TrimSpace(e.Tracking)}, nil
	case Deliver:
		if current.Kind != StatusShipped {
			return OrderStatus{}, illegal(current.Kind, event)
		}
		at := e.At
		return OrderStatus{Kind: StatusDelivered, DeliveredAt: &at}, nil
	case Cancel:
		if current.Kind != StatusPending {
			return OrderStatus{}, illegal(current.Kind, event)
		}
		return OrderStatus{Kind: StatusCancelled, CancelReason: strings.TrimSpace(e.Reason)}, nil
	case Refund:
		if current.Kind != StatusPaid {
			return OrderStatus{}, illegal(current.Kind, event)
		}
		at := e.At
		return OrderStatus{Kind: StatusRefunded, RefundedAt: &at, RefundReason: strings.TrimSpace(e.Reason)}, nil
	default:
		return OrderStatus{}, illegal(current.Kind, event)
	}
}

// AllowedEvents lists the event kinds the transition table accepts from the
// given status. Terminal statuses yield nil.
func AllowedEvents(status OrderStatusKind) []EventKind {
	switch status {
	case StatusPending:
		return []EventKind{EventConfirmPayment, EventCancel}
	case StatusPaid:
		return []EventKind{EventShip, EventRefund}
	case StatusShipped:
		return []EventKind{EventDeliver}
	default:
		return nil
	}
}

func illegal(current OrderStatusKind, event OrderLifecycleEvent) error {
	return fmt.Errorf("%w: %s does not accept %s", ErrIllegalTransition, current, event.Kind())
}
