package evidence

import (
	"slices"
	"time"
)

// Section names one independently retrievable slice of evidence.
type Section string

const (
	SectionOrder         Section = "order"
	SectionTransactions  Section = "transactions"
	SectionRefundHistory Section = "refund_history"
	SectionChargebacks   Section = "chargebacks"
	SectionSession       Section = "session"
	SectionPolicy        Section = "policy"
)

// FactSections lists the structured-facts sections in retrieval order.
var FactSections = []Section{
	SectionOrder,
	SectionTransactions,
	SectionRefundHistory,
	SectionChargebacks,
	SectionSession,
}

// Geo is a WGS84 coordinate pair.
type Geo struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Order is the order record a request refers to.
type Order struct {
	ID          string     `json:"id"`
	CustomerID  string     `json:"customer_id"`
	Total       int64      `json:"total"`
	Currency    string     `json:"currency,omitempty"`
	Status      string     `json:"status,omitempty"`
	Items       []string   `json:"items,omitempty"`
	PlacedAt    time.Time  `json:"placed_at"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
	ShippingGeo *Geo       `json:"shipping_geo,omitempty"`
}

// Transaction is a payment-side movement against an order.
type Transaction struct {
	ID      string    `json:"id"`
	OrderID string    `json:"order_id"`
	Kind    string    `json:"kind"`
	Amount  int64     `json:"amount"`
	At      time.Time `json:"at"`
}

// Refund is a prior refund issued to the customer.
type Refund struct {
	ID        string    `json:"id"`
	OrderID   string    `json:"order_id"`
	Amount    int64     `json:"amount"`
	CreatedAt time.Time `json:"created_at"`
}

// Chargeback is a card-network dispute raised by the customer.
type Chargeback struct {
	ID       string    `json:"id"`
	OrderID  string    `json:"order_id,omitempty"`
	Status   string    `json:"status"`
	OpenedAt time.Time `json:"opened_at"`
}

// Session is the login/session metadata for the requester.
type Session struct {
	ID      string    `json:"id"`
	IP      string    `json:"ip,omitempty"`
	Device  string    `json:"device,omitempty"`
	Geo     *Geo      `json:"geo,omitempty"`
	LoginAt time.Time `json:"login_at"`
}

// StructuredFacts holds the typed records from the facts collaborator.
// A nil Order or Session means the record does not exist upstream.
type StructuredFacts struct {
	Order         *Order        `json:"order"`
	Transactions  []Transaction `json:"transactions"`
	RefundHistory []Refund      `json:"refund_history"`
	Chargebacks   []Chargeback  `json:"chargebacks"`
	Session       *Session      `json:"session"`
}

// PolicyClause is one ranked result from the policy collaborator.
type PolicyClause struct {
	ID        string  `json:"id"`
	Text      string  `json:"text"`
	Category  string  `json:"category"`
	Relevance float64 `json:"relevance"`
}

// Evidence is the read-only snapshot attached to a request.
// Unavailable lists sections that could not be retrieved after retries;
// their contents are unknown, not empty.
type Evidence struct {
	Facts       StructuredFacts `json:"facts"`
	Policy      []PolicyClause  `json:"policy"`
	Unavailable []Section       `json:"unavailable,omitempty"`
	RetrievedAt time.Time       `json:"retrieved_at"`
}

// Known reports whether section was retrieved, including as known-empty.
func (e *Evidence) Known(section Section) bool {
	return !slices.Contains(e.Unavailable, section)
}

// Lookup identifies the records to retrieve for a request.
type Lookup struct {
	CustomerID string `json:"customer_id"`
	OrderID    string `json:"order_id,omitempty"`
	SessionID  string `json:"session_id,omitempty"`
}

// PolicyQuery is a semantic policy search.
type PolicyQuery struct {
	Category string `json:"category"`
	Text     string `json:"query"`
}
