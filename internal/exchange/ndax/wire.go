package ndax

import (
	"fmt"

	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"
)

// Message frame types used by the venue protocol.
const (
	msgTypeRequest     = 0
	msgTypeReply       = 1
	msgTypeSubscribe   = 2
	msgTypeEvent       = 3
	msgTypeUnsubscribe = 4
	msgTypeErrorReply  = 5
)

// Endpoint names carried in the envelope's "n" field.
const (
	EndpointAuthenticateUser     = "AuthenticateUser"
	EndpointAccountPositionEvent = "AccountPositionEvent"
	EndpointOrderStateEvent      = "OrderStateEvent"
	EndpointOrderTradeEvent      = "OrderTradeEvent"
	EndpointSubscribeAccount     = "SubscribeAccountEvents"
)

// Envelope is the venue's wire frame: payload travels as a JSON-encoded string.
type Envelope struct {
	MessageType int    `json:"m"`
	Sequence    int64  `json:"i"`
	Endpoint    string `json:"n"`
	Payload     string `json:"o"`
}

// EventKind is the closed set of stream events this core understands, plus an
// explicit unknown variant for forward compatibility.
type EventKind int

const (
	EventUnknown EventKind = iota
	EventAuthResult
	EventAccountPosition
	EventOrderState
	EventOrderTrade
)

var endpointKinds = map[string]EventKind{
	EndpointAuthenticateUser:     EventAuthResult,
	EndpointAccountPositionEvent: EventAccountPosition,
	EndpointOrderStateEvent:      EventOrderState,
	EndpointOrderTradeEvent:      EventOrderTrade,
}

// KindOf maps an endpoint name onto the event kind, EventUnknown when the
// endpoint is not recognized.
func KindOf(endpoint string) EventKind {
	if kind, ok := endpointKinds[endpoint]; ok {
		return kind
	}
	return EventUnknown
}

// AuthResult is the payload of the AuthenticateUser reply.
type AuthResult struct {
	Authenticated bool   `json:"Authenticated"`
	SessionToken  string `json:"SessionToken"`
	User          struct {
		UserID    int64  `json:"UserId"`
		UserName  string `json:"UserName"`
		AccountID int64  `json:"AccountId"`
		OMSID     int64  `json:"OMSId"`
	} `json:"User"`
	ErrorMsg string `json:"errormsg"`
}

// AccountPosition is a per-asset balance report from the stream.
type AccountPosition struct {
	OMSID         int64           `json:"OMSId"`
	AccountID     int64           `json:"AccountId"`
	ProductSymbol string          `json:"ProductSymbol"`
	ProductID     int64           `json:"ProductId"`
	Amount        decimal.Decimal `json:"Amount"`
	Hold          decimal.Decimal `json:"Hold"`
}

// OrderState is an order lifecycle report from the stream.
type OrderState struct {
	Side             string          `json:"Side"`
	OrderID          int64           `json:"OrderId"`
	Price            decimal.Decimal `json:"Price"`
	Quantity         decimal.Decimal `json:"Quantity"`
	Instrument       int64           `json:"Instrument"`
	Account          int64           `json:"Account"`
	OrderType        string          `json:"OrderType"`
	ClientOrderID    int64           `json:"ClientOrderId"`
	OrderState       string          `json:"OrderState"`
	ReceiveTime      int64           `json:"ReceiveTime"`
	OrigQuantity     decimal.Decimal `json:"OrigQuantity"`
	QuantityExecuted decimal.Decimal `json:"QuantityExecuted"`
	AvgPrice         decimal.Decimal `json:"AvgPrice"`
	ChangeReason     string          `json:"ChangeReason"`
}

// OrderTrade is a single execution report from the stream.
type OrderTrade struct {
	OMSID         int64           `json:"OMSId"`
	TradeID       int64           `json:"TradeId"`
	OrderID       int64           `json:"OrderId"`
	AccountID     int64           `json:"AccountId"`
	ClientOrderID int64           `json:"ClientOrderId"`
	InstrumentID  int64           `json:"InstrumentId"`
	Side          string          `json:"Side"`
	Quantity      decimal.Decimal `json:"Quantity"`
	Price         decimal.Decimal `json:"Price"`
	Value         decimal.Decimal `json:"Value"`
	TradeTime     int64           `json:"TradeTime"`
	Direction     string          `json:"Direction"`
}

// DecodeEnvelope parses one raw frame into its envelope.
func DecodeEnvelope(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	return env, nil
}

// DecodePayload parses the envelope's string-encoded payload into dst.
func DecodePayload(env Envelope, dst any) error {
	if err := json.Unmarshal([]byte(env.Payload), dst); err != nil {
		return fmt.Errorf("decode %s payload: %w", env.Endpoint, err)
	}
	return nil
}

// EncodeRequest builds an outbound request frame around the given payload.
func EncodeRequest(seq int64, endpoint string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", endpoint, err)
	}
	env := Envelope{
		MessageType: msgTypeRequest,
		Sequence:    seq,
		Endpoint:    endpoint,
		Payload:     string(body),
	}
	return json.Marshal(env)
}
