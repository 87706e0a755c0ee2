package model

// MessageType identifies the kind of payload a Message carries through the
// Serial Processor's queue.
type MessageType string

const (
	MessageCandle         MessageType = "candle"
	MessageTrade          MessageType = "trade"
	MessageOrderClose     MessageType = "order-close"
	MessageWalletSnapshot MessageType = "wallet-snapshot"
	MessageWalletUpdate   MessageType = "wallet-update"
	MessageInvoke         MessageType = "invoke"
)

// InvokeRequest carries an external state-mutating handler into the Serial
// Processor's queue so it runs on the same single-goroutine drain that
// handles every other message, instead of racing the drain loop from the
// caller's own goroutine. Result is buffered size 1 so dispatch never
// blocks handing the outcome back even if the caller stops waiting.
type InvokeRequest struct {
	Handler func(any) (any, error)
	Result  chan error
}

// OrderClose is an opaque order-closure payload forwarded to the strategy;
// the core does not interpret its contents.
type OrderClose struct {
	Raw any `json:"raw"`
}

// Message is one entry in the Serial Processor's queue. Insertion is FIFO
// except during resume, when synthetic back-fill candles are unshifted to
// the front and the queue is re-sorted by MTS ascending before draining
// resumes (see internal/queue).
type Message struct {
	Type MessageType

	Candle  Candle
	Trade   Trade
	Order   OrderClose
	Wallets []Wallet // full set for snapshot; single-element for update
	Invoke  *InvokeRequest
}

// MTS returns the message's sort key for resume re-ordering. Order-close
// and wallet messages have no natural timestamp in this data model and
// sort as 0, which is fine: resume re-sorting only needs to interleave
// candles, and a stable sort keeps everything else in arrival order.
func (m Message) MTS() int64 {
	switch m.Type {
	case MessageCandle:
		return m.Candle.MTS
	case MessageTrade:
		return m.Trade.MTS
	default:
		return 0
	}
}

// CandleMessage builds a Message wrapping a candle.
func CandleMessage(c Candle) Message {
	return Message{Type: MessageCandle, Candle: c}
}

// TradeMessage builds a Message wrapping a trade.
func TradeMessage(t Trade) Message {
	return Message{Type: MessageTrade, Trade: t}
}

// OrderCloseMessage builds a Message wrapping an opaque order-close payload.
func OrderCloseMessage(raw any) Message {
	return Message{Type: MessageOrderClose, Order: OrderClose{Raw: raw}}
}

// WalletSnapshotMessage builds a Message replacing the full wallet set.
func WalletSnapshotMessage(wallets []Wallet) Message {
	return Message{Type: MessageWalletSnapshot, Wallets: wallets}
}

// WalletUpdateMessage builds a Message mutating one wallet entry.
func WalletUpdateMessage(w Wallet) Message {
	return Message{Type: MessageWalletUpdate, Wallets: []Wallet{w}}
}

// InvokeMessage builds a Message that runs handler against the current
// strategy state on the drain goroutine and reports back on req.Result.
func InvokeMessage(req *InvokeRequest) Message {
	return Message{Type: MessageInvoke, Invoke: req}
}
