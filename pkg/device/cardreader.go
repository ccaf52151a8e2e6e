package device

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/wendylw/mock-driven-testing-sub001/pkg/model"
)

// Card is a payment card presented to the reader. Number is masked.
type Card struct {
	Number string `json:"number"`
	Brand  string `json:"brand"`
	Holder string `json:"holder,omitempty"`
	Expiry string `json:"expiry,omitempty"`
}

func (c Card) payload() model.Payload {
	return model.Payload{"number": c.Number, "brand": c.Brand, "holder": c.Holder, "expiry": c.Expiry}
}

var testCards = []Card{
	{Number: "4242424242424242", Brand: "visa", Holder: "TEST CARDHOLDER", Expiry: "12/30"},
	{Number: "5555555555554444", Brand: "mastercard", Holder: "TEST CARDHOLDER", Expiry: "11/29"},
	{Number: "378282246310005", Brand: "amex", Holder: "TEST CARDHOLDER", Expiry: "10/28"},
}

// CardReaderState is the operational state of a payment terminal.
type CardReaderState struct {
	Ready       bool  `json:"ready"`
	CardPresent bool  `json:"cardPresent"`
	CurrentCard *Card `json:"currentCard,omitempty"`
}

// CardResult is returned by ReadCard.
type CardResult struct {
	Completion
	Card Card `json:"card"`
}

// PaymentResult is returned by ProcessPayment. Amounts are in minor units.
type PaymentResult struct {
	Completion
	Approved      bool   `json:"approved"`
	TransactionID string `json:"transactionId"`
	Amount        int64  `json:"amount"`
	Last4         string `json:"last4"`
}

// CardReader simulates a payment card terminal.
type CardReader struct {
	*base
	st CardReaderState
}

// NewCardReader creates a disconnected, ready terminal with no card.
func NewCardReader(id string, opts ...Option) (*CardReader, error) {
	b, err := newBase(id, model.CardReader, opts)
	if err != nil {
		return nil, err
	}
	c := &CardReader{base: b}
	b.v = c
	c.resetState()
	return c, nil
}

func (c *CardReader) resetState() {
	c.st = CardReaderState{Ready: true}
}

func (c *CardReader) snapshot() any {
	st := c.st
	if st.CurrentCard != nil {
		card := *st.CurrentCard
		st.CurrentCard = &card
	}
	return st
}

// State returns the terminal's operational state.
func (c *CardReader) State() CardReaderState {
	var st CardReaderState
	c.read(func() { st = c.snapshot().(CardReaderState) })
	return st
}

// ReadCard reads the presented card. Without a card in the slot a test
// card is inserted first.
func (c *CardReader) ReadCard(ctx context.Context) (CardResult, error) {
	oc, err := c.begin(OpReadCard)
	if err != nil {
		return CardResult{}, err
	}
	if !c.State().Ready {
		return CardResult{}, c.refuse(OpReadCard, ErrTypeReaderNotReady, model.EventCardError)
	}
	if err := c.await(ctx, oc, OpReadCard, model.EventCardError); err != nil {
		return CardResult{}, err
	}

	candidate := testCards[c.intn(len(testCards))]
	candidate.Number = mask(candidate.Number)
	var (
		card     Card
		inserted bool
	)
	ok := c.commit(oc, OpReadCard, func() {
		if c.st.CurrentCard == nil {
			c.st.CurrentCard = &candidate
			c.st.CardPresent = true
			inserted = true
		}
		card = *c.st.CurrentCard
	})
	if !ok {
		return CardResult{Completion: Completion{Stale: true}}, nil
	}
	if inserted {
		c.emit(model.EventCardInserted, card.payload())
	}
	c.emit(model.EventCardRead, card.payload())
	return CardResult{Card: card}, nil
}

// EjectCard returns the card to the customer.
func (c *CardReader) EjectCard(ctx context.Context) (Completion, error) {
	oc, err := c.begin(OpEjectCard)
	if err != nil {
		return Completion{}, err
	}
	if !c.State().CardPresent {
		return Completion{}, c.refuse(OpEjectCard, ErrTypeNoCard, model.EventCardError)
	}
	if err := c.await(ctx, oc, OpEjectCard, model.EventCardError); err != nil {
		return Completion{}, err
	}
	ok := c.commit(oc, OpEjectCard, func() {
		c.st.CardPresent = false
		c.st.CurrentCard = nil
	})
	if !ok {
		return Completion{Stale: true}, nil
	}
	c.emit(model.EventCardRemoved, model.Payload{})
	return Completion{}, nil
}

// ProcessPayment charges the presented card.
func (c *CardReader) ProcessPayment(ctx context.Context, amount int64) (PaymentResult, error) {
	oc, err := c.begin(OpPayment)
	if err != nil {
		return PaymentResult{}, err
	}
	if amount <= 0 {
		return PaymentResult{}, fmt.Errorf("%w: payment amount %d", ErrInvalidArgument, amount)
	}
	if !c.State().CardPresent {
		return PaymentResult{}, c.refuse(OpPayment, ErrTypeNoCard, model.EventCardError)
	}
	if err := c.await(ctx, oc, OpPayment, model.EventCardError); err != nil {
		return PaymentResult{}, err
	}

	res := PaymentResult{Approved: true, TransactionID: uuid.NewString(), Amount: amount}
	ok := c.commit(oc, OpPayment, func() {
		if c.st.CurrentCard != nil {
			res.Last4 = last4(c.st.CurrentCard.Number)
		}
	})
	if !ok {
		return PaymentResult{Completion: Completion{Stale: true}}, nil
	}
	c.emit(model.EventPaymentProcessed, model.Payload{
		"approved":      res.Approved,
		"transactionId": res.TransactionID,
		"amount":        res.Amount,
		"last4":         res.Last4,
	})
	return res, nil
}

func (c *CardReader) external(eventType string, data map[string]any) ([]emission, bool) {
	switch eventType {
	case "insertCard", "cardInserted":
		card := testCards[0]
		card.Number = mask(stringArg(data, "number", card.Number))
		card.Brand = stringArg(data, "brand", card.Brand)
		card.Holder = stringArg(data, "holder", card.Holder)
		card.Expiry = stringArg(data, "expiry", card.Expiry)
		c.st.CardPresent = true
		c.st.CurrentCard = &card
		return []emission{{model.EventCardInserted, card.payload()}}, true
	case "removeCard", "cardRemoved":
		if !c.st.CardPresent {
			return []emission{}, true
		}
		c.st.CardPresent = false
		c.st.CurrentCard = nil
		return []emission{{model.EventCardRemoved, model.Payload{}}}, true
	case "ready":
		c.st.Ready = true
		return []emission{{model.EventReaderReady, model.Payload{"ready": true}}}, true
	case "notReady":
		c.st.Ready = false
		return []emission{{model.EventReaderNotReady, model.Payload{"ready": false}}}, true
	}
	return nil, false
}
