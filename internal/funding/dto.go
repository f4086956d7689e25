package funding

import "time"

// TopUpRequest captures user-provided data to fund an account from a card.
type TopUpRequest struct {
	CardNumber string `json:"card_number"`
	Expiry     string `json:"expiry"`
	CVV        string `json:"cvv"`
	Amount     uint64 `json:"amount"`
	ClientTxID string `json:"client_tx_id"`
}

// PayoutRequest captures withdrawal details to push funds to a card.
type PayoutRequest struct {
	CardNumber string `json:"card_number"`
	Amount     uint64 `json:"amount"`
	ClientTxID string `json:"client_tx_id"`
}

// FundingResponse is returned by top-up and payout. A replayed client_tx_id
// returns the original transaction.
type FundingResponse struct {
	TransactionID     string    `json:"transaction_id"`
	Status            string    `json:"status"`
	Balance           uint64    `json:"balance"`
	AcquirerReference string    `json:"acquirer_reference,omitempty"`
	CompletedAt       time.Time `json:"completed_at"`
}
