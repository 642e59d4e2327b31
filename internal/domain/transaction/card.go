package transaction

import (
	"context"
	"errors"
	"log"

	"txengine/internal/domain/failure"
	"txengine/internal/domain/product"
)

// CardService charges debit card purchases to the first linked account that
// can cover them.
type CardService struct {
	gateway      product.Gateway
	transactions *Service
}

// NewCardService creates a card service that records purchases through transactions.
func NewCardService(gateway product.Gateway, transactions *Service) *CardService {
	return &CardService{gateway: gateway, transactions: transactions}
}

// Charge tries the card's primary account, then its linked accounts in order,
// and creates a PURCHASE on the first one whose balance covers the amount.
func (s *CardService) Charge(ctx context.Context, params CardParams) (*Transaction, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	card, err := s.gateway.GetCard(ctx, params.CardID)
	if err != nil {
		return nil, gatewayErr("get card", err)
	}
	if !card.Active {
		return nil, ErrCardInactive
	}

	for _, accountID := range card.ChargeOrder() {
		account, err := s.gateway.Get(ctx, accountID)
		if errors.Is(err, failure.ErrNotFound) {
			log.Printf("Card %s: linked account %s not found, skipping", card.ID, accountID)
			continue
		}
		if err != nil {
			return nil, gatewayErr("get card account", err)
		}
		if account.Balance.LessThan(params.Amount) {
			continue
		}
		return s.transactions.Create(ctx, CreateParams{
			SourceProductID: accountID,
			Type:            TypePurchase,
			Amount:          params.Amount,
		})
	}

	return nil, ErrInsufficientFunds
}
