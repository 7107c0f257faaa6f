// Package stage holds the static catalog of transaction stages. Each side of
// a deal (buyer or seller) has its own ordered enumeration; a transaction is
// always bound to exactly one of them.
package stage

import (
	"errors"
	"fmt"
)

// Side fixes which stage enumeration and document flows apply to a
// transaction. Immutable after creation.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

func ParseSide(s string) (Side, error) {
	switch Side(s) {
	case SideBuy, SideSell:
		return Side(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidSide, s)
}

var (
	ErrInvalidSide  = errors.New("invalid transaction side")
	ErrInvalidStage = errors.New("invalid stage for side")
)

// Stage is a closed union over BuyerStage and SellerStage. Binding the side
// into the type makes "both stages set" and "neither stage set" unrepresentable
// on the transaction aggregate.
type Stage interface {
	Side() Side
	Name() string
	// Ordinal is the position within the side's ordered catalog, for audit
	// display only; the state machine itself does not enforce linear order.
	Ordinal() int
	sealed()
}

type BuyerStage string

const (
	BuyerAgreement           BuyerStage = "BUYER_AGREEMENT"
	BuyerPropertySearch      BuyerStage = "BUYER_PROPERTY_SEARCH"
	BuyerOfferAndNegotiation BuyerStage = "BUYER_OFFER_AND_NEGOTIATION"
	BuyerConditions          BuyerStage = "BUYER_CONDITIONS"
	BuyerClosingPrep         BuyerStage = "BUYER_CLOSING_PREP"
	BuyerClosed              BuyerStage = "BUYER_CLOSED"
)

type SellerStage string

const (
	SellerListingAgreement     SellerStage = "SELLER_LISTING_AGREEMENT"
	SellerPropertyPreparation  SellerStage = "SELLER_PROPERTY_PREPARATION"
	SellerMarketingAndShowings SellerStage = "SELLER_MARKETING_AND_SHOWINGS"
	SellerOfferAndNegotiation  SellerStage = "SELLER_OFFER_AND_NEGOTIATION"
	SellerConditions           SellerStage = "SELLER_CONDITIONS"
	SellerClosed               SellerStage = "SELLER_CLOSED"
)

// BuyerStages and SellerStages are the ordered reference catalogs.
var BuyerStages = []BuyerStage{
	BuyerAgreement,
	BuyerPropertySearch,
	BuyerOfferAndNegotiation,
	BuyerConditions,
	BuyerClosingPrep,
	BuyerClosed,
}

var SellerStages = []SellerStage{
	SellerListingAgreement,
	SellerPropertyPreparation,
	SellerMarketingAndShowings,
	SellerOfferAndNegotiation,
	SellerConditions,
	SellerClosed,
}

func (s BuyerStage) Side() Side { return SideBuy }
func (s BuyerStage) Name() string { return string(s) }
func (s BuyerStage) Ordinal() int {
	for i, v := range BuyerStages {
		if v == s {
			return i
		}
	}
	return -1
}
func (BuyerStage) sealed() {}

func (s SellerStage) Side() Side { return SideSell }
func (s SellerStage) Name() string { return string(s) }
func (s SellerStage) Ordinal() int {
	for i, v := range SellerStages {
		if v == s {
			return i
		}
	}
	return -1
}
func (SellerStage) sealed() {}

// First returns the initial stage for a side; new transactions start here.
func First(side Side) Stage {
	if side == SideSell {
		return SellerStages[0]
	}
	return BuyerStages[0]
}

// ParseForSide resolves a stage name against the catalog of the given side.
// Names from the other side, or unknown names, are rejected.
func ParseForSide(side Side, name string) (Stage, error) {
	switch side {
	case SideBuy:
		for _, s := range BuyerStages {
			if s.Name() == name {
				return s, nil
			}
		}
	case SideSell:
		for _, s := range SellerStages {
			if s.Name() == name {
				return s, nil
			}
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidSide, side)
	}
	return nil, fmt.Errorf("%w: %q is not a %s stage", ErrInvalidStage, name, side)
}
