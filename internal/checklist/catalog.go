// Package checklist reconciles the per-stage requirement catalog with the
// document lifecycle: auto-completion is derived from approved documents,
// manual completion is toggled by the broker and sticky until toggled back.
package checklist

import (
	"dealflow/internal/document"
	"dealflow/internal/stage"
)

// Item is one named requirement for a stage. Items optionally map to a
// document type whose approval auto-satisfies them; items without a mapping
// are manual-only.
type Item struct {
	Key               string
	Label             string
	DocType           document.Type
	Flow              document.Flow
	SignatureRequired bool
}

// HasDocument reports whether the item is backed by a document type.
func (i Item) HasDocument() bool { return i.DocType != "" }

// catalog is the static reference checklist per stage.
var catalog = map[string][]Item{
	stage.BuyerAgreement.Name(): {
		{Key: "buyer_representation_agreement", Label: "Signed buyer representation agreement", DocType: document.TypeBuyerRepAgreement, Flow: document.FlowRequest, SignatureRequired: true},
		{Key: "pre_approval_letter", Label: "Mortgage pre-approval letter", DocType: document.TypePreApprovalLetter, Flow: document.FlowRequest},
		{Key: "intake_call", Label: "Intake call completed"},
	},
	stage.BuyerPropertySearch.Name(): {
		{Key: "search_criteria", Label: "Search criteria confirmed"},
		{Key: "property_shortlist", Label: "Property shortlist reviewed"},
	},
	stage.BuyerOfferAndNegotiation.Name(): {
		{Key: "offer_document", Label: "Offer prepared and signed", DocType: document.TypeOffer, Flow: document.FlowUpload, SignatureRequired: true},
		{Key: "deposit_receipt", Label: "Deposit receipt", DocType: document.TypeDepositReceipt, Flow: document.FlowRequest},
	},
	stage.BuyerConditions.Name(): {
		{Key: "inspection_report", Label: "Inspection report", DocType: document.TypeInspectionReport, Flow: document.FlowRequest},
		{Key: "financing_confirmation", Label: "Financing confirmation", DocType: document.TypeFinancingConfirmation, Flow: document.FlowRequest},
	},
	stage.BuyerClosingPrep.Name(): {
		{Key: "purchase_agreement", Label: "Purchase agreement executed", DocType: document.TypePurchaseAgreement, Flow: document.FlowUpload, SignatureRequired: true},
		{Key: "title_documents", Label: "Title documents", DocType: document.TypeTitleDocuments, Flow: document.FlowRequest},
	},
	stage.BuyerClosed.Name(): {
		{Key: "closing_statement", Label: "Closing statement delivered", DocType: document.TypeClosingStatement, Flow: document.FlowUpload},
		{Key: "keys_handover", Label: "Keys handed over"},
	},
	stage.SellerListingAgreement.Name(): {
		{Key: "listing_agreement", Label: "Signed listing agreement", DocType: document.TypeListingAgreement, Flow: document.FlowRequest, SignatureRequired: true},
		{Key: "property_disclosure", Label: "Property disclosure statement", DocType: document.TypePropertyDisclosure, Flow: document.FlowRequest},
	},
	stage.SellerPropertyPreparation.Name(): {
		{Key: "photos_scheduled", Label: "Listing photos scheduled"},
		{Key: "staging_complete", Label: "Staging complete"},
	},
	stage.SellerMarketingAndShowings.Name(): {
		{Key: "listing_live", Label: "Listing published"},
		{Key: "showing_feedback", Label: "Showing feedback reviewed"},
	},
	stage.SellerOfferAndNegotiation.Name(): {
		{Key: "offer_document", Label: "Offer reviewed and signed", DocType: document.TypeOffer, Flow: document.FlowUpload, SignatureRequired: true},
	},
	stage.SellerConditions.Name(): {
		{Key: "inspection_report", Label: "Inspection report", DocType: document.TypeInspectionReport, Flow: document.FlowRequest},
	},
	stage.SellerClosed.Name(): {
		{Key: "closing_statement", Label: "Closing statement delivered", DocType: document.TypeClosingStatement, Flow: document.FlowUpload},
	},
}

// ItemsForStage returns the catalog entries for one stage.
func ItemsForStage(st stage.Stage) []Item {
	return catalog[st.Name()]
}
