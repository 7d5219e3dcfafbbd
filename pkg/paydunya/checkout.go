package paydunya

import (
	"context"
	"errors"
)

// InvoiceParams describes a hosted checkout invoice.
type InvoiceParams struct {
	AmountCFA       int64
	Description     string
	ClientReference string
	SessionID       string
	CallbackURL     string
	ReturnURL       string
	CancelURL       string
}

// Invoice is the created checkout invoice. Token identifies it in IPNs.
type Invoice struct {
	Token       string
	CheckoutURL string
}

type invoiceRequest struct {
	Invoice struct {
		TotalAmount int64  `json:"total_amount"`
		Description string `json:"description"`
	} `json:"invoice"`
	Store struct {
		Name string `json:"name"`
	} `json:"store"`
	CustomData map[string]string `json:"custom_data"`
	Actions    struct {
		CancelURL   string `json:"cancel_url,omitempty"`
		ReturnURL   string `json:"return_url,omitempty"`
		CallbackURL string `json:"callback_url,omitempty"`
	} `json:"actions"`
}

type invoiceResponse struct {
	ResponseText string `json:"response_text"`
	Token        string `json:"token"`
}

// CreateInvoice opens a checkout invoice. The checkout URL is returned in response_text.
func (c *Client) CreateInvoice(ctx context.Context, p InvoiceParams) (*Invoice, error) {
	if c == nil {
		return nil, errors.New("paydunya client not initialized")
	}
	var req invoiceRequest
	req.Invoice.TotalAmount = p.AmountCFA
	req.Invoice.Description = p.Description
	req.Store.Name = c.storeName
	req.CustomData = map[string]string{
		"client_reference": p.ClientReference,
		"session_id":       p.SessionID,
	}
	req.Actions.CallbackURL = p.CallbackURL
	req.Actions.ReturnURL = p.ReturnURL
	req.Actions.CancelURL = p.CancelURL

	var resp invoiceResponse
	if err := c.post(ctx, "/checkout-invoice/create", req, &resp); err != nil {
		return nil, err
	}
	if resp.Token == "" {
		return nil, errors.New("paydunya invoice response missing token")
	}
	return &Invoice{Token: resp.Token, CheckoutURL: resp.ResponseText}, nil
}
