// Package privvy is the client for the Privvy merchant boarding platform.
//
// A TokenCache logs in with account credentials and keeps the bearer token
// for a fixed window. A Client uses the cache to download the full merchant
// list. Neither retries: a failed call surfaces as an *AuthError or
// *FetchError and the caller decides what to do.
package privvy

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ID is an identifier the provider sends as either a JSON string or number.
type ID string

// UnmarshalJSON accepts strings, numbers, booleans, and null
func (id *ID) UnmarshalJSON(data []byte) error {
	v, err := decodeScalar(data)
	if err != nil {
		return err
	}
	*id = ID(v)
	return nil
}

// String returns the identifier as text
func (id ID) String() string {
	return string(id)
}

// Text is a free-text field. The provider is loose about JSON types, so
// numbers and booleans are kept as their literal text and null becomes "".
type Text string

// UnmarshalJSON accepts strings, numbers, booleans, and null
func (t *Text) UnmarshalJSON(data []byte) error {
	v, err := decodeScalar(data)
	if err != nil {
		return err
	}
	*t = Text(v)
	return nil
}

// String returns the field as text
func (t Text) String() string {
	return string(t)
}

func decodeScalar(data []byte) (string, error) {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		return "", nil
	case bytes.Equal(data, []byte("true")), bytes.Equal(data, []byte("false")):
		return string(data), nil
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return "", err
		}
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return "", fmt.Errorf("expected a string, number, or boolean, got %s", data)
	}
	return n.String(), nil
}

// MerchantRecord is one merchant as returned by GET /mids.
// Only MID, MerchName, LegalName and CustomerStatus feed reconciliation;
// the rest are carried through for callers that want them.
type MerchantRecord struct {
	MID            ID     `json:"MID"`
	MerchName      Text   `json:"MerchName"`
	LegalName      Text   `json:"legalName"`
	CustomerID     ID     `json:"customerid"`
	AgentID        ID     `json:"agentId"`
	Agent          Text   `json:"agent"`
	AgentEmail     Text   `json:"agent_email"`
	CustomerStatus Text   `json:"customer_status"`
	SubmittedAt    Text   `json:"submitted_at"`
	ApprovedAt     Text   `json:"approved_at"`
	DateBoarded    Text   `json:"date_boarded"`
	OfferCode      Text   `json:"offercode"`
	OfferID        ID     `json:"offerid"`
	FeeSchedule    Text   `json:"fee_schedule"`
	CorpPhone      Text   `json:"CorpPhone"`
	CorpEmail      Text   `json:"CorpEmail"`
}

// loginRequest is the body of POST /login
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// loginResponse carries the token under one of two field names
type loginResponse struct {
	Token       string `json:"token"`
	AccessToken string `json:"access_token"`
}

func (r loginResponse) bearer() string {
	if r.Token != "" {
		return r.Token
	}
	return r.AccessToken
}
