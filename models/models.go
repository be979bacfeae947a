package models

// TreasureModel is one named balance as returned by the balance endpoints.
type TreasureModel struct {
	Owner  string `json:"owner"`
	Amount int64  `json:"amount"`
}

// TransferRequest is what the user sends in the transfer call. Owner names
// the receiving balance and may be left empty.
type TransferRequest struct {
	Owner  string `json:"owner"`
	Amount int64  `json:"amount"`
}

// Authorities echoes the caller's principal name and capability tags.
type Authorities struct {
	Name        string   `json:"name"`
	Authorities []string `json:"authorities"`
}

// AppConfig is the public client configuration passthrough.
type AppConfig struct {
	AuthDomain   string `json:"authAuth0Domain"`
	AuthClientID string `json:"authAuth0ClientId"`
}

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
