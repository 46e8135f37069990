package model

// Asset is a tradable OTC instrument from the catalogue.
type Asset struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Price      string `json:"price"`
	Change     string `json:"change"`
	ChangeType string `json:"changeType"`
	Payout     int    `json:"payout"`
	Category   string `json:"category"`
	IsOTC      bool   `json:"isOTC"`
}
