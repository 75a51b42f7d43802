package models

type CartItem struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type Cart struct {
	AccountID string     `json:"account_id"`
	Items     []CartItem `json:"items"`
	Total     int        `json:"total_quantity"`
}
