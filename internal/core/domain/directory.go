package domain

// Customer, Vehicle and Dealer are owned by the console's directories;
// scheduling only reads them for display and notification.
type Customer struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	PushToken string `json:"pushToken"`
}

type Vehicle struct {
	ID    string `json:"id"`
	Make  string `json:"make"`
	Model string `json:"model"`
	Year  int    `json:"year"`
	VIN   string `json:"vin"`
}

func (v Vehicle) DisplayName() string {
	if v.Make == "" && v.Model == "" {
		return v.ID
	}
	return v.Make + " " + v.Model
}

type Dealer struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Address string `json:"address"`
	Phone   string `json:"phone"`
}
