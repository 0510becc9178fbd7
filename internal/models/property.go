package models

import "time"

// Kind distinguishes historical sales from active listings.
type Kind string

const (
	KindSold    Kind = "sold"
	KindForSale Kind = "for_sale"
)

type Property struct {
	PropertyID string    `json:"property_id" validate:"required"`
	Kind       Kind      `json:"kind" validate:"oneof=sold for_sale"`
	URL        string    `json:"url" validate:"listingurl"`
	ScrapedAt  time.Time `json:"scraped_at"`

	Address      *string  `json:"address,omitempty"`
	City         *string  `json:"city,omitempty"`
	Neighborhood *string  `json:"neighborhood,omitempty"`
	Latitude     *float64 `json:"latitude,omitempty" validate:"omitempty,gte=-90,lte=90"`
	Longitude    *float64 `json:"longitude,omitempty" validate:"omitempty,gte=-180,lte=180"`

	HousingForm  *string  `json:"housing_form,omitempty"`
	Tenure       *string  `json:"tenure,omitempty"`
	Rooms        *float64 `json:"rooms,omitempty" validate:"omitempty,gte=0,lte=20"`
	LivingArea   *float64 `json:"living_area,omitempty" validate:"omitempty,gte=10,lte=1000"`
	LotArea      *float64 `json:"lot_area,omitempty" validate:"omitempty,gte=0"`
	Floor        *string  `json:"floor,omitempty"`
	Elevator     *bool    `json:"elevator,omitempty"`
	Balcony      *bool    `json:"balcony,omitempty"`
	BuildingYear *int     `json:"building_year,omitempty" validate:"omitempty,gte=1800,lte=2030"`
	EnergyClass  *string  `json:"energy_class,omitempty"`

	AssociationName *string `json:"association_name,omitempty"`
	AssociationFee  *int64  `json:"association_fee,omitempty" validate:"omitempty,gte=0"`
	OperatingCost   *int64  `json:"operating_cost,omitempty" validate:"omitempty,gte=0"`

	Description *string `json:"description,omitempty"`

	AskingPrice      *int64   `json:"asking_price,omitempty" validate:"omitempty,gte=100000,lte=50000000"`
	FinalPrice       *int64   `json:"final_price,omitempty" validate:"omitempty,gte=100000,lte=50000000"`
	PriceChange      *int64   `json:"price_change,omitempty"`
	PriceChangePct   *float64 `json:"price_change_pct,omitempty"`
	PricePerSqm      *float64 `json:"price_per_sqm,omitempty" validate:"omitempty,gte=0"`
	PricePerSqmFinal *float64 `json:"price_per_sqm_final,omitempty" validate:"omitempty,gte=0"`
	SoldDate         *Date    `json:"sold_date,omitempty"`
	ListedDate       *Date    `json:"listed_date,omitempty"`
	DaysOnMarket     *int     `json:"days_on_market,omitempty" validate:"omitempty,gte=0"`
	VisitCount       *int     `json:"visit_count,omitempty" validate:"omitempty,gte=0"`
	ViewingTimes     []string `json:"viewing_times,omitempty"`
}

// Identifier returns the input identity this record was extracted for.
func (p *Property) Identifier() Identifier {
	return Identifier{PropertyID: p.PropertyID, URL: p.URL}
}

// CalculateDerivedFields fills the price and market metrics from the stored inputs.
// It only reads construction-time fields, so calling it again gives the same result.
func (p *Property) CalculateDerivedFields() {
	switch p.Kind {
	case KindSold:
		if p.FinalPrice != nil && p.AskingPrice != nil {
			change := *p.FinalPrice - *p.AskingPrice
			p.PriceChange = &change
			if *p.AskingPrice > 0 {
				pct := float64(change) / float64(*p.AskingPrice) * 100
				p.PriceChangePct = &pct
			}
		}
		if p.FinalPrice != nil && p.LivingArea != nil && *p.LivingArea > 0 {
			perSqm := float64(*p.FinalPrice) / *p.LivingArea
			p.PricePerSqmFinal = &perSqm
		}
	case KindForSale:
		if p.AskingPrice != nil && p.LivingArea != nil && *p.LivingArea > 0 {
			perSqm := float64(*p.AskingPrice) / *p.LivingArea
			p.PricePerSqm = &perSqm
		}
		if p.ListedDate != nil && !p.ScrapedAt.IsZero() {
			days := p.ListedDate.DaysUntil(DateOf(p.ScrapedAt))
			if days >= 0 {
				p.DaysOnMarket = &days
			}
		}
	}
}

type PropertyStats struct {
	TotalProperties     int64   `json:"total_properties"`
	TotalSold           int64   `json:"total_sold"`
	TotalActive         int64   `json:"total_active"`
	AverageAskingPrice  float64 `json:"average_asking_price"`
	AverageFinalPrice   float64 `json:"average_final_price"`
	AveragePriceChange  float64 `json:"average_price_change_pct"`
	AveragePricePerSqm  float64 `json:"average_price_per_sqm"`
	AverageDaysOnMarket float64 `json:"average_days_on_market"`
}
