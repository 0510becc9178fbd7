package output

import (
	"fmt"
	"time"

	"malmohomes/collector/internal/models"
)

// Row is the columnar layout of one property in a group file. Every optional
// record field is a nullable column.
type Row struct {
	PropertyID string `parquet:"property_id"`
	Kind       string `parquet:"kind"`
	URL        string `parquet:"url"`
	ScrapedAt  string `parquet:"scraped_at"`

	Address      *string  `parquet:"address"`
	City         *string  `parquet:"city"`
	Neighborhood *string  `parquet:"neighborhood"`
	Latitude     *float64 `parquet:"latitude"`
	Longitude    *float64 `parquet:"longitude"`

	HousingForm  *string  `parquet:"housing_form"`
	Tenure       *string  `parquet:"tenure"`
	Rooms        *float64 `parquet:"rooms"`
	LivingArea   *float64 `parquet:"living_area"`
	LotArea      *float64 `parquet:"lot_area"`
	Floor        *string  `parquet:"floor"`
	Elevator     *bool    `parquet:"elevator"`
	Balcony      *bool    `parquet:"balcony"`
	BuildingYear *int64   `parquet:"building_year"`
	EnergyClass  *string  `parquet:"energy_class"`

	AssociationName *string `parquet:"association_name"`
	AssociationFee  *int64  `parquet:"association_fee"`
	OperatingCost   *int64  `parquet:"operating_cost"`
	Description     *string `parquet:"description"`

	AskingPrice      *int64   `parquet:"asking_price"`
	FinalPrice       *int64   `parquet:"final_price"`
	PriceChange      *int64   `parquet:"price_change"`
	PriceChangePct   *float64 `parquet:"price_change_pct"`
	PricePerSqm      *float64 `parquet:"price_per_sqm"`
	PricePerSqmFinal *float64 `parquet:"price_per_sqm_final"`
	SoldDate         *string  `parquet:"sold_date"`
	ListedDate       *string  `parquet:"listed_date"`
	DaysOnMarket     *int64   `parquet:"days_on_market"`
	VisitCount       *int64   `parquet:"visit_count"`
	ViewingTimes     []string `parquet:"viewing_times,list"`
}

func RowFromProperty(p *models.Property) Row {
	return Row{
		PropertyID: p.PropertyID,
		Kind:       string(p.Kind),
		URL:        p.URL,
		ScrapedAt:  p.ScrapedAt.Format(time.RFC3339Nano),

		Address:      p.Address,
		City:         p.City,
		Neighborhood: p.Neighborhood,
		Latitude:     p.Latitude,
		Longitude:    p.Longitude,

		HousingForm:  p.HousingForm,
		Tenure:       p.Tenure,
		Rooms:        p.Rooms,
		LivingArea:   p.LivingArea,
		LotArea:      p.LotArea,
		Floor:        p.Floor,
		Elevator:     p.Elevator,
		Balcony:      p.Balcony,
		BuildingYear: widen(p.BuildingYear),
		EnergyClass:  p.EnergyClass,

		AssociationName: p.AssociationName,
		AssociationFee:  p.AssociationFee,
		OperatingCost:   p.OperatingCost,
		Description:     p.Description,

		AskingPrice:      p.AskingPrice,
		FinalPrice:       p.FinalPrice,
		PriceChange:      p.PriceChange,
		PriceChangePct:   p.PriceChangePct,
		PricePerSqm:      p.PricePerSqm,
		PricePerSqmFinal: p.PricePerSqmFinal,
		SoldDate:         formatDate(p.SoldDate),
		ListedDate:       formatDate(p.ListedDate),
		DaysOnMarket:     widen(p.DaysOnMarket),
		VisitCount:       widen(p.VisitCount),
		ViewingTimes:     p.ViewingTimes,
	}
}

// Property converts a stored row back into a record.
func (r Row) Property() (*models.Property, error) {
	scrapedAt, err := time.Parse(time.RFC3339Nano, r.ScrapedAt)
	if err != nil {
		return nil, fmt.Errorf("row %s: invalid scraped_at: %w", r.PropertyID, err)
	}
	soldDate, err := parseDate(r.SoldDate)
	if err != nil {
		return nil, fmt.Errorf("row %s: invalid sold_date: %w", r.PropertyID, err)
	}
	listedDate, err := parseDate(r.ListedDate)
	if err != nil {
		return nil, fmt.Errorf("row %s: invalid listed_date: %w", r.PropertyID, err)
	}

	return &models.Property{
		PropertyID: r.PropertyID,
		Kind:       models.Kind(r.Kind),
		URL:        r.URL,
		ScrapedAt:  scrapedAt,

		Address:      r.Address,
		City:         r.City,
		Neighborhood: r.Neighborhood,
		Latitude:     r.Latitude,
		Longitude:    r.Longitude,

		HousingForm:  r.HousingForm,
		Tenure:       r.Tenure,
		Rooms:        r.Rooms,
		LivingArea:   r.LivingArea,
		LotArea:      r.LotArea,
		Floor:        r.Floor,
		Elevator:     r.Elevator,
		Balcony:      r.Balcony,
		BuildingYear: narrow(r.BuildingYear),
		EnergyClass:  r.EnergyClass,

		AssociationName: r.AssociationName,
		AssociationFee:  r.AssociationFee,
		OperatingCost:   r.OperatingCost,
		Description:     r.Description,

		AskingPrice:      r.AskingPrice,
		FinalPrice:       r.FinalPrice,
		PriceChange:      r.PriceChange,
		PriceChangePct:   r.PriceChangePct,
		PricePerSqm:      r.PricePerSqm,
		PricePerSqmFinal: r.PricePerSqmFinal,
		SoldDate:         soldDate,
		ListedDate:       listedDate,
		DaysOnMarket:     narrow(r.DaysOnMarket),
		VisitCount:       narrow(r.VisitCount),
		ViewingTimes:     r.ViewingTimes,
	}, nil
}

func widen(v *int) *int64 {
	if v == nil {
		return nil
	}
	w := int64(*v)
	return &w
}

func narrow(v *int64) *int {
	if v == nil {
		return nil
	}
	n := int(*v)
	return &n
}

func formatDate(d *models.Date) *string {
	if d == nil {
		return nil
	}
	s := d.String()
	return &s
}

func parseDate(s *string) (*models.Date, error) {
	if s == nil {
		return nil, nil
	}
	d, err := models.ParseDate(*s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
