package extract

import "malmohomes/collector/internal/models"

// Field names a target field of the property record.
type Field string

const (
	FieldAddress         Field = "address"
	FieldNeighborhood    Field = "neighborhood"
	FieldLocationName    Field = "location_name"
	FieldDistricts       Field = "districts"
	FieldCoordinate      Field = "coordinate"
	FieldHousingForm     Field = "housing_form"
	FieldTenure          Field = "tenure"
	FieldRooms           Field = "rooms"
	FieldLivingArea      Field = "living_area"
	FieldLotArea         Field = "lot_area"
	FieldFloor           Field = "floor"
	FieldElevator        Field = "elevator"
	FieldBalcony         Field = "balcony"
	FieldBuildingYear    Field = "building_year"
	FieldEnergyClass     Field = "energy_class"
	FieldAssociationName Field = "association_name"
	FieldAssociationFee  Field = "association_fee"
	FieldOperatingCost   Field = "operating_cost"
	FieldDescription     Field = "description"

	FieldAskingPrice  Field = "asking_price"
	FieldFinalPrice   Field = "final_price"
	FieldSoldDate     Field = "sold_date"
	FieldListedDate   Field = "listed_date"
	FieldVisitCount   Field = "visit_count"
	FieldDaysOnMarket Field = "days_on_market"
	FieldViewings     Field = "viewings"
)

// Aliases lists, per target field, the source paths tried in order. Paths are
// dotted and every step follows references. The site has renamed many fields
// over the years; a newly seen name is one more entry here.
type Aliases map[Field][]string

var commonAliases = Aliases{
	FieldAddress:         {"streetAddress", "street"},
	FieldNeighborhood:    {"area"},
	FieldLocationName:    {"locationName"},
	FieldDistricts:       {"districts"},
	FieldCoordinate:      {"location.coordinate", "coordinate"},
	FieldHousingForm:     {"housingForm", "housing_form", "propertyType"},
	FieldTenure:          {"tenureForm", "tenure", "ownershipType"},
	FieldRooms:           {"numberOfRooms", "rooms", "roomCount"},
	FieldLivingArea:      {"livingArea", "living_area", "area"},
	FieldLotArea:         {"landArea", "plotArea", "lot_area"},
	FieldFloor:           {"floor", "formattedFloor"},
	FieldElevator:        {"elevator", "hasElevator"},
	FieldBalcony:         {"balcony", "hasBalcony"},
	FieldBuildingYear:    {"constructionYear", "buildYear", "yearBuilt", "legacyConstructionYear"},
	FieldEnergyClass:     {"energyClass", "energyRating"},
	FieldAssociationName: {"housingAssociation", "association"},
	FieldAssociationFee:  {"fee", "monthlyFee", "avgift"},
	FieldOperatingCost:   {"operatingCost", "driftskostnad"},
	FieldDescription:     {"description"},
}

var soldAliases = Aliases{
	FieldAskingPrice:  {"askingPrice", "listing.price"},
	FieldFinalPrice:   {"soldPrice", "finalPrice", "sellingPrice"},
	FieldSoldDate:     {"soldAt", "soldDate", "saleDate"},
	FieldVisitCount:   {"timesViewed", "statistics.visitsTotal", "statistics.visits"},
	FieldDaysOnMarket: {"daysOnMarket"},
}

var forSaleAliases = Aliases{
	FieldAskingPrice: {"askingPrice", "price.asking"},
	FieldListedDate:  {"publishedAt", "listedAt"},
	FieldVisitCount:  {"statistics.visitsTotal", "statistics.visits"},
	FieldViewings:    {"viewings"},
}

// AliasesFor returns the full table for a listing kind with extra candidates
// appended after the built-in ones.
func AliasesFor(kind models.Kind, extra map[string][]string) Aliases {
	table := make(Aliases, len(commonAliases)+len(soldAliases))
	merge := func(src Aliases) {
		for field, paths := range src {
			table[field] = append([]string(nil), paths...)
		}
	}

	merge(commonAliases)
	switch kind {
	case models.KindSold:
		merge(soldAliases)
	case models.KindForSale:
		merge(forSaleAliases)
	}

	for name, paths := range extra {
		field := Field(name)
		table[field] = append(table[field], paths...)
	}
	return table
}
